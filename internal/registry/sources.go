package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jordanhubbard/mmgen/pkg/config"
)

// ClientName identifies mmgen during the MCP handshake.
const ClientName = "mmgen"

// SourcesFromConfig builds one source per configured server.
func SourcesFromConfig(servers []config.ServerConfig) ([]Source, error) {
	sources := make([]Source, 0, len(servers))
	for _, s := range servers {
		switch s.Transport {
		case "stdio":
			if s.Command == "" {
				return nil, fmt.Errorf("server %s: stdio transport needs a command", s.Name)
			}
			sources = append(sources, &StdioSource{Name: s.Name, Command: s.Command, Args: s.Args, Env: s.Env})
		case "http":
			if s.URL == "" {
				return nil, fmt.Errorf("server %s: http transport needs a url", s.Name)
			}
			sources = append(sources, &HTTPSource{Name: s.Name, URL: s.URL})
		case "static", "":
			tools := make([]Tool, 0, len(s.Tools))
			for _, t := range s.Tools {
				tools = append(tools, Tool{Name: t.Name, Description: t.Description, Required: t.Required})
			}
			sources = append(sources, &StaticSource{Name: s.Name, Tools: tools})
		default:
			return nil, fmt.Errorf("server %s: unsupported transport %q", s.Name, s.Transport)
		}
	}
	return sources, nil
}

// StaticSource serves a fixed tool list.
type StaticSource struct {
	Name  string
	Tools []Tool
}

func (s *StaticSource) Server() string { return s.Name }

func (s *StaticSource) Discover(context.Context) ([]Tool, error) {
	return append([]Tool(nil), s.Tools...), nil
}

// HTTPSource reads GET <URL>/tools, the listing served next to generated
// MCP servers.
type HTTPSource struct {
	Name   string
	URL    string
	Client *http.Client
}

func (s *HTTPSource) Server() string { return s.Name }

func (s *HTTPSource) Discover(ctx context.Context) ([]Tool, error) {
	httpClient := s.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	url := strings.TrimSuffix(s.URL, "/") + "/tools"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var listing struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tool listing: %w", err)
	}
	return listing.Tools, nil
}

// StdioSource spawns an MCP server and lists its tools over stdio.
type StdioSource struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

func (s *StdioSource) Server() string { return s.Name }

func (s *StdioSource) Discover(ctx context.Context) ([]Tool, error) {
	env := make([]string, 0, len(s.Env))
	for k, v := range s.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	c, err := client.NewStdioMCPClient(s.Command, env, s.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", s.Command, err)
	}
	defer c.Close()

	return ListMCPTools(ctx, c)
}

// ListMCPTools performs the MCP handshake on c and returns its tools.
func ListMCPTools(ctx context.Context, c *client.Client) ([]Tool, error) {
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: ClientName, Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		return nil, fmt.Errorf("mcp initialize: %w", err)
	}

	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp list tools: %w", err)
	}

	tools := make([]Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, Tool{
			Name:        t.Name,
			Description: t.Description,
			Required:    t.InputSchema.Required,
		})
	}
	return tools, nil
}
