package mcpgen

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ErrUnknownTool is returned when a call names a tool not in the table.
var ErrUnknownTool = errors.New("unknown tool")

// Toolbox binds a tool table to a dispatcher.
type Toolbox struct {
	specs  []ToolSpec
	byName map[string]ToolSpec
	d      *Dispatcher
}

// NewToolbox indexes specs by name; later duplicates are dropped.
func NewToolbox(specs []ToolSpec, d *Dispatcher) *Toolbox {
	tb := &Toolbox{byName: make(map[string]ToolSpec, len(specs)), d: d}
	for _, s := range specs {
		if _, dup := tb.byName[s.Name]; dup {
			log.Printf("[MCPGen] Warning: duplicate tool %s ignored", s.Name)
			continue
		}
		tb.byName[s.Name] = s
		tb.specs = append(tb.specs, s)
	}
	return tb
}

// Tools returns the table in registration order.
func (tb *Toolbox) Tools() []ToolSpec { return tb.specs }

// Call dispatches a tool by name.
func (tb *Toolbox) Call(ctx context.Context, name string, args map[string]string) (string, error) {
	spec, ok := tb.byName[name]
	if !ok {
		return "", fmt.Errorf("%s: %w", name, ErrUnknownTool)
	}
	return tb.d.Call(ctx, spec, args)
}

// StringArgs flattens tool-call arguments to strings; nil values are dropped.
func StringArgs(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
		case string:
			out[k] = val
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

// NewMCPServer exposes every tool of the toolbox over MCP.
func NewMCPServer(name, version string, tb *Toolbox) *server.MCPServer {
	s := server.NewMCPServer(name, version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	for _, spec := range tb.Tools() {
		s.AddTool(mcpTool(spec), toolHandler(tb, spec.Name))
	}
	log.Printf("[MCPGen] MCP server %s registered %d tools", name, len(tb.Tools()))
	return s
}

func mcpTool(spec ToolSpec) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(spec.Description)}
	for _, p := range spec.Signature() {
		popts := []mcp.PropertyOption{}
		if p.Description != "" {
			popts = append(popts, mcp.Description(p.Description))
		}
		if p.Required {
			popts = append(popts, mcp.Required())
		}
		opts = append(opts, mcp.WithString(p.Name, popts...))
	}
	return mcp.NewTool(spec.Name, opts...)
}

func toolHandler(tb *Toolbox, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := tb.Call(ctx, name, StringArgs(req.GetArguments()))
		if err != nil {
			msg := err.Error()
			if out != "" {
				msg += "\n" + out
			}
			return mcp.NewToolResultError(msg), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

// ServeStdio runs the MCP server on stdin/stdout until the input closes.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
