package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/mmgen/pkg/config"
)

type failingSource struct{ name string }

func (f failingSource) Server() string { return f.name }
func (f failingSource) Discover(context.Context) ([]Tool, error) {
	return nil, errors.New("connection refused")
}

func TestRegistry_PopulateSkipsFailures(t *testing.T) {
	r := New()
	r.Populate(context.Background(), []Source{
		failingSource{name: "atl_server"},
		&StaticSource{Name: "emf_server", Tools: []Tool{{Name: "create_object"}, {Name: "list_features"}}},
	})

	assert.Equal(t, []string{"create_object", "list_features"}, r.Names("emf_server"))
	assert.Equal(t, []string{"emf_server"}, r.Servers())

	_, err := r.Require("atl_server")
	assert.ErrorIs(t, err, ErrNoTools)
}

func TestRegistry_Tool(t *testing.T) {
	r := New()
	r.Register("emf_server", []Tool{{Name: "create_object", Required: []string{"session_id"}}})

	tool, err := r.Tool("emf_server", "create_object")
	require.NoError(t, err)
	assert.Equal(t, []string{"session_id"}, tool.Required)

	_, err = r.Tool("emf_server", "nope")
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestHTTPSource_Discover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tools", r.URL.Path)
		_, _ = w.Write([]byte(`{"tools":[{"name":"apply_KM32EMF_tool","description":"Transformation tool for KM32EMF"},{"name":"list_transformation_KM32EMF_tool","description":""}]}`))
	}))
	defer srv.Close()

	src := &HTTPSource{Name: "atl_server", URL: srv.URL + "/"}
	tools, err := src.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "apply_KM32EMF_tool", tools[0].Name)
	assert.Equal(t, "Transformation tool for KM32EMF", tools[0].Description)
}

func TestHTTPSource_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := (&HTTPSource{Name: "x", URL: srv.URL}).Discover(context.Background())
	assert.Error(t, err)
}

func TestSourcesFromConfig(t *testing.T) {
	sources, err := SourcesFromConfig([]config.ServerConfig{
		{Name: "a", Transport: "stdio", Command: "python", Args: []string{"server.py"}},
		{Name: "b", Transport: "http", URL: "http://localhost:8081"},
		{Name: "c", Tools: []config.StaticTool{{Name: "t", Required: []string{"x"}}}},
	})
	require.NoError(t, err)
	require.Len(t, sources, 3)
	assert.IsType(t, &StdioSource{}, sources[0])
	assert.IsType(t, &HTTPSource{}, sources[1])

	tools, err := sources[2].Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Tool{{Name: "t", Required: []string{"x"}}}, tools)

	_, err = SourcesFromConfig([]config.ServerConfig{{Name: "d", Transport: "carrier"}})
	assert.Error(t, err)
	_, err = SourcesFromConfig([]config.ServerConfig{{Name: "e", Transport: "stdio"}})
	assert.Error(t, err)
}

func TestListMCPTools_InProcess(t *testing.T) {
	s := server.NewMCPServer("emf_test", "1.0.0", server.WithToolCapabilities(true))
	s.AddTool(mcp.NewTool("create_object",
		mcp.WithDescription("Create an object"),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("class_name", mcp.Required()),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ok"), nil
	})

	c, err := client.NewInProcessClient(s)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Start(context.Background()))

	tools, err := ListMCPTools(context.Background(), c)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "create_object", tools[0].Name)
	assert.Equal(t, "Create an object", tools[0].Description)
	assert.ElementsMatch(t, []string{"session_id", "class_name"}, tools[0].Required)
}
