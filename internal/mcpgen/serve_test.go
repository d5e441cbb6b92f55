package mcpgen

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/mmgen/internal/registry"
)

func TestStringArgs(t *testing.T) {
	got := StringArgs(map[string]any{"a": "x", "n": 3, "b": true, "z": nil})
	assert.Equal(t, map[string]string{"a": "x", "n": "3", "b": "true"}, got)
}

func TestToolbox(t *testing.T) {
	tb := NewToolbox([]ToolSpec{searchSpec, searchSpec, addSpec}, NewDispatcher(""))
	assert.Len(t, tb.Tools(), 2)

	_, err := tb.Call(context.Background(), "nope_tool", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestMCPServer_ListAndCall(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/transformation/A2B" {
			io.WriteString(w, `{"name":"A2B"}`)
			return
		}
		http.NotFound(w, r)
	}))
	defer backend.Close()

	specs := TransformationTools([]Transformation{{Name: "A2B", Source: "A", Target: "B"}})
	s := NewMCPServer("atl_generated", "test", NewToolbox(specs, NewDispatcher(backend.URL)))

	c, err := client.NewInProcessClient(s)
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	tools, err := registry.ListMCPTools(ctx, c)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "apply_A2B_tool", tools[0].Name)
	assert.Equal(t, []string{FileArg}, tools[0].Required)

	req := mcp.CallToolRequest{}
	req.Params.Name = "list_transformation_A2B_tool"
	res, err := c.CallTool(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, `{"name":"A2B"}`, text.Text)

	req = mcp.CallToolRequest{}
	req.Params.Name = "apply_A2B_tool"
	req.Params.Arguments = map[string]any{}
	res, err = c.CallTool(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
