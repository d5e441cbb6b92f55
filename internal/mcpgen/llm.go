package mcpgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jordanhubbard/mmgen/internal/provider"
)

// ErrBadToolsBlock is returned when model output is not a usable tools block.
var ErrBadToolsBlock = errors.New("model output is not a TRANSFORMATIONS tools block")

func blockPrompt(list []Transformation, backendURL string) (string, error) {
	spec, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`Generate Python code for an MCP server that dynamically creates tools using a for loop.

Tools specification (list of transformations):
%s

Server backend URL: %s

Requirements:
1. Define a TRANSFORMATIONS list containing the tool specs.
2. Use a for loop to iterate over TRANSFORMATIONS.
3. For each transformation, create tool functions with factory functions:
   - apply_<name>_tool: POST to SERVER_BASE/transformation/<name>/apply with the file
   - list_transformation_<name>_tool: GET to SERVER_BASE/transformation/<name>
4. Use the existing mcp object (mcp = FastMCP(...) is already defined) and
   register tools with mcp.tool(name=..., description=...) as a decorator.
5. Use async def, subprocess.run with curl, and try/except for errors.
6. The apply tool takes file_path and calls curl with -F 'IN=@{file_path}'.
7. Only register apply or list tools for the operations a transformation lists.

Output ONLY the Python code (TRANSFORMATIONS list and the loop with factory functions), no markdown, no explanation.`, spec, backendURL), nil
}

// LLMBlock asks the model to write the tools block for a transformation list.
func LLMBlock(ctx context.Context, llm provider.Completer, list []Transformation, backendURL string) (string, error) {
	norm := make([]Transformation, len(list))
	for i, t := range list {
		t.normalize()
		norm[i] = t
	}
	prompt, err := blockPrompt(norm, backendURL)
	if err != nil {
		return "", err
	}
	out, err := llm.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("llm call failed: %w", err)
	}
	code := strings.TrimSpace(provider.StripFences(out))
	if !strings.Contains(code, "TRANSFORMATIONS") || !strings.Contains(code, "mcp.tool") {
		return "", ErrBadToolsBlock
	}
	return code, nil
}

// ToolsBlock returns the tools block for a transformation list: written by
// the model when llm is set, otherwise (or when the model fails) rendered
// from the built-in template.
func ToolsBlock(ctx context.Context, llm provider.Completer, list []Transformation, backendURL string) (string, error) {
	if llm != nil {
		code, err := LLMBlock(ctx, llm, list, backendURL)
		if err == nil {
			log.Printf("[MCPGen] Tools block written by model (%d transformations)", len(list))
			return code, nil
		}
		log.Printf("[MCPGen] Warning: model tools block rejected, using template: %v", err)
	}
	return TransformationsBlock(list)
}
