// Package mcpgen turns backend descriptions (OpenAPI documents or lists of
// ATL transformations) into MCP tool tables, renders them as standalone
// wrapper servers, and serves them directly.
package mcpgen

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// DefaultBackendURL is used when neither the config nor the document names one.
const DefaultBackendURL = "http://localhost:8080"

// FileArg is the argument that carries the local path of an uploaded file.
const FileArg = "file_path"

// ParamIn says where a parameter goes in the backend request.
type ParamIn string

const (
	InPath  ParamIn = "path"
	InQuery ParamIn = "query"
	InBody  ParamIn = "body"
	InFile  ParamIn = "file"
)

// Param is one tool argument.
type Param struct {
	Name        string  `json:"name"`
	In          ParamIn `json:"in"`
	Required    bool    `json:"required"`
	Description string  `json:"description,omitempty"`
}

// ToolSpec describes one tool as a backend call.
type ToolSpec struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Summary     string  `json:"summary,omitempty"`
	Method      string  `json:"method"`
	Path        string  `json:"path"` // may hold {param} placeholders
	Params      []Param `json:"params,omitempty"`
	// FileField is the multipart field name the file upload is sent as.
	FileField string `json:"file_field,omitempty"`
}

// Signature returns the parameters with required ones first, each group in
// declaration order.
func (t ToolSpec) Signature() []Param {
	out := make([]Param, 0, len(t.Params))
	for _, p := range t.Params {
		if p.Required {
			out = append(out, p)
		}
	}
	for _, p := range t.Params {
		if !p.Required {
			out = append(out, p)
		}
	}
	return out
}

// Required returns the names of the required parameters.
func (t ToolSpec) Required() []string {
	var names []string
	for _, p := range t.Signature() {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

// ParamsIn returns the parameters of one kind in declaration order.
func (t ToolSpec) ParamsIn(in ParamIn) []Param {
	var out []Param
	for _, p := range t.Params {
		if p.In == in {
			out = append(out, p)
		}
	}
	return out
}

// HasFile reports whether the tool uploads a file.
func (t ToolSpec) HasFile() bool {
	return len(t.ParamsIn(InFile)) > 0
}

var pathParamRE = regexp.MustCompile(`\{(\w+)\}`)

// PathParams returns the {name} placeholders of a path template.
func PathParams(path string) []string {
	var names []string
	for _, m := range pathParamRE.FindAllStringSubmatch(path, -1) {
		names = append(names, m[1])
	}
	return names
}

// ToolName derives a tool name from a route: the path without its leading
// slash, '/' and '-' mapped to '_', braces removed, prefixed by the method
// for anything but GET, suffixed "_tool".
func ToolName(path, method string) string {
	name := strings.TrimPrefix(path, "/")
	name = strings.NewReplacer("/", "_", "{", "", "}", "", "-", "_").Replace(name)
	if m := strings.ToLower(method); m != "get" {
		name = m + "_" + name
	}
	return name + "_tool"
}

// WriteTable saves a tool table as indented JSON.
func WriteTable(path string, specs []ToolSpec) error {
	data, err := json.MarshalIndent(specs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// LoadTable reads a tool table written by WriteTable.
func LoadTable(path string) ([]ToolSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool table: %w", err)
	}
	var specs []ToolSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("failed to parse tool table %s: %w", path, err)
	}
	return specs, nil
}
