package mcpgen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"text/template"
)

// Artifact is everything needed to render a standalone wrapper server.
type Artifact struct {
	ServerName string
	BackendURL string
	Port       int
	Tools      []ToolSpec
	// ToolsBlock replaces the per-tool functions when set.
	ToolsBlock string
}

var renderFuncs = template.FuncMap{
	"ident":     pyIdent,
	"doc":       pyDoc,
	"str":       pyString,
	"signature": pySignature,
	"urlpath":   pyPath,
	"query":     func(t ToolSpec) []Param { return t.ParamsIn(InQuery) },
	"body":      func(t ToolSpec) []Param { return t.ParamsIn(InBody) },
}

var serverTmpl = template.Must(template.New("server").Funcs(renderFuncs).Parse(`import sys
import os
import json
import subprocess
import threading
from mcp.server.fastmcp import FastMCP
from fastapi import FastAPI
import uvicorn

SERVER_BASE = {{str .BackendURL}}

mcp = FastMCP({{str .ServerName}})

{{if .ToolsBlock}}{{.ToolsBlock}}
{{else}}{{range .Tools}}{{template "tool" .}}{{end}}{{end}}
if __name__ == "__main__":
    print(f"Registered tools: {list(mcp._tool_manager._tools.keys())}")

    app = FastAPI()

    @app.get("/tools")
    def get_tools():
        tools = []
        for name, tool in mcp._tool_manager._tools.items():
            desc = getattr(tool, 'description', '')
            tools.append({"name": name, "description": desc})
        return {"tools": tools}

    @app.post("/tools/{tool_name}")
    async def call_tool(tool_name: str, params: dict = None):
        if tool_name in mcp._tool_manager._tools:
            tool = mcp._tool_manager._tools[tool_name]
            if params:
                result = await tool.fn(**params)
            else:
                result = await tool.fn()
            return {"result": result}
        return {"error": f"Tool {tool_name} not found"}

    def run_fastapi():
        uvicorn.run(app, host="0.0.0.0", port={{.Port}}, log_level="info")

    threading.Thread(target=run_fastapi, daemon=True).start()

    mcp.run(transport='stdio')
`))

func init() {
	template.Must(serverTmpl.New("tool").Parse(`
@mcp.tool(name={{str .Name}}, description="""{{doc .Description}}""")
async def {{ident .Name}}({{signature .}}) -> str:
    """
    {{doc .Summary}}
    """
    url = f"{SERVER_BASE}{{urlpath .Path}}"
    cmd = ["curl", "-s", "-X", "{{.Method}}"]
{{- with query .}}
    query_parts = []
{{- range .}}
    if {{ident .Name}}:
        query_parts.append(f"{{.Name}}={ {{- ident .Name -}} }")
{{- end}}
    if query_parts:
        url = url + "?" + "&".join(query_parts)
{{- end}}
{{- if not .HasFile}}{{range body .}}
    if {{ident .Name}}:
        cmd.extend(["-d", f"{{.Name}}={ {{- ident .Name -}} }"])
{{- end}}{{end}}
{{- if .HasFile}}
    if file_path:
        cmd.extend(["-F", f"{{.FileField}}=@{file_path}"])
{{- end}}
    cmd.append(url)
    result = subprocess.run(cmd, capture_output=True, text=True)
    return result.stdout if result.returncode == 0 else f"Error: {result.stderr}"

`))
}

var transformationsTmpl = template.Must(template.New("transformations").Parse(`TRANSFORMATIONS = {{.Table}}


def make_apply_tool(transformation_name, desc):
    @mcp.tool(name=f"apply_{transformation_name}_tool", description=desc)
    async def apply_tool(file_path: str) -> str:
        cmd = [
            "curl", "-s",
            "-X", "POST",
            f"{SERVER_BASE}/transformation/{transformation_name}/apply",
            "-F", f"IN=@{file_path}",
        ]
        try:
            result = subprocess.run(cmd, capture_output=True, text=True, check=True)
            return result.stdout
        except subprocess.CalledProcessError as e:
            return f"Error applying {transformation_name}: {e.stderr}"
    return apply_tool


def make_get_tool(transformation_name, desc):
    @mcp.tool(name=f"list_transformation_{transformation_name}_tool", description=desc)
    async def list_tool() -> str:
        cmd = ["curl", "-s", "-X", "GET", f"{SERVER_BASE}/transformation/{transformation_name}"]
        try:
            result = subprocess.run(cmd, capture_output=True, text=True, check=True)
            return result.stdout
        except subprocess.CalledProcessError as e:
            return f"Error listing {transformation_name}: {e.stderr}"
    return list_tool


for t in TRANSFORMATIONS:
    description = f"Transformation tool for {t['name']} ({t['source_metamodel']} -> {t['target_metamodel']})"
    if "apply" in t["operations"]:
        make_apply_tool(t["name"], description)
    if "get" in t["operations"]:
        make_get_tool(t["name"], description)
`))

// TransformationsTable renders the TRANSFORMATIONS literal. JSON of strings
// and lists is valid Python.
func TransformationsTable(list []Transformation) (string, error) {
	norm := make([]Transformation, len(list))
	for i, t := range list {
		t.normalize()
		norm[i] = t
	}
	data, err := json.MarshalIndent(norm, "", "    ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// TransformationsBlock renders the data-driven tools block for a
// transformation list: the TRANSFORMATIONS table and a registration loop.
func TransformationsBlock(list []Transformation) (string, error) {
	table, err := TransformationsTable(list)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := transformationsTmpl.Execute(&buf, struct{ Table string }{table}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Render writes the wrapper server source.
func Render(w io.Writer, a Artifact) error {
	if a.BackendURL == "" {
		a.BackendURL = DefaultBackendURL
	}
	if a.ServerName == "" {
		return fmt.Errorf("server name is required")
	}
	return serverTmpl.Execute(w, a)
}

// WriteArtifact renders the wrapper server into path, creating parent
// directories.
func WriteArtifact(path string, a Artifact) error {
	var buf bytes.Buffer
	if err := Render(&buf, a); err != nil {
		return fmt.Errorf("failed to render server: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

var pyKeywords = []string{
	"False", "None", "True", "and", "as", "assert", "async", "await", "break",
	"class", "continue", "def", "del", "elif", "else", "except", "finally",
	"for", "from", "global", "if", "import", "in", "is", "lambda", "nonlocal",
	"not", "or", "pass", "raise", "return", "try", "while", "with", "yield",
}

var nonIdentRE = regexp.MustCompile(`\W`)

// pyIdent maps a name onto a Python identifier.
func pyIdent(name string) string {
	id := nonIdentRE.ReplaceAllString(name, "_")
	if id == "" || (id[0] >= '0' && id[0] <= '9') {
		id = "_" + id
	}
	if slices.Contains(pyKeywords, id) {
		id += "_"
	}
	return id
}

// pyDoc makes text safe inside a triple-quoted string.
func pyDoc(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"""`, `\"\"\"`)
}

func pyString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

// pyPath turns a path template into the body of a Python f-string.
func pyPath(path string) string {
	path = strings.ReplaceAll(path, `"`, `\"`)
	return pathParamRE.ReplaceAllStringFunc(path, func(m string) string {
		return "{" + pyIdent(m[1:len(m)-1]) + "}"
	})
}

func pySignature(t ToolSpec) string {
	parts := make([]string, 0, len(t.Params))
	for _, p := range t.Signature() {
		if p.Required {
			parts = append(parts, pyIdent(p.Name)+": str")
		} else {
			parts = append(parts, pyIdent(p.Name)+": str = None")
		}
	}
	return strings.Join(parts, ", ")
}
