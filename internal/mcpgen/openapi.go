package mcpgen

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// methods are visited in this order for every path.
var methods = []string{"get", "post", "put", "delete", "patch"}

// Document is the subset of an OpenAPI 3 document the generator reads.
// JSON documents parse too, JSON being a subset of YAML.
type Document struct {
	Servers []struct {
		URL string `yaml:"url"`
	} `yaml:"servers"`
	Paths Paths `yaml:"paths"`
}

// PathItem holds the operations of one route.
type PathItem struct {
	Path       string
	Operations map[string]*Operation
}

// Paths keeps routes in document order.
type Paths []PathItem

func (p *Paths) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("paths: expected a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		item := PathItem{Path: node.Content[i].Value, Operations: make(map[string]*Operation)}
		ops := node.Content[i+1]
		if ops.Kind != yaml.MappingNode {
			continue
		}
		// path-level keys such as parameters and servers are skipped
		for j := 0; j+1 < len(ops.Content); j += 2 {
			method := strings.ToLower(ops.Content[j].Value)
			if !slices.Contains(methods, method) {
				continue
			}
			var op Operation
			if err := ops.Content[j+1].Decode(&op); err != nil {
				return fmt.Errorf("paths %s %s: %w", item.Path, method, err)
			}
			item.Operations[method] = &op
		}
		*p = append(*p, item)
	}
	return nil
}

// Operation is one method of a path.
type Operation struct {
	Summary     string      `yaml:"summary"`
	Description string      `yaml:"description"`
	Parameters  []Parameter `yaml:"parameters"`
	RequestBody struct {
		Content map[string]struct {
			Schema Schema `yaml:"schema"`
		} `yaml:"content"`
	} `yaml:"requestBody"`
}

// Parameter is a path, query, header or cookie parameter.
type Parameter struct {
	Name        string `yaml:"name"`
	In          string `yaml:"in"`
	Required    bool   `yaml:"required"`
	Description string `yaml:"description"`
}

// Schema is the subset of a JSON schema the generator reads.
type Schema struct {
	Type        string     `yaml:"type"`
	Format      string     `yaml:"format"`
	Description string     `yaml:"description"`
	Required    []string   `yaml:"required"`
	Properties  Properties `yaml:"properties"`
}

// Property is a named schema.
type Property struct {
	Name   string
	Schema Schema
}

// Properties keeps object properties in document order.
type Properties []Property

func (p *Properties) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("properties: expected a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		prop := Property{Name: node.Content[i].Value}
		if err := node.Content[i+1].Decode(&prop.Schema); err != nil {
			return fmt.Errorf("property %s: %w", prop.Name, err)
		}
		*p = append(*p, prop)
	}
	return nil
}

// ParseOpenAPI parses a YAML or JSON OpenAPI document.
func ParseOpenAPI(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI document: %w", err)
	}
	return &doc, nil
}

// LoadOpenAPI reads an OpenAPI document from a file.
func LoadOpenAPI(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read OpenAPI document: %w", err)
	}
	doc, err := ParseOpenAPI(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

var originRE = regexp.MustCompile(`^(https?://[^/]+)`)

// BackendURL returns the scheme and host of the first server entry, the
// raw entry when it is not an http(s) URL, or DefaultBackendURL.
func (d *Document) BackendURL() string {
	if len(d.Servers) == 0 {
		return DefaultBackendURL
	}
	raw := d.Servers[0].URL
	if m := originRE.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	if raw == "" {
		return DefaultBackendURL
	}
	return raw
}

// Tools builds one tool per path and method.
func (d *Document) Tools() []ToolSpec {
	var specs []ToolSpec
	for _, item := range d.Paths {
		for _, method := range methods {
			op, ok := item.Operations[method]
			if !ok || op == nil {
				continue
			}
			spec := operationTool(item.Path, method, op)
			log.Printf("[MCPGen] %s %s -> %s", spec.Method, item.Path, spec.Name)
			specs = append(specs, spec)
		}
	}
	return specs
}

func operationTool(path, method string, op *Operation) ToolSpec {
	summary := op.Summary
	if summary == "" {
		summary = fmt.Sprintf("%s %s", strings.ToUpper(method), path)
	}
	desc := op.Description
	if desc == "" {
		desc = summary
	}
	spec := ToolSpec{
		Name:        ToolName(path, method),
		Description: desc,
		Summary:     summary,
		Method:      strings.ToUpper(method),
		Path:        path,
	}

	var pathNames []string
	pathNames = append(pathNames, PathParams(path)...)
	for _, p := range op.Parameters {
		if p.In == "path" && !slices.Contains(pathNames, p.Name) {
			pathNames = append(pathNames, p.Name)
		}
	}
	for _, n := range pathNames {
		spec.Params = append(spec.Params, Param{Name: n, In: InPath, Required: true, Description: paramDescription(op, n)})
	}

	for _, p := range op.Parameters {
		if p.In == "query" {
			spec.Params = append(spec.Params, Param{Name: p.Name, In: InQuery, Required: p.Required, Description: p.Description})
		}
	}

	content := op.RequestBody.Content
	if mt, ok := content["multipart/form-data"]; ok {
		for _, prop := range mt.Schema.Properties {
			if prop.Schema.Format == "binary" {
				spec.FileField = prop.Name
				continue
			}
			spec.Params = append(spec.Params, Param{
				Name:        prop.Name,
				In:          InBody,
				Required:    slices.Contains(mt.Schema.Required, prop.Name),
				Description: prop.Schema.Description,
			})
		}
		if spec.FileField != "" {
			spec.Params = append(spec.Params, Param{Name: FileArg, In: InFile, Required: true, Description: "Path of the file to upload"})
		}
	} else if mt, ok := content["application/x-www-form-urlencoded"]; ok {
		for _, prop := range mt.Schema.Properties {
			spec.Params = append(spec.Params, Param{
				Name:        prop.Name,
				In:          InBody,
				Required:    slices.Contains(mt.Schema.Required, prop.Name),
				Description: prop.Schema.Description,
			})
		}
	}
	return spec
}

func paramDescription(op *Operation, name string) string {
	for _, p := range op.Parameters {
		if p.Name == name {
			return p.Description
		}
	}
	return ""
}
