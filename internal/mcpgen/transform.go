package mcpgen

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Operations a transformation backend supports.
const (
	OpApply = "apply"
	OpGet   = "get"
)

// UnknownMetamodel stands in for a metamodel the source did not name.
const UnknownMetamodel = "Unknown"

// Transformation is one ATL transformation served by the backend.
type Transformation struct {
	Name       string   `yaml:"name" json:"name"`
	Source     string   `yaml:"source_metamodel" json:"source_metamodel"`
	Target     string   `yaml:"target_metamodel" json:"target_metamodel"`
	Operations []string `yaml:"operations,omitempty" json:"operations"`
}

func (t *Transformation) normalize() {
	if t.Source == "" {
		t.Source = UnknownMetamodel
	}
	if t.Target == "" {
		t.Target = UnknownMetamodel
	}
	if len(t.Operations) == 0 {
		t.Operations = []string{OpApply, OpGet}
	}
}

// LoadTransformations reads a YAML or JSON list of transformations.
func LoadTransformations(path string) ([]Transformation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transformations: %w", err)
	}
	var list []Transformation
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse transformations %s: %w", path, err)
	}
	out := list[:0]
	for _, t := range list {
		if t.Name == "" {
			continue
		}
		t.normalize()
		out = append(out, t)
	}
	return out, nil
}

// TransformationsFromTools recovers transformations from the tool names a
// transformation server already exposes (apply_<n>_tool and
// list_transformation_<n>_tool). Metamodels are unknown from names alone.
func TransformationsFromTools(names []string) []Transformation {
	var order []string
	ops := make(map[string][]string)
	add := func(name, op string) {
		if name == "" {
			return
		}
		if _, ok := ops[name]; !ok {
			order = append(order, name)
		}
		if !slices.Contains(ops[name], op) {
			ops[name] = append(ops[name], op)
		}
	}
	for _, n := range names {
		if !strings.HasSuffix(n, "_tool") {
			continue
		}
		base := strings.TrimSuffix(n, "_tool")
		switch {
		case strings.HasPrefix(base, "list_transformation_"):
			add(strings.TrimPrefix(base, "list_transformation_"), OpGet)
		case strings.HasPrefix(base, "apply_"):
			name := strings.TrimPrefix(base, "apply_")
			name = strings.TrimSuffix(name, "_transformation")
			add(name, OpApply)
		}
	}
	out := make([]Transformation, 0, len(order))
	for _, n := range order {
		supported := ops[n]
		slices.SortFunc(supported, func(a, b string) int { return opRank(a) - opRank(b) })
		t := Transformation{Name: n, Operations: supported}
		t.normalize()
		out = append(out, t)
	}
	return out
}

func opRank(op string) int {
	if op == OpApply {
		return 0
	}
	return 1
}

// ApplyToolName names the tool that runs a transformation on an input model.
func ApplyToolName(name string) string { return "apply_" + name + "_tool" }

// ListToolName names the tool that describes a transformation.
func ListToolName(name string) string { return "list_transformation_" + name + "_tool" }

// Description is the tool description of a transformation.
func (t Transformation) Description() string {
	return fmt.Sprintf("Transformation tool for %s (%s -> %s)", t.Name, t.Source, t.Target)
}

// TransformationTools builds the tool table of a transformation list.
func TransformationTools(list []Transformation) []ToolSpec {
	var specs []ToolSpec
	for _, t := range list {
		t.normalize()
		if slices.Contains(t.Operations, OpApply) {
			specs = append(specs, ToolSpec{
				Name:        ApplyToolName(t.Name),
				Description: t.Description(),
				Summary:     "Apply " + t.Name,
				Method:      "POST",
				Path:        "/transformation/" + t.Name + "/apply",
				Params:      []Param{{Name: FileArg, In: InFile, Required: true, Description: "Path of the " + t.Source + " input model"}},
				FileField:   "IN",
			})
		}
		if slices.Contains(t.Operations, OpGet) {
			specs = append(specs, ToolSpec{
				Name:        ListToolName(t.Name),
				Description: t.Description(),
				Summary:     "Get " + t.Name,
				Method:      "GET",
				Path:        "/transformation/" + t.Name,
			})
		}
	}
	return specs
}
