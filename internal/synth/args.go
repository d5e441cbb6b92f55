package synth

import (
	"strings"

	"github.com/jordanhubbard/mmgen/internal/registry"
)

// NoArguments is the argument string recorded for tools that take none.
const NoArguments = "none"

// ArgSpec names one tool argument and an example value shown to the model.
type ArgSpec struct {
	Name    string
	Example string
}

// knownArgs lists the argument contract of the EMF stateless server tools.
var knownArgs = map[string][]ArgSpec{
	"start_metamodel_session_stateless": {
		{"metamodel_file_path", "./ecore/Family.ecore"},
	},
	"create_object": {
		{"session_id", "abc123"},
		{"class_name", "Package"},
	},
	"update_feature": {
		{"session_id", "abc123"},
		{"class_name", "Class"},
		{"object_id", "1"},
		{"feature_name", "visibility"},
		{"value", "public"},
	},
	"inspect_instance": {
		{"session_id", "abc123"},
		{"class_name", "Package"},
		{"object_id", "1"},
	},
	"list_features": {
		{"session_id", "abc123"},
		{"class_name", "Class"},
	},
	"clear_feature": {
		{"session_id", "abc123"},
		{"class_name", "Package"},
		{"object_id", "1"},
		{"feature_name", "version"},
	},
	"delete_object": {
		{"session_id", "abc123"},
		{"class_name", "Class"},
		{"object_id", "1"},
	},
}

// ArgsFor returns the ordered argument contract of a tool. Known EMF tools
// use their fixed contract, ATL apply tools take the input model path, and
// anything else falls back to the required names reported at discovery.
func ArgsFor(t registry.Tool) []ArgSpec {
	if specs, ok := knownArgs[t.Name]; ok {
		return specs
	}
	if strings.HasPrefix(t.Name, "apply_") {
		return []ArgSpec{{"file_path", "./models/sample.xmi"}}
	}
	specs := make([]ArgSpec, 0, len(t.Required))
	for _, name := range t.Required {
		specs = append(specs, ArgSpec{Name: name})
	}
	return specs
}

// templateArguments renders the example values of specs as an argument string.
func templateArguments(specs []ArgSpec) string {
	if len(specs) == 0 {
		return NoArguments
	}
	values := make([]string, 0, len(specs))
	for _, s := range specs {
		v := s.Example
		if v == "" {
			v = s.Name
		}
		values = append(values, v)
	}
	return strings.Join(values, ", ")
}
