package workflow

import (
	"fmt"
	"slices"
)

// DefaultCap bounds the number of pairs built per pattern.
const DefaultCap = 120

// Pattern is one two-step workflow shape, for example modify>inspect.
type Pattern struct {
	From        Category `yaml:"from"`
	To          Category `yaml:"to"`
	Cap         int      `yaml:"cap,omitempty"`
	ExcludeSelf *bool    `yaml:"exclude_self,omitempty"`
}

// Label returns the "<from>><to>" pattern label stored on records.
func (p Pattern) Label() string {
	return string(p.From) + ">" + string(p.To)
}

// Recipe describes how workflows are built for one tool server.
type Recipe struct {
	Name         string    `yaml:"name"`
	Server       string    `yaml:"server"`
	Domain       string    `yaml:"domain"`
	WorkflowType string    `yaml:"workflow_type"`
	Rules        []Rule    `yaml:"rules"`
	Patterns     []Pattern `yaml:"patterns"`
	Cap          int       `yaml:"cap"`
	ExcludeSelf  bool      `yaml:"exclude_self"`
	Exclude      []string  `yaml:"exclude"`
}

// Validate checks that the recipe can build workflows.
func (r *Recipe) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("recipe has no name")
	}
	if r.Server == "" {
		return fmt.Errorf("recipe %s: server is required", r.Name)
	}
	if len(r.Rules) == 0 {
		return fmt.Errorf("recipe %s: at least one classifier rule is required", r.Name)
	}
	if len(r.Patterns) == 0 {
		return fmt.Errorf("recipe %s: at least one pattern is required", r.Name)
	}
	seen := make(map[string]bool)
	for _, p := range r.Patterns {
		if p.From == "" || p.To == "" {
			return fmt.Errorf("recipe %s: pattern needs both from and to", r.Name)
		}
		if seen[p.Label()] {
			return fmt.Errorf("recipe %s: duplicate pattern %s", r.Name, p.Label())
		}
		seen[p.Label()] = true
	}
	return nil
}

// Labels returns the pattern labels in recipe order.
func (r *Recipe) Labels() []string {
	labels := make([]string, len(r.Patterns))
	for i, p := range r.Patterns {
		labels[i] = p.Label()
	}
	return labels
}

// Usable filters out tools the recipe excludes.
func (r *Recipe) Usable(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !slices.Contains(r.Exclude, n) {
			out = append(out, n)
		}
	}
	return out
}

// Classifier returns a classifier built from the recipe rules.
func (r *Recipe) Classifier() *Classifier {
	return NewClassifier(r.Rules)
}

func (r *Recipe) capFor(p Pattern) int {
	if p.Cap > 0 {
		return p.Cap
	}
	if r.Cap > 0 {
		return r.Cap
	}
	return DefaultCap
}

func (r *Recipe) excludeSelf(p Pattern) bool {
	if p.ExcludeSelf != nil {
		return *p.ExcludeSelf
	}
	return r.ExcludeSelf
}

// EMFRecipe pairs modify and inspect tools of the EMF server.
func EMFRecipe() *Recipe {
	return &Recipe{
		Name:         "emf",
		Server:       "emf_server",
		Domain:       "EMF metamodel instance manipulation",
		WorkflowType: "emf_multi_tool",
		Rules:        EMFRules,
		Patterns: []Pattern{
			{From: CategoryModify, To: CategoryModify},
			{From: CategoryModify, To: CategoryInspect},
			{From: CategoryInspect, To: CategoryModify},
			{From: CategoryInspect, To: CategoryInspect},
		},
		Cap:         DefaultCap,
		ExcludeSelf: true,
		Exclude:     []string{"get_session_info", "list_session_objects"},
	}
}

// ATLRecipe pairs apply and get tools of the ATL server.
func ATLRecipe() *Recipe {
	same := true
	return &Recipe{
		Name:         "atl",
		Server:       "atl_server",
		Domain:       "ATL model transformation",
		WorkflowType: "atl_multi_tool",
		Rules:        ATLRules,
		Patterns: []Pattern{
			{From: CategoryApply, To: CategoryApply, ExcludeSelf: &same},
			{From: CategoryApply, To: CategoryGet},
			{From: CategoryGet, To: CategoryGet, ExcludeSelf: &same},
			{From: CategoryGet, To: CategoryApply},
		},
		Cap: DefaultCap,
	}
}

// Presets returns the built-in recipes by name.
func Presets() map[string]*Recipe {
	return map[string]*Recipe{
		"emf": EMFRecipe(),
		"atl": ATLRecipe(),
	}
}
