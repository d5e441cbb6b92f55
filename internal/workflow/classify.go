package workflow

import "strings"

// Category labels a tool by the kind of step it performs in a workflow.
type Category string

const (
	CategorySession Category = "session"
	CategoryModify  Category = "modify"
	CategoryInspect Category = "inspect"
	CategoryApply   Category = "apply"
	CategoryGet     Category = "get"
	CategoryUnknown Category = "unknown"
)

// Rule maps tool names containing any of Contains to a category.
type Rule struct {
	Category Category `yaml:"category"`
	Contains []string `yaml:"contains"`
}

// Classifier assigns categories by ordered substring rules; the first
// matching rule wins.
type Classifier struct {
	rules []Rule
}

// EMFRules classify tools of the EMF metamodel server. Session management
// is matched first so start_metamodel_session_* never lands in modify.
var EMFRules = []Rule{
	{Category: CategorySession, Contains: []string{"start_metamodel", "session"}},
	{Category: CategoryModify, Contains: []string{"create", "update", "delete", "clear"}},
	{Category: CategoryInspect, Contains: []string{"list", "inspect"}},
}

// ATLRules classify tools of the ATL transformation server.
var ATLRules = []Rule{
	{Category: CategoryApply, Contains: []string{"apply"}},
	{Category: CategoryGet, Contains: []string{"get", "list"}},
}

// NewClassifier creates a classifier from rules evaluated in order.
func NewClassifier(rules []Rule) *Classifier {
	return &Classifier{rules: append([]Rule(nil), rules...)}
}

// Classify returns the category of a tool name, or CategoryUnknown.
func (c *Classifier) Classify(name string) Category {
	for _, r := range c.rules {
		for _, sub := range r.Contains {
			if sub != "" && strings.Contains(name, sub) {
				return r.Category
			}
		}
	}
	return CategoryUnknown
}

// ClassifyAll groups names by category, preserving input order within
// each group.
func (c *Classifier) ClassifyAll(names []string) map[Category][]string {
	groups := make(map[Category][]string)
	for _, n := range names {
		cat := c.Classify(n)
		groups[cat] = append(groups[cat], n)
	}
	return groups
}

// Operation is the finer-grained identity of an EMF tool used when
// synthesizing single-tool instructions.
type Operation struct {
	ToolID string
	Op     string
}

// DeriveOperation maps an EMF tool name to its tool id and operation.
func DeriveOperation(name string) Operation {
	switch {
	case strings.Contains(name, "start_metamodel_session"):
		return Operation{ToolID: "session_start", Op: "start_session"}
	case strings.Contains(name, "create_object"):
		return Operation{ToolID: "object_create", Op: "create"}
	case strings.Contains(name, "update_feature"), strings.Contains(name, "clear_feature"):
		return Operation{ToolID: "object_modify", Op: "update"}
	case strings.Contains(name, "inspect_instance"), strings.Contains(name, "list_features"):
		return Operation{ToolID: "object_inspect", Op: "inspect"}
	case strings.Contains(name, "delete_object"):
		return Operation{ToolID: "object_delete", Op: "delete"}
	default:
		return Operation{ToolID: name, Op: "unknown"}
	}
}
