// Package dataset holds instruction records, their validation and the
// on-disk checkpoint format.
package dataset

import "strings"

// API is one tool invocation referenced by an instruction.
type API struct {
	APIName   string `json:"api_name"`
	Arguments string `json:"arguments"`
}

// Valid reports whether both the tool name and its arguments are present.
func (a API) Valid() bool {
	return strings.TrimSpace(a.APIName) != "" && strings.TrimSpace(a.Arguments) != ""
}

// Record is one dataset example.
type Record struct {
	Instruction  string `json:"instruction"`
	RelevantAPIs []API  `json:"relevant_apis"`
	Pattern      string `json:"pattern,omitempty"`
	WorkflowType string `json:"workflow_type,omitempty"`
}

// Preview returns the first n characters of the instruction on one line.
func (r Record) Preview(n int) string {
	s := strings.ReplaceAll(r.Instruction, "\n", " ")
	runes := []rune(s)
	if len(runes) > n {
		return string(runes[:n])
	}
	return s
}

// CountBy tallies records by the value key returns, skipping empty keys.
func CountBy(records []Record, key func(Record) string) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		if k := key(r); k != "" {
			counts[k]++
		}
	}
	return counts
}

// ByPattern keys a record by its pattern label.
func ByPattern(r Record) string { return r.Pattern }

// ByTool keys a record by the first tool it calls.
func ByTool(r Record) string {
	if len(r.RelevantAPIs) == 0 {
		return ""
	}
	return r.RelevantAPIs[0].APIName
}
