package synth

import (
	"strings"
	"text/template"

	"github.com/jordanhubbard/mmgen/internal/seeds"
)

var promptFuncs = template.FuncMap{
	"argnames":   argNames,
	"argexample": argExample,
}

var multiPrompt = template.Must(template.New("multi").Funcs(promptFuncs).Parse(
	`Generate a practical 2-step instruction for a {{.Domain}} workflow.

Step 1 Tool: {{.First.Name}}
{{- if .First.Description}}
Step 1 Description: {{.First.Description}}{{end}}
Step 1 Arguments: {{argnames .First.Args}}
Step 2 Tool: {{.Second.Name}}
{{- if .Second.Description}}
Step 2 Description: {{.Second.Description}}{{end}}
Step 2 Arguments: {{argnames .Second.Args}}
Workflow Type: {{.Pattern}}

Guidelines:
1. The instruction should logically chain the two operations
2. Use concrete identifiers, file paths and names
3. Make the sequence realistic and practical
4. Do not mention tool names
{{- if .Seeds}}

Example 2-step workflows:
{{- range .Seeds}}
- Instruction: {{.Instruction}}
  Functions: {{.Pattern}}
{{- end}}{{end}}

OUTPUT FORMAT - Return ONLY valid JSON, no text before or after:
{"instruction": "your instruction here", "relevant_apis": [{"api_name": "{{.First.Name}}", "arguments": {{argexample .First.Args}}}, {"api_name": "{{.Second.Name}}", "arguments": {{argexample .Second.Args}}}]}

Generate one cohesive instruction for this 2-step workflow:`))

var singlePrompt = template.Must(template.New("single").Funcs(promptFuncs).Parse(
	`Generate an INSTRUCTION for this {{.Domain}} tool.

Tool: {{.First.Name}}
Description: {{.First.Description}}
{{- if .Seeds}}

Example instructions:
{{- range .Seeds}}
- {{.Instruction}}
{{- end}}{{end}}

Required Arguments (provide as JSON):
{{argexample .First.Args}}

RULE: Use different values for names, identifiers and paths. Do not repeat the same values.

OUTPUT FORMAT - Return ONLY valid JSON (no extra text, no trailing commas, no garbage after the closing brace):
{"instruction": "your instruction here", "arguments": {"arg1": "value1", "arg2": "value2"}}

Generate one instruction:`))

type promptTool struct {
	Name        string
	Description string
	Args        []ArgSpec
}

type promptData struct {
	Domain  string
	Pattern string
	First   promptTool
	Second  promptTool
	Seeds   []seeds.Seed
}

func renderPrompt(t *template.Template, data promptData) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func argNames(specs []ArgSpec) string {
	if len(specs) == 0 {
		return "(none)"
	}
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return strings.Join(names, ", ")
}

func argExample(specs []ArgSpec) string {
	if len(specs) == 0 {
		return "{}"
	}
	parts := make([]string, len(specs))
	for i, s := range specs {
		ex := s.Example
		if ex == "" {
			ex = "..."
		}
		parts[i] = `"` + s.Name + `": "` + ex + `"`
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
