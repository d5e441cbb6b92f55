package synth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jordanhubbard/mmgen/internal/provider"
)

// ErrNoInstruction is returned when no instruction can be recovered from a
// model reply.
var ErrNoInstruction = errors.New("no instruction in model output")

// Arg is one argument value. Key is empty for positional values.
type Arg struct {
	Key   string
	Value string
	raw   json.RawMessage
}

// Call is the argument list the model proposed for one tool.
type Call struct {
	APIName string
	Args    []Arg
}

// Response is a parsed model reply.
type Response struct {
	Instruction string
	Calls       []Call
	// Fallback is set when the reply was not JSON and the instruction was
	// taken from its first line.
	Fallback bool
}

// ParseResponse extracts the instruction and proposed arguments from a model
// reply. Accepted shapes, optionally inside a code fence and surrounded by
// prose:
//
//	{"instruction": "...", "arguments": {"k": "v"}}
//	{"instruction": "...", "arguments": "{\"k\": \"v\"} trailing text"}
//	{"instruction": "...", "relevant_apis": [{"api_name": "t", "arguments": {...}}]}
//
// Anything else yields the first non-empty line as the instruction.
func ParseResponse(raw string) (Response, error) {
	text := provider.StripFences(raw)

	obj, err := decodeObject(text)
	if err != nil {
		line := provider.FirstLine(text)
		if line == "" {
			return Response{}, ErrNoInstruction
		}
		return Response{Instruction: line, Fallback: true}, nil
	}

	var resp Response
	if v, ok := obj["instruction"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			resp.Instruction = strings.TrimSpace(s)
		}
	}
	if resp.Instruction == "" {
		return Response{}, ErrNoInstruction
	}

	if v, ok := obj["relevant_apis"]; ok {
		var apis []struct {
			APIName   string          `json:"api_name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal(v, &apis); err == nil {
			for _, a := range apis {
				resp.Calls = append(resp.Calls, Call{APIName: a.APIName, Args: parseArgs(a.Arguments)})
			}
			return resp, nil
		}
	}
	if v, ok := obj["arguments"]; ok {
		resp.Calls = []Call{{Args: parseArgs(v)}}
	}
	return resp, nil
}

// decodeObject parses the outermost {...} span of text.
func decodeObject(text string) (map[string]json.RawMessage, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// parseArgs reads an arguments value: an object, a string holding an object
// (anything after its last closing brace is dropped), or a plain string.
// Unparseable values yield no arguments.
func parseArgs(raw json.RawMessage) []Arg {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	switch raw[0] {
	case '{':
		args, err := orderedObject(raw)
		if err != nil {
			return nil
		}
		return args
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "{") {
			if last := strings.LastIndexByte(s, '}'); last >= 0 {
				s = s[:last+1]
			}
			args, err := orderedObject([]byte(s))
			if err != nil {
				return nil
			}
			return args
		}
		if s == "" {
			return nil
		}
		return []Arg{{Value: s}}
	default:
		return []Arg{{Value: string(raw)}}
	}
}

// orderedObject decodes a JSON object keeping key order.
func orderedObject(data []byte) ([]Arg, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object")
	}
	var args []Arg
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key")
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		args = append(args, Arg{Key: key, Value: scalar(v), raw: v})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return args, nil
}

// scalar renders a JSON value as argument text: strings unquoted, everything
// else compacted.
func scalar(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return string(v)
	}
	return buf.String()
}

// nested reports whether a is an object value and returns its fields.
func (a Arg) nested() ([]Arg, bool) {
	raw := bytes.TrimSpace(a.raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	args, err := orderedObject(raw)
	if err != nil {
		return nil, false
	}
	return args, true
}

// render joins argument values for a tool. Values named by specs come first
// in spec order, then any remaining values in reply order.
func render(args []Arg, specs []ArgSpec) string {
	if len(args) == 0 {
		if len(specs) == 0 {
			return NoArguments
		}
		return ""
	}
	used := make([]bool, len(args))
	var values []string
	for _, s := range specs {
		for i, a := range args {
			if !used[i] && a.Key == s.Name {
				used[i] = true
				values = append(values, a.Value)
				break
			}
		}
	}
	for i, a := range args {
		if !used[i] {
			values = append(values, a.Value)
		}
	}
	return strings.Join(values, ", ")
}

// assign maps the parsed calls onto the workflow tools and returns one
// argument string per tool.
func assign(resp Response, tools []string, specs [][]ArgSpec) []string {
	out := make([]string, len(tools))
	switch {
	case len(resp.Calls) == 0:
		for i := range tools {
			out[i] = render(nil, specs[i])
		}
	case len(resp.Calls) > 1 || resp.Calls[0].APIName != "":
		used := make([]bool, len(resp.Calls))
		for i, tool := range tools {
			idx := -1
			for j, c := range resp.Calls {
				if !used[j] && c.APIName == tool {
					idx = j
					break
				}
			}
			if idx < 0 && i < len(resp.Calls) && !used[i] {
				idx = i
			}
			if idx < 0 {
				out[i] = render(nil, specs[i])
				continue
			}
			used[idx] = true
			out[i] = render(resp.Calls[idx].Args, specs[i])
		}
	case len(tools) == 1:
		out[0] = render(resp.Calls[0].Args, specs[0])
	default:
		out = splitFlat(resp.Calls[0].Args, tools, specs)
	}
	return out
}

// splitFlat distributes one arguments object across several tools, either
// keyed by tool name or by argument name.
func splitFlat(args []Arg, tools []string, specs [][]ArgSpec) []string {
	out := make([]string, len(tools))
	byTool := make(map[string][]Arg)
	for _, a := range args {
		if fields, ok := a.nested(); ok {
			byTool[a.Key] = fields
		}
	}
	for i, tool := range tools {
		if fields, ok := byTool[tool]; ok {
			out[i] = render(fields, specs[i])
			continue
		}
		var picked []Arg
		for _, s := range specs[i] {
			for _, a := range args {
				if a.Key == s.Name {
					picked = append(picked, a)
					break
				}
			}
		}
		out[i] = render(picked, specs[i])
	}
	return out
}
