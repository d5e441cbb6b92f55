// Package synth turns tool workflows into natural-language instructions by
// prompting a language model with seed exemplars and the tools' argument
// contracts.
package synth

import (
	"context"
	"fmt"
	"math/rand"
	"text/template"

	"github.com/jordanhubbard/mmgen/internal/dataset"
	"github.com/jordanhubbard/mmgen/internal/provider"
	"github.com/jordanhubbard/mmgen/internal/registry"
	"github.com/jordanhubbard/mmgen/internal/seeds"
	"github.com/jordanhubbard/mmgen/internal/workflow"
)

const (
	multiSeeds  = 2
	singleSeeds = 3
)

// Synthesizer produces one candidate record per call.
type Synthesizer struct {
	llm              provider.Completer
	seeds            *seeds.Store
	budget           *Budget
	rng              *rand.Rand
	tools            map[string]registry.Tool
	domain           string
	workflowType     string
	templateFallback bool
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithDomain sets the domain phrase used in prompts.
func WithDomain(domain string) Option {
	return func(s *Synthesizer) { s.domain = domain }
}

// WithWorkflowType stamps produced records with a workflow type.
func WithWorkflowType(t string) Option {
	return func(s *Synthesizer) { s.workflowType = t }
}

// WithTemplateFallback fills arguments from the tool's argument template when
// the model reply is not JSON or carries no usable arguments for a tool.
func WithTemplateFallback(enabled bool) Option {
	return func(s *Synthesizer) { s.templateFallback = enabled }
}

// WithRand sets the random source used to pick seed exemplars.
func WithRand(rng *rand.Rand) Option {
	return func(s *Synthesizer) { s.rng = rng }
}

// New creates a Synthesizer. store may be nil, in which case prompts carry no
// exemplars. A nil budget means unlimited calls.
func New(llm provider.Completer, store *seeds.Store, budget *Budget, tools []registry.Tool, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		llm:    llm,
		seeds:  store,
		budget: budget,
		tools:  make(map[string]registry.Tool, len(tools)),
		domain: "tool usage",
	}
	for _, t := range tools {
		s.tools[t.Name] = t
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.budget == nil {
		s.budget = NewBudget(0)
	}
	if s.rng == nil {
		s.rng = workflow.NewRand(0)
	}
	return s
}

// Budget returns the call budget shared by this synthesizer.
func (s *Synthesizer) Budget() *Budget { return s.budget }

// Multi synthesizes an instruction that chains the two tools of pair.
func (s *Synthesizer) Multi(ctx context.Context, pair workflow.Pair, pattern string) (dataset.Record, error) {
	first, second := s.tool(pair[0]), s.tool(pair[1])
	specs := [][]ArgSpec{ArgsFor(first), ArgsFor(second)}

	var exemplars []seeds.Seed
	if s.seeds != nil {
		exemplars = s.seeds.Bank().ForPair(first.Name, second.Name, multiSeeds, s.rng)
	}
	data := promptData{
		Domain:  s.domain,
		Pattern: pattern,
		First:   promptTool{Name: first.Name, Description: first.Description, Args: specs[0]},
		Second:  promptTool{Name: second.Name, Description: second.Description, Args: specs[1]},
		Seeds:   exemplars,
	}
	resp, err := s.ask(ctx, multiPrompt, data)
	if err != nil {
		return dataset.Record{}, err
	}

	args := s.arguments(resp, []string{first.Name, second.Name}, specs)
	return dataset.Record{
		Instruction: resp.Instruction,
		RelevantAPIs: []dataset.API{
			{APIName: first.Name, Arguments: args[0]},
			{APIName: second.Name, Arguments: args[1]},
		},
		Pattern:      pattern,
		WorkflowType: s.workflowType,
	}, nil
}

// Single synthesizes an instruction answered by one call of tool.
func (s *Synthesizer) Single(ctx context.Context, tool string) (dataset.Record, error) {
	t := s.tool(tool)
	specs := [][]ArgSpec{ArgsFor(t)}

	var exemplars []seeds.Seed
	if s.seeds != nil {
		exemplars = s.seeds.Bank().ForTool(t.Name, singleSeeds, s.rng)
	}
	data := promptData{
		Domain: s.domain,
		First:  promptTool{Name: t.Name, Description: t.Description, Args: specs[0]},
		Seeds:  exemplars,
	}
	resp, err := s.ask(ctx, singlePrompt, data)
	if err != nil {
		return dataset.Record{}, err
	}

	args := s.arguments(resp, []string{t.Name}, specs)
	return dataset.Record{
		Instruction:  resp.Instruction,
		RelevantAPIs: []dataset.API{{APIName: t.Name, Arguments: args[0]}},
		WorkflowType: s.workflowType,
	}, nil
}

// ask renders the prompt, spends one unit of budget and parses the reply.
func (s *Synthesizer) ask(ctx context.Context, t *template.Template, data promptData) (Response, error) {
	prompt, err := renderPrompt(t, data)
	if err != nil {
		return Response{}, fmt.Errorf("failed to render prompt: %w", err)
	}
	if err := s.budget.Take(); err != nil {
		return Response{}, err
	}
	raw, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		return Response{}, fmt.Errorf("llm call failed: %w", err)
	}
	return ParseResponse(raw)
}

// arguments picks one argument string per tool. With template fallback on,
// any tool left without values gets its template.
func (s *Synthesizer) arguments(resp Response, tools []string, specs [][]ArgSpec) []string {
	out := assign(resp, tools, specs)
	if s.templateFallback {
		for i := range out {
			if out[i] == "" {
				out[i] = templateArguments(specs[i])
			}
		}
	}
	return out
}

func (s *Synthesizer) tool(name string) registry.Tool {
	if t, ok := s.tools[name]; ok {
		return t
	}
	return registry.Tool{Name: name}
}
