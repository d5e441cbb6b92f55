// Package provider adapts language model APIs to a single prompt-in,
// text-out call.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/jordanhubbard/mmgen/pkg/config"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("model returned no content")

// Completer sends one prompt and returns the model's text reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// New creates the completer selected by cfg.Type, wrapped with metrics and
// tracing.
func New(cfg config.LLMConfig) (Completer, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("no model configured for provider type %q", cfg.Type)
	}

	var c Completer
	switch cfg.Type {
	case "openai", "local", "custom":
		if cfg.Type == "openai" && cfg.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		c = NewOpenAIProvider(cfg)
	case "anthropic":
		p, err := NewAnthropicProvider(cfg)
		if err != nil {
			return nil, err
		}
		c = p
	case "ollama":
		c = NewOllamaProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Type)
	}
	return Instrument(c, cfg.Type, cfg.Model), nil
}
