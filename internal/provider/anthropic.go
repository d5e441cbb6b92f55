package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jordanhubbard/mmgen/pkg/config"
)

// MessagesClient is the subset of the Anthropic SDK used here; tests
// substitute a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	msg         MessagesClient
	model       string
	temperature float64
	maxTokens   int
}

// NewAnthropicProvider creates a provider using the SDK's HTTP client.
func NewAnthropicProvider(cfg config.LLMConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY is not set")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" && !strings.Contains(cfg.Endpoint, "openai.com") {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	ac := sdk.NewClient(opts...)
	return NewAnthropicWithClient(&ac.Messages, cfg), nil
}

// NewAnthropicWithClient wraps an existing messages client.
func NewAnthropicWithClient(msg MessagesClient, cfg config.LLMConfig) *AnthropicProvider {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicProvider{
		msg:         msg,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}
}

// Complete sends prompt as a single user turn and joins the text blocks of
// the reply.
func (p *AnthropicProvider) Complete(ctx context.Context, prompt string) (string, error) {
	params := sdk.MessageNewParams{
		MaxTokens: int64(p.maxTokens),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
		Model:     sdk.Model(p.model),
	}
	if p.temperature > 0 {
		params.Temperature = sdk.Float(p.temperature)
	}

	msg, err := p.msg.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages.new: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}
