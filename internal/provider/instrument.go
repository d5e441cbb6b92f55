package provider

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jordanhubbard/mmgen/internal/metrics"
	"github.com/jordanhubbard/mmgen/internal/telemetry"
)

type instrumented struct {
	next     Completer
	provider string
	model    string
	metrics  *metrics.Metrics
}

// Instrument wraps c so every call is counted, timed and traced.
func Instrument(c Completer, providerType, model string) Completer {
	return &instrumented{next: c, provider: providerType, model: model, metrics: metrics.NewMetrics()}
}

func (i *instrumented) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "llm.complete",
		attribute.String("llm.provider", i.provider),
		attribute.String("llm.model", i.model),
		attribute.Int("llm.prompt_chars", len(prompt)),
	)
	start := time.Now()
	out, err := i.next.Complete(ctx, prompt)
	i.metrics.RecordLLMRequest(i.provider, i.model, err == nil, time.Since(start))
	telemetry.EndSpan(span, err)
	return out, err
}
