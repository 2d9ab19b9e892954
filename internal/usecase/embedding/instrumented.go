package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/topoagent/internal/domain"
	"github.com/kailas-cloud/topoagent/internal/logger"
)

// InstrumentedEmbedder wraps Embedder with a circuit breaker and logging.
// Transport metrics (requests, duration, tokens) are recorded in the transport packages.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	breaker  Breaker
}

// NewInstrumentedEmbedder wraps an embedder. breaker may be nil.
func NewInstrumentedEmbedder(inner domain.Embedder, provider, model string, breaker Breaker) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		inner:    inner,
		provider: provider,
		model:    model,
		breaker:  breaker,
	}
}

// Embed delegates to the inner embedder through the breaker.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	var result domain.EmbeddingResult
	call := func() error {
		r, err := p.inner.Embed(ctx, text)
		if err != nil {
			return err //nolint:wrapcheck // wrapped below
		}
		result = r
		return nil
	}

	var err error
	if p.breaker != nil {
		err = p.breaker.Execute(call)
	} else {
		err = call()
	}
	duration := time.Since(start)

	if err != nil {
		log.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	log.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}
