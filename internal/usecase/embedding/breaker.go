package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kailas-cloud/topoagent/internal/domain"
)

// Breaker guards provider calls.
type Breaker interface {
	Execute(fn func() error) error
}

type circuitBreaker struct {
	cb *gobreaker.TwoStepCircuitBreaker
}

// NewBreaker opens after maxFailures consecutive provider failures and
// half-opens after openTimeout.
//
// A call that fails with context.Canceled is not reported in the closed state,
// so caller cancellations neither count as failures nor reset the failure
// streak. A cancelled half-open trial counts as a failure, which reopens the
// breaker and frees the trial slot.
func NewBreaker(name string, maxFailures uint32, openTimeout time.Duration, onChange func(from, to string)) Breaker {
	if maxFailures == 0 {
		maxFailures = 5
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	}
	if onChange != nil {
		settings.OnStateChange = func(_ string, from, to gobreaker.State) {
			onChange(from.String(), to.String())
		}
	}
	return &circuitBreaker{cb: gobreaker.NewTwoStepCircuitBreaker(settings)}
}

// Execute runs fn through the breaker. A rejected call wraps domain.ErrEmbeddingProviderError.
func (b *circuitBreaker) Execute(fn func() error) (err error) {
	done, err := b.cb.Allow()
	if err != nil {
		return fmt.Errorf("%w: breaker (%s): %w", domain.ErrEmbeddingProviderError, b.cb.Name(), err)
	}
	halfOpen := b.cb.State() == gobreaker.StateHalfOpen

	defer func() {
		if r := recover(); r != nil {
			done(false)
			panic(r)
		}
	}()

	err = fn()
	switch {
	case err == nil:
		done(true)
	case errors.Is(err, context.Canceled):
		if halfOpen {
			done(false)
		}
	default:
		done(false)
	}
	return err //nolint:wrapcheck // fn errors pass through untouched
}
