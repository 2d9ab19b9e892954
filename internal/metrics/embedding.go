package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Embedding holds embedding provider metrics. A nil *Embedding records nothing.
type Embedding struct {
	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	tokens     *prometheus.CounterVec
	errors     *prometheus.CounterVec
	cacheTotal *prometheus.CounterVec
}

// NewEmbedding creates embedding metrics and registers them on reg.
func NewEmbedding(reg prometheus.Registerer) *Embedding {
	return &Embedding{
		requests: registerCounterVec(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_requests_total",
				Help:      "Total number of embedding requests",
			},
			[]string{"provider", "model", "status"},
		)),
		duration: registerHistogramVec(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "embedding_request_duration_seconds",
				Help:      "Embedding request duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider", "model"},
		)),
		tokens: registerCounterVec(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_tokens_total",
				Help:      "Total embedding tokens consumed",
			},
			[]string{"provider", "model", "type"},
		)),
		errors: registerCounterVec(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_errors_total",
				Help:      "Total embedding errors",
			},
			[]string{"provider", "model", "error_type"},
		)),
		cacheTotal: registerCounterVec(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_cache_total",
				Help:      "Embedding cache hits and misses",
			},
			[]string{"result"}, // "hit" / "miss"
		)),
	}
}

// ObserveSuccess records a successful provider call and its token usage.
func (m *Embedding) ObserveSuccess(provider, model string, d time.Duration, promptTokens, totalTokens int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(provider, model, "success").Inc()
	m.duration.WithLabelValues(provider, model).Observe(d.Seconds())
	if totalTokens > 0 {
		m.tokens.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
		m.tokens.WithLabelValues(provider, model, "total").Add(float64(totalTokens))
	}
}

// ObserveError records a failed provider call classified by errorType.
func (m *Embedding) ObserveError(provider, model, errorType string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(provider, model, "error").Inc()
	m.errors.WithLabelValues(provider, model, errorType).Inc()
	m.duration.WithLabelValues(provider, model).Observe(d.Seconds())
}

// CacheTotal returns the cache hit/miss counter, or nil.
func (m *Embedding) CacheTotal() *prometheus.CounterVec {
	if m == nil {
		return nil
	}
	return m.cacheTotal
}
