package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Family distinguishes node-level from tool-level invocations.
type Family string

const (
	// FamilyNode covers orchestration graph nodes.
	FamilyNode Family = "node"
	// FamilyTool covers tools invoked by the tool node.
	FamilyTool Family = "tool"
)

// Invocation statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Recorder is the sink for invocation metrics. Implementations must be safe for concurrent use.
type Recorder interface {
	ObserveInvocation(family Family, name, status string, d time.Duration)
}

// NopRecorder discards everything.
type NopRecorder struct{}

// ObserveInvocation implements Recorder.
func (NopRecorder) ObserveInvocation(Family, string, string, time.Duration) {}

// Orchestrator records node and tool invocations in Prometheus.
type Orchestrator struct {
	nodeInvocations *prometheus.CounterVec
	nodeLatency     *prometheus.HistogramVec
	toolInvocations *prometheus.CounterVec
	toolLatency     *prometheus.HistogramVec
}

// NewOrchestrator creates the node/tool metric families and registers them on reg.
func NewOrchestrator(reg prometheus.Registerer) *Orchestrator {
	return &Orchestrator{
		nodeInvocations: registerCounterVec(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_invocations_total",
				Help:      "Number of times an orchestrator node runs",
			},
			[]string{"node", "status"}, // status: ok | error
		)),
		nodeLatency: registerHistogramVec(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "node_duration_seconds",
				Help:      "Execution time of orchestrator nodes in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"node"},
		)),
		toolInvocations: registerCounterVec(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_invocations_total",
				Help:      "Number of times an orchestrator tool is invoked",
			},
			[]string{"tool", "status"},
		)),
		toolLatency: registerHistogramVec(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_duration_seconds",
				Help:      "Execution time of orchestrator tools in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool"},
		)),
	}
}

// ObserveInvocation implements Recorder.
func (o *Orchestrator) ObserveInvocation(family Family, name, status string, d time.Duration) {
	switch family {
	case FamilyNode:
		o.nodeInvocations.WithLabelValues(name, status).Inc()
		o.nodeLatency.WithLabelValues(name).Observe(d.Seconds())
	case FamilyTool:
		o.toolInvocations.WithLabelValues(name, status).Inc()
		o.toolLatency.WithLabelValues(name).Observe(d.Seconds())
	}
}
