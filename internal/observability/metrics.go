package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects orchestration metrics.
//
// Tracked series:
//   - LLM request counts and latency per model and status
//   - Tool execution counts and latency per tool and outcome
//   - Throttle rejections per tool
//   - Loop turns consumed per request
type Metrics struct {
	// LLMRequestCounter counts provider requests.
	// Labels: model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMRequestDuration measures provider call latency in seconds.
	// Labels: model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRetries counts retry attempts against the provider.
	// Labels: model
	LLMRetries *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool, outcome (success|error|blocked)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool
	ToolExecutionDuration *prometheus.HistogramVec

	// ThrottleRejections counts mutation throttle denials.
	// Labels: tool
	ThrottleRejections *prometheus.CounterVec

	// LoopTurns observes how many turns each orchestrator run consumed.
	LoopTurns prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates metrics registered on a dedicated registry so tests can
// construct instances independently.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		LLMRequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dealdesk",
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Provider chat-completion requests by model and status.",
		}, []string{"model", "status"}),
		LLMRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dealdesk",
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "Provider call latency.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"model"}),
		LLMRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dealdesk",
			Subsystem: "llm",
			Name:      "retries_total",
			Help:      "Retry attempts against the provider.",
		}, []string{"model"}),
		ToolExecutionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dealdesk",
			Subsystem: "tools",
			Name:      "executions_total",
			Help:      "Tool invocations by outcome.",
		}, []string{"tool", "outcome"}),
		ToolExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dealdesk",
			Subsystem: "tools",
			Name:      "execution_duration_seconds",
			Help:      "Tool execution time.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"tool"}),
		ThrottleRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dealdesk",
			Subsystem: "guardrails",
			Name:      "throttle_rejections_total",
			Help:      "Mutation throttle denials.",
		}, []string{"tool"}),
		LoopTurns: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dealdesk",
			Subsystem: "agent",
			Name:      "loop_turns",
			Help:      "Turns consumed per orchestrator run.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6},
		}),
		registry: reg,
	}
}

// Registry returns the underlying Prometheus registry for exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
