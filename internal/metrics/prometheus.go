package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Exporter mirrors tracker completions as Prometheus metrics. Attach
// it to a Collector with SetExporter; the collector feeds it as
// API-call and tool-call trackers end.
type Exporter struct {
	// LLMRequestCounter counts LLM requests by model and status.
	LLMRequestCounter *prometheus.CounterVec

	// LLMRequestDuration measures LLM call latency in seconds.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed tracks token consumption by model and type
	// (prompt|completion|cache_read|cache_creation).
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations by name and status.
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	ToolExecutionDuration *prometheus.HistogramVec
}

// NewExporter creates and registers the metric set against reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry.
func NewExporter(reg prometheus.Registerer) *Exporter {
	factory := promauto.With(reg)
	return &Exporter{
		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forge_llm_requests_total",
				Help: "Total number of LLM requests by model and status",
			},
			[]string{"model", "status"},
		),

		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forge_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"model"},
		),

		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forge_llm_tokens_total",
				Help: "Total number of tokens used by model and type",
			},
			[]string{"model", "type"},
		),

		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forge_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forge_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),
	}
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func (e *Exporter) observeAPICall(m *APICallMetric) {
	model := m.Model
	if model == "" {
		model = "unknown"
	}
	e.LLMRequestCounter.WithLabelValues(model, statusLabel(m.Success)).Inc()
	e.LLMRequestDuration.WithLabelValues(model).Observe(m.Duration)
	e.LLMTokensUsed.WithLabelValues(model, "prompt").Add(float64(m.PromptTokens))
	e.LLMTokensUsed.WithLabelValues(model, "completion").Add(float64(m.CompletionTokens))
	e.LLMTokensUsed.WithLabelValues(model, "cache_read").Add(float64(m.CacheReadTokens))
	e.LLMTokensUsed.WithLabelValues(model, "cache_creation").Add(float64(m.CacheCreationTokens))
}

func (e *Exporter) observeToolCall(m *ToolCallMetric) {
	e.ToolExecutionCounter.WithLabelValues(m.ToolName, statusLabel(m.Success)).Inc()
	e.ToolExecutionDuration.WithLabelValues(m.ToolName).Observe(m.Duration)
}
