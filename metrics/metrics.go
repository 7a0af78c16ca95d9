// Package metrics exposes the engine's Prometheus collectors: model
// attempts, fallback decisions, finalized receipts, and tool calls.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine collectors. A nil *Metrics is a valid no-op
// receiver, so callers can leave instrumentation unwired.
type Metrics struct {
	modelAttempts     *prometheus.CounterVec
	fallbackDecisions *prometheus.CounterVec
	receipts          *prometheus.CounterVec
	toolCalls         *prometheus.CounterVec
	attemptLatency    *prometheus.HistogramVec
}

// New registers the engine collectors with reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		modelAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "atlas_model_attempts_total",
			Help: "Model attempts by provider and outcome (success or fallback trigger).",
		}, []string{"provider", "outcome"}),

		fallbackDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "atlas_fallback_decisions_total",
			Help: "Fallback manager decisions by action.",
		}, []string{"action"}),

		receipts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "atlas_receipts_total",
			Help: "Finalized receipts by status.",
		}, []string{"status"}),

		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "atlas_tool_calls_total",
			Help: "Dispatched tool calls by tool name and status.",
		}, []string{"tool", "status"}),

		attemptLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "atlas_attempt_latency_seconds",
			Help: "Model attempt wall time by provider.",
			// Adapter timeouts run up to 120s, so the default buckets
			// (capped at 10s) would flatten the tail.
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 11),
		}, []string{"provider"}),
	}
}

// ObserveAttempt records one model attempt. Outcome is "success" or the
// fallback trigger name.
func (m *Metrics) ObserveAttempt(provider, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.modelAttempts.WithLabelValues(provider, outcome).Inc()
	m.attemptLatency.WithLabelValues(provider).Observe(seconds)
}

// ObserveFallbackDecision records one fallback decision by action.
func (m *Metrics) ObserveFallbackDecision(action string) {
	if m == nil {
		return
	}
	m.fallbackDecisions.WithLabelValues(action).Inc()
}

// ObserveReceipt records a finalized receipt by status.
func (m *Metrics) ObserveReceipt(status string) {
	if m == nil {
		return
	}
	m.receipts.WithLabelValues(status).Inc()
}

// ObserveToolCall records a dispatched tool call by name and status.
func (m *Metrics) ObserveToolCall(tool, status string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, status).Inc()
}
