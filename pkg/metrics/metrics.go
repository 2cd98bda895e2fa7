// Package metrics exposes Prometheus collectors for pipeline outcomes. Each
// Metrics value owns a private registry so tests and embedders stay isolated;
// nothing touches the global default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline collectors.
type Metrics struct {
	registry *prometheus.Registry

	ResponsesTotal      *prometheus.CounterVec
	AdmissionDenied     *prometheus.CounterVec
	GuardrailViolations *prometheus.CounterVec
	LLMRequestSeconds   *prometheus.HistogramVec
	LLMTokensTotal      prometheus.Counter
	SendFailuresTotal   prometheus.Counter
	PollErrorsTotal     prometheus.Counter
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ResponsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replytheory",
			Name:      "responses_total",
			Help:      "Responses produced, by source (ai, rules, fallback).",
		}, []string{"source"}),
		AdmissionDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replytheory",
			Name:      "admission_denied_total",
			Help:      "Replies suppressed by the rate limiter, by failing constraint.",
		}, []string{"constraint"}),
		GuardrailViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replytheory",
			Name:      "guardrail_violations_total",
			Help:      "Guardrail violations recorded, by violation type.",
		}, []string{"type"}),
		LLMRequestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "replytheory",
			Name:      "llm_request_seconds",
			Help:      "Provider call latency, by provider and status.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"provider", "status"}),
		LLMTokensTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "replytheory",
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed across all provider calls.",
		}),
		SendFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "replytheory",
			Name:      "send_failures_total",
			Help:      "Outbound sends that returned an error.",
		}),
		PollErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "replytheory",
			Name:      "poll_errors_total",
			Help:      "Receiver polls that returned an error.",
		}),
	}

	m.registry.MustRegister(
		m.ResponsesTotal,
		m.AdmissionDenied,
		m.GuardrailViolations,
		m.LLMRequestSeconds,
		m.LLMTokensTotal,
		m.SendFailuresTotal,
		m.PollErrorsTotal,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for embedders that add their own
// collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
