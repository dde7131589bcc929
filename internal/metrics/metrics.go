// Package metrics defines the gateway's Prometheus metrics: intent
// classification outcomes, processing latency, cache efficiency, active
// conversations, LLM call outcomes, and API errors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every Prometheus collector the gateway exposes on /metrics.
type Metrics struct {
	IntentTotal        *prometheus.CounterVec
	ProcessingSeconds   *prometheus.HistogramVec
	CacheHitsTotal      *prometheus.CounterVec
	ActiveConversations prometheus.Gauge
	LLMRequestsTotal    *prometheus.CounterVec
	APIErrorsTotal      *prometheus.CounterVec
}

// New creates and registers the gateway's metrics against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IntentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intent_total",
			Help: "Count of intent classifications by intent and outcome status.",
		}, []string{"intent", "status"}),

		ProcessingSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "processing_seconds",
			Help:    "AI processor end-to-end latency per intent.",
			Buckets: prometheus.DefBuckets,
		}, []string{"intent"}),

		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Count of cache lookups by cache type and result (hit/miss).",
		}, []string{"type", "result"}),

		ActiveConversations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_conversations",
			Help: "Number of conversations with activity within the last TTL window.",
		}),

		LLMRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Count of LLM provider calls by model and outcome status.",
		}, []string{"model", "status"}),

		APIErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Count of API errors by endpoint and error type.",
		}, []string{"endpoint", "error_type"}),
	}

	if reg != nil {
		reg.MustRegister(m.IntentTotal, m.ProcessingSeconds, m.CacheHitsTotal, m.ActiveConversations, m.LLMRequestsTotal, m.APIErrorsTotal)
	}

	return m
}
