// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// StreamDuration tracks answer stream duration per terminal outcome.
	StreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "answer_stream_duration_seconds",
			Help:    "Answer stream duration in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"model", "status"},
	)

	// TokensTotal tracks tokens processed by direction (in/out).
	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// StreamsActive tracks in-flight answer streams.
	StreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "answer_streams_active",
			Help: "Number of in-flight answer streams",
		},
	)

	// DirectivesTotal tracks resolved inline directives by kind.
	DirectivesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directives_total",
			Help: "Resolved inline retrieval directives",
		},
		[]string{"kind"},
	)

	// RetrievalsTotal tracks retrieval collaborator calls by source/outcome.
	RetrievalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrievals_total",
			Help: "Retrieval collaborator invocations",
		},
		[]string{"source", "outcome"},
	)

	// RateGateDenials tracks turn-level rate gate denials.
	RateGateDenials = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_gate_denials_total",
			Help: "Requests denied by the sliding-window rate gate",
		},
	)

	// MessagesTotal tracks messages persisted by role.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages persisted",
		},
		[]string{"role"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordStream records metrics for one finished answer stream.
func RecordStream(model, status string, duration float64, tokensIn, tokensOut int) {
	StreamDuration.WithLabelValues(model, status).Observe(duration)
	TokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	TokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordRetrieval records one retrieval collaborator call.
func RecordRetrieval(source string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "empty"
	}
	RetrievalsTotal.WithLabelValues(source, outcome).Inc()
}
