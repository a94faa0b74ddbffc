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
		[]string{"method", "route", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// EventsAppendedTotal tracks events appended to the log.
	EventsAppendedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_events_appended_total",
			Help: "Total conversation events appended",
		},
		[]string{"event_type"},
	)

	// EventAppendFailuresTotal tracks rejected or failed appends.
	EventAppendFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_event_append_failures_total",
			Help: "Total failed conversation event appends",
		},
		[]string{"reason"},
	)

	// EvaluationsTotal tracks escalation status evaluations by result.
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalation_evaluations_total",
			Help: "Total escalation status evaluations",
		},
		[]string{"status"},
	)

	// EvaluationEvents tracks how many events each evaluation read.
	EvaluationEvents = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "escalation_evaluation_events",
			Help:    "Number of events read per escalation evaluation",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// StatusCacheTotal tracks status cache lookups.
	StatusCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalation_status_cache_total",
			Help: "Status cache lookups by result",
		},
		[]string{"result"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, route, status string, duration float64) {
	RequestDuration.WithLabelValues(method, route, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, route, status).Inc()
}

// RecordEvaluation records one escalation evaluation.
func RecordEvaluation(status string, events int) {
	EvaluationsTotal.WithLabelValues(status).Inc()
	EvaluationEvents.Observe(float64(events))
}

// RecordCacheLookup records a status cache hit, miss or error.
func RecordCacheLookup(result string) {
	StatusCacheTotal.WithLabelValues(result).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
