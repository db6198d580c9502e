// Package metrics holds the Prometheus instrumentation for the web front end:
// upstream API calls, the request cache, live search sessions and page renders.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamfinder_upstream_requests_total",
			Help: "Content API requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"}, // outcome: success, http_error, transport_error, rejected
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamfinder_upstream_request_duration_seconds",
			Help:    "Latency of content API requests including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	UpstreamRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamfinder_upstream_retries_total",
			Help: "Retried content API attempts",
		},
		[]string{"endpoint"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamfinder_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamfinder_cache_lookups_total",
			Help: "Request cache lookups by class and result",
		},
		[]string{"class", "result"}, // result: fresh, stale, miss, error
	)

	StaleResponsesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamfinder_search_stale_responses_dropped_total",
			Help: "Search responses discarded because the query moved on before they arrived",
		},
	)

	SearchStates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamfinder_search_transitions_total",
			Help: "Search controller state transitions by target state",
		},
		[]string{"state"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamfinder_search_sessions",
			Help: "Live search sessions currently held in memory",
		},
	)

	PageRenders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamfinder_page_renders_total",
			Help: "Rendered HTML pages by page and outcome",
		},
		[]string{"page", "outcome"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamfinder_http_request_duration_seconds",
			Help:    "Latency of requests served by this process",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)
)
