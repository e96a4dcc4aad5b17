// Package metrics defines the Prometheus collectors shared by the API and
// the analytics service. Every series is namespaced "promptvault".
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "promptvault"

type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	IndexRebuildsTotal   prometheus.Counter
	IndexedPrompts       prometheus.Gauge
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	PromptMutationsTotal *prometheus.CounterVec
	PromptCopiesTotal    prometheus.Counter
	AuthFailuresTotal    *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New registers the collectors with the default registry. Call it once per
// process.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers with reg; tests pass prometheus.NewRegistry().
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2.5, 10),
		}, []string{"method", "route"}),
		HTTPRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),
		SearchQueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "search", Name: "queries_total",
			Help: "Searches by outcome: hit, zero_result, listing or error.",
		}, []string{"result_type"}),
		SearchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "search", Name: "stage_seconds",
			Help:    "Time spent in each search stage (match, highlight).",
			Buckets: prometheus.ExponentialBuckets(0.0001, 3, 9),
		}, []string{"stage"}),
		SearchResultsCount: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "search", Name: "results",
			Help:    "Matches per search before the result limit is applied.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 200},
		}),
		IndexRebuildsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "search", Name: "index_rebuilds_total",
			Help: "In-memory index rebuilds.",
		}),
		IndexedPrompts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "search", Name: "index_records",
			Help: "Prompts in the current index.",
		}),
		CacheHitsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "listing_cache", Name: "hits_total",
			Help: "Listing cache hits.",
		}),
		CacheMissesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "listing_cache", Name: "misses_total",
			Help: "Listing cache misses, including reads skipped while Redis is bypassed.",
		}),
		PromptMutationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "prompts", Name: "mutations_total",
			Help: "Prompt writes by operation and outcome.",
		}, []string{"op", "outcome"}),
		PromptCopiesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "prompts", Name: "copies_total",
			Help: "Copy events recorded.",
		}),
		AuthFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "auth", Name: "failures_total",
			Help: "Rejected credentials by kind (bearer, api_key) and reason.",
		}, []string{"kind", "reason"}),
		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "circuit_breaker_state",
			Help: "0 closed, 1 open, 2 half-open.",
		}, []string{"name"}),
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
