// Package metrics defines the Prometheus collectors used by the indexer and
// searcher processes and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	QueriesTotal       *prometheus.CounterVec
	QueryLatency       *prometheus.HistogramVec
	QueryDataCost      prometheus.Histogram
	QueryResults       prometheus.Histogram
	PositionsBytesRead prometheus.Counter
	BudgetTimeouts     prometheus.Counter
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter

	ActiveGeneration     prometheus.Gauge
	GenerationSwaps      *prometheus.CounterVec
	JournalEntriesTotal  prometheus.Counter
	ConstructionsTotal   *prometheus.CounterVec
	ConstructionDuration prometheus.Histogram
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_queries_total",
				Help: "Index queries by outcome (ok, degraded, empty, error).",
			},
			[]string{"outcome"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_query_latency_seconds",
				Help:    "Index query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		QueryDataCost: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_query_data_cost",
				Help:    "Document IDs read and filtered per query.",
				Buckets: prometheus.ExponentialBuckets(16, 4, 10),
			},
		),
		QueryResults: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_query_results",
				Help:    "Number of results returned per query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		PositionsBytesRead: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "positions_bytes_read_total",
				Help: "Bytes of term position data read.",
			},
		),
		BudgetTimeouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_query_budget_timeouts_total",
				Help: "Queries that exhausted their time budget.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		ActiveGeneration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_active_generation",
				Help: "Sequence number of the generation serving queries.",
			},
		),
		GenerationSwaps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_generation_swaps_total",
				Help: "Generation swap attempts by status.",
			},
			[]string{"status"},
		),
		JournalEntriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "journal_entries_total",
				Help: "Journal entries appended by the indexer.",
			},
		),
		ConstructionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_constructions_total",
				Help: "Index generation constructions by status.",
			},
			[]string{"status"},
		),
		ConstructionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_construction_duration_seconds",
				Help:    "Wall time to construct one index generation.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.QueriesTotal,
		m.QueryLatency,
		m.QueryDataCost,
		m.QueryResults,
		m.PositionsBytesRead,
		m.BudgetTimeouts,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ActiveGeneration,
		m.GenerationSwaps,
		m.JournalEntriesTotal,
		m.ConstructionsTotal,
		m.ConstructionDuration,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
