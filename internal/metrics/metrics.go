// Package metrics holds the Prometheus collectors for journey building,
// dataset loading, table imports and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Journey Metrics
	JourneysBuilt = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offerjourney_journeys_built_total",
			Help: "Total number of journeys built",
		},
		[]string{"strategy", "path"}, // path: "synthetic", "derived"
	)

	Comparisons = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offerjourney_comparisons_total",
			Help: "Total number of rule-based vs transformer comparisons",
		},
	)

	ImprovementPct = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "offerjourney_improvement_pct",
			Help:    "Transformer conversion improvement over rule-based, in percent",
			Buckets: []float64{-100, -50, 0, 50, 100, 200, 300, 500, 800},
		},
	)

	// Dataset Metrics
	DatasetLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offerjourney_dataset_loads_total",
			Help: "Total number of interaction table loads into the cache",
		},
		[]string{"result"},
	)

	DatasetRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "offerjourney_dataset_rows",
			Help: "Number of interaction rows held by the cache",
		},
	)

	// Import Metrics
	ImportRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offerjourney_import_rows_total",
			Help: "Total number of interaction rows imported",
		},
		[]string{"kind"},
	)

	Imports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offerjourney_imports_total",
			Help: "Total number of table imports by outcome",
		},
		[]string{"kind", "status"},
	)

	ImportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "offerjourney_import_duration_seconds",
			Help:    "Table import duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offerjourney_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "offerjourney_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "route"},
	)
)

// RecordJourney counts one built journey.
func RecordJourney(strategy string, synthetic bool) {
	path := "derived"
	if synthetic {
		path = "synthetic"
	}
	JourneysBuilt.WithLabelValues(strategy, path).Inc()
}

// RecordComparison counts a comparison and observes its improvement.
func RecordComparison(improvementPct float64) {
	Comparisons.Inc()
	ImprovementPct.Observe(improvementPct)
}

// RecordDatasetLoad records the outcome of a cache load.
func RecordDatasetLoad(rows int, err error) {
	if err != nil {
		DatasetLoads.WithLabelValues("error").Inc()
		return
	}
	DatasetLoads.WithLabelValues("ok").Inc()
	DatasetRows.Set(float64(rows))
}

// RecordImport records a finished import of the given source kind.
func RecordImport(kind string, rows int64, duration time.Duration, err error) {
	status := "completed"
	if err != nil {
		status = "failed"
	}
	Imports.WithLabelValues(kind, status).Inc()
	ImportRows.WithLabelValues(kind).Add(float64(rows))
	ImportDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, route, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware records every request under its chi route pattern so that
// path parameters do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordAPIRequest(r.Method, route, strconv.Itoa(status), time.Since(start))
	})
}
