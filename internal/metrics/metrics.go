// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Analyses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mehelper_analyses_total",
			Help: "Triage analyses by recorded risk level and the path that produced it",
		},
		[]string{"risk_level", "source"},
	)
	AnalysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mehelper_analysis_duration_seconds",
			Help:    "End-to-end duration of a triage analysis",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)
	BackendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mehelper_backend_failures_total",
			Help: "Failed calls to external providers",
		},
		[]string{"provider"},
	)
	DuplicateScans = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mehelper_duplicate_scans_total",
			Help: "Scans not recorded because they repeat a recent one",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mehelper_http_requests_total",
			Help: "HTTP requests by route pattern and status code",
		},
		[]string{"route", "status"},
	)
)

func init() {
	prometheus.MustRegister(Analyses)
	prometheus.MustRegister(AnalysisDuration)
	prometheus.MustRegister(BackendFailures)
	prometheus.MustRegister(DuplicateScans)
	prometheus.MustRegister(httpRequests)
}

// ObserveAnalysis records one finished analysis.
func ObserveAnalysis(level, source string, started time.Time) {
	Analyses.WithLabelValues(level, source).Inc()
	AnalysisDuration.Observe(time.Since(started).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware counts requests by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}
