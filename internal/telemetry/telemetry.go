// Package telemetry unifies OpenTelemetry tracing and Prometheus metrics.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	estimateLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "estimate_lookups_total",
			Help: "Total number of estimate lookups, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	estimateLookupDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "estimate_lookup_duration_seconds",
			Help:    "Histogram of upstream estimate lookup latencies, labeled by outcome.",
			Buckets: []float64{1, 2.5, 5, 10, 15, 20, 30, 45, 60},
		},
		[]string{"outcome"},
	)

	estimateCacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "estimate_cache_requests_total",
			Help: "Total number of estimate cache reads, labeled by result.",
		},
		[]string{"result"},
	)

	estimateBrowserSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "estimate_browser_sessions_active",
			Help: "Number of headless browser tabs currently driving the estimate page.",
		},
	)

	estimateRateLimitDelaySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "estimate_rate_limit_delay_seconds",
			Help:    "Histogram of upstream rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "route"},
	)
)

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, routePattern, rec.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// ObserveHTTPRequest records metrics for an HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveLookup records one estimate lookup. A zero duration skips the histogram.
func ObserveLookup(outcome string, duration time.Duration) {
	estimateLookupsTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		estimateLookupDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}

// ObserveCache records a cache read result: hit, miss, or error.
func ObserveCache(result string) {
	estimateCacheRequestsTotal.WithLabelValues(result).Inc()
}

// IncBrowserSessions increments the active browser session gauge.
func IncBrowserSessions() {
	estimateBrowserSessionsActive.Inc()
}

// DecBrowserSessions decrements the active browser session gauge.
func DecBrowserSessions() {
	estimateBrowserSessionsActive.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	estimateRateLimitDelaySeconds.Observe(duration.Seconds())
}
