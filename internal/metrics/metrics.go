// Package metrics provides Prometheus instrumentation for the form service.
// It exposes counters for step submissions and store failures, and
// per-route request counters and latency histograms.
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
	// RequestsTotal counts HTTP requests by route pattern, method and status.
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "form_http_requests_total",
		Help: "Total number of HTTP requests handled",
	}, []string{"route", "method", "code"})

	// RequestDuration records request latency in seconds by route pattern.
	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "form_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"route"})

	// SubmissionsTotal counts step submissions, labeled by step ("name",
	// "age") and outcome ("valid", "invalid").
	SubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "form_submissions_total",
		Help: "Total number of form step submissions",
	}, []string{"step", "outcome"})

	// SessionsCleared counts sessions removed by the name step reset.
	SessionsCleared = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "form_sessions_cleared_total",
		Help: "Total number of sessions removed on flow entry",
	})

	// StoreErrors counts failed session store calls by operation.
	StoreErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "form_store_errors_total",
		Help: "Total number of failed session store operations",
	}, []string{"op"})

	// RateLimited counts submissions rejected by the rate limiter.
	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "form_rate_limited_total",
		Help: "Total number of submissions rejected by rate limiting",
	})
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		SubmissionsTotal,
		SessionsCleared,
		StoreErrors,
		RateLimited,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records RequestsTotal and RequestDuration for every request,
// labeled by the chi route pattern so ids in paths do not explode
// cardinality.
func Instrument(next http.Handler) http.Handler {
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

		RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
