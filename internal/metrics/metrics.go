// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts handled requests by route pattern, method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guilddash_http_requests_total",
			Help: "HTTP requests by route, method and status code",
		},
		[]string{"route", "method", "code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guilddash_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guilddash_rate_limited_total",
			Help: "Requests rejected by the per-IP rate limiter",
		},
	)
)

// Session metrics
var (
	SessionsIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guilddash_sessions_issued_total",
			Help: "Sessions issued after a successful Discord login",
		},
	)

	// AuthRejectionsTotal counts requests refused by the session check, by reason
	// (missing, invalid, expired).
	AuthRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guilddash_auth_rejections_total",
			Help: "Requests rejected for a missing or invalid session",
		},
		[]string{"reason"},
	)
)

// Upstream metrics
var (
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guilddash_upstream_requests_total",
			Help: "Calls to Discord and the bot stats endpoint by operation and status",
		},
		[]string{"upstream", "operation", "status"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guilddash_upstream_request_duration_seconds",
			Help:    "Latency of calls to Discord and the bot stats endpoint",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"upstream", "operation"},
	)
)

// ObserveUpstream records one outbound call that started at start.
func ObserveUpstream(upstream, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	UpstreamRequestsTotal.WithLabelValues(upstream, operation, status).Inc()
	UpstreamRequestDuration.WithLabelValues(upstream, operation).Observe(time.Since(start).Seconds())
}

// InstrumentRoute wraps h with request count and latency collectors labeled
// with the route pattern it is registered under.
func InstrumentRoute(route string, h http.Handler) http.Handler {
	labels := prometheus.Labels{"route": route}
	return promhttp.InstrumentHandlerDuration(
		HTTPRequestDuration.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(HTTPRequestsTotal.MustCurryWith(labels), h),
	)
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
