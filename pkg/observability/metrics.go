package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
// All Record* methods are safe to call on a nil *Metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec

	// Workflow metrics
	TransitionsTotal *prometheus.CounterVec
	SweepsTotal      *prometheus.CounterVec
	SweepPromoted    prometheus.Counter
	SweepDuration    prometheus.Histogram

	// Side effects
	NotificationsTotal       *prometheus.CounterVec
	AssetDeleteFailuresTotal prometheus.Counter

	// Rate limiting
	RateLimitedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "masthead_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "masthead_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "masthead_authz_decisions_total",
				Help: "Authorization decisions by result",
			},
			[]string{"result"},
		),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "masthead_content_transitions_total",
				Help: "Content status transitions by kind, operation and outcome",
			},
			[]string{"kind", "operation", "outcome"},
		),
		SweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "masthead_sweeps_total",
				Help: "Status refresh sweeps by outcome",
			},
			[]string{"outcome"},
		),
		SweepPromoted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "masthead_sweep_promoted_total",
				Help: "Scheduled items promoted to published by the sweeper",
			},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "masthead_sweep_duration_seconds",
				Help:    "Status refresh sweep duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "masthead_notifications_total",
				Help: "Notification dispatch attempts by template kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		AssetDeleteFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "masthead_asset_delete_failures_total",
				Help: "Content asset deletions that failed and were skipped",
			},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "masthead_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"limiter"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.TransitionsTotal,
		m.SweepsTotal,
		m.SweepPromoted,
		m.SweepDuration,
		m.NotificationsTotal,
		m.AssetDeleteFailuresTotal,
		m.RateLimitedTotal,
	)

	return m
}

// RecordAuthz counts a guard decision
func (m *Metrics) RecordAuthz(result string) {
	if m == nil {
		return
	}
	m.AuthzDecisionsTotal.WithLabelValues(result).Inc()
}

// RecordTransition counts a content transition attempt
func (m *Metrics) RecordTransition(kind, operation, outcome string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(kind, operation, outcome).Inc()
}

// RecordSweep records one sweeper run
func (m *Metrics) RecordSweep(promoted int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.SweepsTotal.WithLabelValues("error").Inc()
		return
	}
	m.SweepsTotal.WithLabelValues("success").Inc()
	m.SweepPromoted.Add(float64(promoted))
	m.SweepDuration.Observe(duration.Seconds())
}

// RecordNotification counts a notification dispatch outcome
func (m *Metrics) RecordNotification(kind, outcome string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordAssetDeleteFailure counts a skipped asset deletion
func (m *Metrics) RecordAssetDeleteFailure() {
	if m == nil {
		return
	}
	m.AssetDeleteFailuresTotal.Inc()
}

// RecordRateLimited counts a rejected request
func (m *Metrics) RecordRateLimited(limiter string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(limiter).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Routes are labelled by their mux path template to keep cardinality bounded.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(serveMux *http.ServeMux, registry *prometheus.Registry) {
	serveMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
