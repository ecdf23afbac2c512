// Package observability collects Prometheus metrics for the authorization
// service.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the service's Prometheus collectors.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	decisionsTotal  *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	refreshFailures prometheus.Counter
	feedEvents      *prometheus.CounterVec
	activeSessions  prometheus.Gauge
}

// NewMetrics initializes the registry and base collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vantage_authz_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vantage_authz_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vantage_authz_decisions_total",
		Help: "Permission decisions by action and outcome.",
	}, []string{"action", "outcome"})
	refreshDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vantage_authz_refresh_duration_seconds",
		Help:    "Duration of override refreshes.",
		Buckets: prometheus.DefBuckets,
	})
	refreshFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vantage_authz_refresh_failures_total",
		Help: "Override refreshes that failed and retained the prior snapshot.",
	})
	feedEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vantage_authz_feed_events_total",
		Help: "Change feed events by disposition.",
	}, []string{"disposition"})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vantage_authz_active_sessions",
		Help: "Authorization sessions currently held in memory.",
	})
	registry.MustRegister(requests, duration, decisions, refreshDuration, refreshFailures, feedEvents, activeSessions)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		decisionsTotal:  decisions,
		refreshDuration: refreshDuration,
		refreshFailures: refreshFailures,
		feedEvents:      feedEvents,
		activeSessions:  activeSessions,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveDecision counts one permission decision.
func (m *Metrics) ObserveDecision(action string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	m.decisionsTotal.WithLabelValues(action, outcome).Inc()
}

// ObserveRefresh records one refresh attempt.
func (m *Metrics) ObserveRefresh(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.refreshDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.refreshFailures.Inc()
	}
}

// ObserveFeedEvent counts a change feed event by disposition
// ("applied", "discarded", "lost").
func (m *Metrics) ObserveFeedEvent(disposition string) {
	if m == nil {
		return
	}
	m.feedEvents.WithLabelValues(disposition).Inc()
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
