// Package observability exposes Prometheus metrics and health probes for
// the API server.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry setup.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	AuthEventsTotal       *prometheus.CounterVec
	RateLimitRejections   *prometheus.CounterVec
	RateLimitErrors       *prometheus.CounterVec
	APIKeyRejectionsTotal prometheus.Counter
	EmailsTotal           *prometheus.CounterVec
	OutboxDropped         prometheus.Counter
	ResetTokensPurged     prometheus.Counter
}

// NewMetrics creates and registers all collectors on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitcoach_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fitcoach_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitcoach_auth_events_total",
				Help: "Auth operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		RateLimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitcoach_rate_limit_rejections_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"policy"},
		),
		RateLimitErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitcoach_rate_limit_errors_total",
				Help: "Limiter backend errors (requests were let through)",
			},
			[]string{"policy"},
		),
		APIKeyRejectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fitcoach_api_key_rejections_total",
				Help: "Requests rejected for a missing or wrong API key",
			},
		),
		EmailsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitcoach_emails_total",
				Help: "Emails handed to the provider by kind and status",
			},
			[]string{"kind", "status"},
		),
		OutboxDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fitcoach_email_outbox_dropped_total",
				Help: "Emails dropped because the outbox queue was full",
			},
		),
		ResetTokensPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fitcoach_reset_tokens_purged_total",
				Help: "Expired password reset tokens cleared by maintenance",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthEventsTotal,
		m.RateLimitRejections,
		m.RateLimitErrors,
		m.APIKeyRejectionsTotal,
		m.EmailsTotal,
		m.OutboxDropped,
		m.ResetTokensPurged,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// AuthEvent counts one auth operation. outcome is "ok" or an error class.
func (m *Metrics) AuthEvent(operation, outcome string) {
	if m == nil {
		return
	}
	m.AuthEventsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) RateLimited(policy string) {
	if m == nil {
		return
	}
	m.RateLimitRejections.WithLabelValues(policy).Inc()
}

func (m *Metrics) RateLimitError(policy string) {
	if m == nil {
		return
	}
	m.RateLimitErrors.WithLabelValues(policy).Inc()
}

func (m *Metrics) APIKeyRejected() {
	if m == nil {
		return
	}
	m.APIKeyRejectionsTotal.Inc()
}

func (m *Metrics) EmailSent(kind string, err error) {
	if m == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.EmailsTotal.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) EmailDropped() {
	if m == nil {
		return
	}
	m.OutboxDropped.Inc()
}

func (m *Metrics) ResetTokensPurgedAdd(n int64) {
	if m == nil {
		return
	}
	m.ResetTokensPurged.Add(float64(n))
}
