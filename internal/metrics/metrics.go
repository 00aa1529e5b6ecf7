// Package metrics defines the Prometheus collectors for the auth service.
//
// Naming follows Prometheus conventions:
//   - maxedcv_ prefix for all custom metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
//
// Collectors are registered on a caller-supplied registry rather than the
// global default, so every test can build its own without duplicate
// registration panics. All methods are nil-safe: a nil *Metrics records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// AuthEventsTotal counts orchestrator operations (signup, login, ...) by outcome.
	AuthEventsTotal *prometheus.CounterVec
	// SessionsEvictedTotal counts sessions destroyed by the concurrent-session cap.
	SessionsEvictedTotal prometheus.Counter
	// NotificationsTotal counts outbound emails by kind and outcome.
	NotificationsTotal *prometheus.CounterVec
	// RateLimitedTotal counts requests rejected with 429, by limiter name.
	RateLimitedTotal *prometheus.CounterVec
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maxedcv_http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "maxedcv_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maxedcv_auth_events_total",
				Help: "Auth operations by event and outcome.",
			},
			[]string{"event", "outcome"},
		),
		SessionsEvictedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "maxedcv_sessions_evicted_total",
				Help: "Sessions destroyed because a user exceeded the concurrent-session cap.",
			},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maxedcv_notifications_total",
				Help: "Outbound notifications by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maxedcv_rate_limited_total",
				Help: "Requests rejected by a rate limiter.",
			},
			[]string{"limiter"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthEventsTotal,
		m.SessionsEvictedTotal,
		m.NotificationsTotal,
		m.RateLimitedTotal,
	)
	return m
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// AuthEvent records one orchestrator operation; err decides the outcome label.
func (m *Metrics) AuthEvent(event string, err error) {
	if m == nil {
		return
	}
	m.AuthEventsTotal.WithLabelValues(event, outcome(err)).Inc()
}

func (m *Metrics) SessionsEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsEvictedTotal.Add(float64(n))
}

func (m *Metrics) Notification(kind string, err error) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind, outcome(err)).Inc()
}

func (m *Metrics) RateLimited(limiter string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(limiter).Inc()
}
