// Package metrics exposes Prometheus counters for the limiter, the refresh
// token chain and verification codes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use as a nil pointer; every method becomes a no-op.
type Metrics struct {
	rateLimit *prometheus.CounterVec
	refresh   *prometheus.CounterVec
	codes     *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rateLimit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "ratelimit_decisions_total",
			Help:      "Rate limiter decisions by scope and result.",
		}, []string{"scope", "result"}),
		refresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "refresh_rotations_total",
			Help:      "Refresh token rotation outcomes.",
		}, []string{"result"}),
		codes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "verification_codes_total",
			Help:      "Verification code events by purpose.",
		}, []string{"purpose", "event"}),
	}
	reg.MustRegister(m.rateLimit, m.refresh, m.codes)
	return m
}

// RateLimit records an admission result: allowed, denied or degraded.
func (m *Metrics) RateLimit(scope, result string) {
	if m == nil {
		return
	}
	m.rateLimit.WithLabelValues(scope, result).Inc()
}

// Refresh records a rotation outcome: rotated, reuse, invalid.
func (m *Metrics) Refresh(result string) {
	if m == nil {
		return
	}
	m.refresh.WithLabelValues(result).Inc()
}

// Code records a verification code event: issued, resent, cooldown,
// verified, rejected.
func (m *Metrics) Code(purpose, event string) {
	if m == nil {
		return
	}
	m.codes.WithLabelValues(purpose, event).Inc()
}
