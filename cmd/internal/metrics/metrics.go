// Package metrics exposes Prometheus metrics for the Agora auth core.
// All metrics use the "agora" namespace and register with the default
// registry via promauto, so the promhttp handler mounted on /metrics picks
// them up without further wiring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "agora"

var (
	// HTTPRequestsTotal counts handled HTTP requests by route, method, and
	// status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route, method, and status code.",
		},
		[]string{"route", "method", "status"},
	)

	// HTTPRequestDurationSeconds tracks request latency by route and method.
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds by route and method.",
			// Buckets: 5ms ... ~10s
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"route", "method"},
	)

	// LoginsTotal counts login attempts by outcome.
	// outcome: success | invalid_credentials | email_unverified | inactive |
	// rate_limited | error
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Total number of login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// RotationsTotal counts refresh-token rotations by outcome.
	// outcome: success | denied | reuse_detected | error
	RotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "rotations_total",
			Help:      "Total number of refresh token rotations by outcome.",
		},
		[]string{"outcome"},
	)

	// SessionsIssuedTotal counts sessions created by successful logins.
	SessionsIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "sessions_issued_total",
			Help:      "Total number of sessions issued.",
		},
	)

	// SessionsRevokedTotal counts terminated sessions by revocation reason.
	// reason: logout | logout_all | superseded | password_change |
	// password_reset | reuse_detected | suspended | user_revoked | expired
	SessionsRevokedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "sessions_revoked_total",
			Help:      "Total number of sessions revoked by reason.",
		},
		[]string{"reason"},
	)

	// OnlineSessions tracks the number of live sessions currently marked
	// online, sampled periodically from the session store.
	OnlineSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "online_sessions",
			Help:      "Current number of live sessions marked online.",
		},
	)
)
