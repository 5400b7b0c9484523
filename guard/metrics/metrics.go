package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"hrguard/guard/monitor"
)

var (
	// Request metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrguard_requests_total",
			Help: "Total number of HTTP requests seen by the defense pipeline",
		},
		[]string{"method"},
	)

	RequestsBlocked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrguard_requests_blocked_total",
			Help: "Total number of requests denied by a gate",
		},
		[]string{"gate", "reason"},
	)

	RequestsAllowed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hrguard_requests_allowed_total",
			Help: "Total number of requests that passed every gate",
		},
	)

	// Rate limiting metrics
	RateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrguard_rate_limit_exceeded_total",
			Help: "Total number of requests exceeding rate limits by window",
		},
		[]string{"window"},
	)

	// Threat detection metrics
	MaliciousInputBlocked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrguard_malicious_input_blocked_total",
			Help: "Total number of requests blocked for malicious input",
		},
		[]string{"family"},
	)

	// Monitoring metrics
	SecurityEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrguard_security_events_total",
			Help: "Total number of security events recorded by type",
		},
		[]string{"event_type"},
	)

	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrguard_alerts_total",
			Help: "Total number of alerts created by level",
		},
		[]string{"level"},
	)

	BlockedIdentities = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hrguard_blocked_identities",
			Help: "Number of identities currently blocked",
		},
	)

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hrguard_active_connections",
			Help: "Number of in-flight guarded requests",
		},
	)
)

// AlertNotifier counts alerts by level. Registered with the monitor
// alongside the delivery notifiers.
type AlertNotifier struct{}

func (AlertNotifier) Notify(a monitor.Alert) {
	AlertsCreated.WithLabelValues(string(a.Level)).Inc()
}
