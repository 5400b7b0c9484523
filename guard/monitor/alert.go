package monitor

import (
	"fmt"
	"sort"
	"time"
)

// Alert types raised by the rule engine.
const (
	AlertBruteForceIP     = "brute_force_attack_ip"
	AlertBruteForceUser   = "brute_force_attack_user"
	AlertSuspiciousAgent  = "suspicious_user_agent"
	AlertHighRequestRate  = "high_request_rate"
	AlertEndpointScanning = "endpoint_scanning"
	AlertHighAuthFailures = "high_authentication_failures"
)

// Alert is one rule firing. The resolved flag is the only mutable field.
type Alert struct {
	ID           string         `json:"alert_id"`
	Timestamp    time.Time      `json:"timestamp"`
	Type         string         `json:"alert_type"`
	Level        Severity       `json:"level"`
	Message      string         `json:"message"`
	Details      map[string]any `json:"details"`
	SourceEvents []Event        `json:"source_events,omitempty"`
	Resolved     bool           `json:"resolved"`
}

// AlertFilter narrows the result of Alerts. Zero values mean "any".
type AlertFilter struct {
	Resolved *bool
	Level    Severity
	Limit    int
}

// newAlertID builds a time-ordered id; seq breaks ties within one
// millisecond.
func newAlertID(ts time.Time, seq int64) string {
	return fmt.Sprintf("alert_%d_%d", ts.UnixMilli(), seq)
}

// createAlert appends an alert and fans it out to the notifiers. Callers
// hold m.mu.
func (m *Monitor) createAlert(alertType string, level Severity, message string, details map[string]any, sources []Event) *Alert {
	m.alertSeq++
	a := &Alert{
		ID:           newAlertID(m.config.Now(), m.alertSeq),
		Timestamp:    m.config.Now(),
		Type:         alertType,
		Level:        level,
		Message:      message,
		Details:      details,
		SourceEvents: sources,
	}
	m.alerts = append(m.alerts, a)
	m.alertIndex[a.ID] = a

	for _, n := range m.notifiers {
		go safeNotify(n, *a)
	}
	return a
}

// Resolve marks an alert resolved. Idempotent; reports whether the alert
// exists.
func (m *Monitor) Resolve(alertID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alertIndex[alertID]
	if !ok {
		return false
	}
	a.Resolved = true
	return true
}

// Alerts returns alerts matching the filter, newest first.
func (m *Monitor) Alerts(filter AlertFilter) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if filter.Resolved != nil && a.Resolved != *filter.Resolved {
			continue
		}
		if filter.Level != "" && a.Level != filter.Level {
			continue
		}
		out = append(out, *a)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}
