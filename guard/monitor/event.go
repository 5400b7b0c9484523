package monitor

import "time"

// Severity tiers for events and alerts.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Event types the pipeline records.
const (
	EventRequest        = "request"
	EventAuthFailure    = "authentication_failure"
	EventRateLimited    = "rate_limit_exceeded"
	EventDDoSDetected   = "ddos_attack_detected"
	EventMaliciousInput = "malicious_input_detected"
	EventUnauthorized   = "unauthorized_access_attempt"
)

// Event is one classified security observation. Immutable once recorded.
type Event struct {
	Type      string         `json:"event_type"`
	Severity  Severity       `json:"severity"`
	Identity  string         `json:"identity"`
	UserID    string         `json:"user_id,omitempty"`
	Endpoint  string         `json:"endpoint"`
	UserAgent string         `json:"user_agent,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// ring is a fixed-capacity event buffer that drops the oldest entry on
// overflow. Events arrive in time order, so retention trimming only ever
// advances the head.
type ring struct {
	buf   []Event
	head  int
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Event, capacity)}
}

func (r *ring) push(e Event) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	r.buf[r.head] = e
	r.head = (r.head + 1) % len(r.buf)
}

// each visits events oldest first; fn returning false stops the walk.
func (r *ring) each(fn func(Event) bool) {
	for i := 0; i < r.count; i++ {
		if !fn(r.buf[(r.head+i)%len(r.buf)]) {
			return
		}
	}
}

// dropOlderThan evicts events at or before cutoff.
func (r *ring) dropOlderThan(cutoff time.Time) {
	for r.count > 0 && !r.buf[r.head].Timestamp.After(cutoff) {
		r.buf[r.head] = Event{}
		r.head = (r.head + 1) % len(r.buf)
		r.count--
	}
}

// countSince counts events newer than cutoff, optionally filtered by type.
func (r *ring) countSince(cutoff time.Time, eventType string) int {
	n := 0
	r.each(func(e Event) bool {
		if e.Timestamp.After(cutoff) && (eventType == "" || e.Type == eventType) {
			n++
		}
		return true
	})
	return n
}

// lastN returns up to n of the newest events matching the filter.
func (r *ring) lastN(n int, cutoff time.Time, eventType string) []Event {
	var out []Event
	r.each(func(e Event) bool {
		if e.Timestamp.After(cutoff) && (eventType == "" || e.Type == eventType) {
			out = append(out, e)
		}
		return true
	})
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
