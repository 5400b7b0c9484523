package ratelimit

import (
	"sync"
	"time"
)

// Deny reasons returned by Check.
const (
	ReasonBurst  = "burst"
	ReasonMinute = "minute"
	ReasonHour   = "hour"
)

const (
	burstWindow  = 10 * time.Second
	minuteWindow = time.Minute
	hourWindow   = time.Hour

	// Fixed Retry-After for every rate denial regardless of which window
	// was breached. Carried over from the source system as-is.
	retryAfter = 60 * time.Second
)

// Config holds rate limiting settings. Zero values get sensible defaults.
type Config struct {
	RequestsPerMinute int
	RequestsPerHour   int
	BurstLimit        int

	// Now is the clock used for all window math. Tests inject a fake.
	Now func() time.Time
}

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}

// Remaining reports how much budget an identity has left, for response
// headers.
type Remaining struct {
	Minute int
	Hour   int
}

type identityState struct {
	burst  *window
	minute *window
	hour   *window
}

// Meter enforces per-identity sliding-window rate limits: a short burst
// cap, a per-minute cap, and a per-hour cap, checked in that order.
type Meter struct {
	mu      sync.Mutex
	config  Config
	clients map[string]*identityState
}

// NewMeter creates a rate meter with the given limits.
func NewMeter(config Config) *Meter {
	if config.RequestsPerMinute == 0 {
		config.RequestsPerMinute = 60
	}
	if config.RequestsPerHour == 0 {
		config.RequestsPerHour = 1000
	}
	if config.BurstLimit == 0 {
		config.BurstLimit = 10
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Meter{
		config:  config,
		clients: make(map[string]*identityState),
	}
}

func (m *Meter) state(identity string) *identityState {
	st, ok := m.clients[identity]
	if !ok {
		st = &identityState{
			burst:  newWindow(burstWindow),
			minute: newWindow(minuteWindow),
			hour:   newWindow(hourWindow),
		}
		m.clients[identity] = st
	}
	return st
}

// Check reports whether identity may make another request right now.
// Expired timestamps are evicted lazily here; no timer is involved.
// The first breached limit determines the reason.
func (m *Meter) Check(identity string) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.config.Now()
	st := m.state(identity)
	st.burst.evict(now)
	st.minute.evict(now)
	st.hour.evict(now)

	if st.burst.count() >= m.config.BurstLimit {
		return Decision{Reason: ReasonBurst, RetryAfter: retryAfter}
	}
	if st.minute.count() >= m.config.RequestsPerMinute {
		return Decision{Reason: ReasonMinute, RetryAfter: retryAfter}
	}
	if st.hour.count() >= m.config.RequestsPerHour {
		return Decision{Reason: ReasonHour, RetryAfter: retryAfter}
	}

	return Decision{Allowed: true}
}

// Record counts an accepted request against all three windows. Callers
// only invoke this after Check returned Allow, so denied attempts are
// never counted.
func (m *Meter) Record(identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.config.Now()
	st := m.state(identity)
	st.burst.evict(now)
	st.minute.evict(now)
	st.hour.evict(now)
	st.burst.add(now)
	st.minute.add(now)
	st.hour.add(now)
}

// Remaining returns the identity's leftover minute and hour budget.
func (m *Meter) Remaining(identity string) Remaining {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.config.Now()
	st := m.state(identity)
	st.minute.evict(now)
	st.hour.evict(now)

	rem := Remaining{
		Minute: m.config.RequestsPerMinute - st.minute.count(),
		Hour:   m.config.RequestsPerHour - st.hour.count(),
	}
	if rem.Minute < 0 {
		rem.Minute = 0
	}
	if rem.Hour < 0 {
		rem.Hour = 0
	}
	return rem
}

// Limits exposes the configured caps for response headers.
func (m *Meter) Limits() (perMinute, perHour int) {
	return m.config.RequestsPerMinute, m.config.RequestsPerHour
}

// Sweep drops identities with no activity inside the hour window. The
// monitor's background task calls this so quiet clients don't accumulate
// forever.
func (m *Meter) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.config.Now()
	for identity, st := range m.clients {
		st.hour.evict(now)
		if st.hour.count() == 0 {
			delete(m.clients, identity)
		}
	}
}
