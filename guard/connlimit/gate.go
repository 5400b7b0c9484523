package connlimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Deny reasons returned by Admit.
const (
	ReasonBlocked        = "blocked"
	ReasonMaxConnections = "max_connections"
	ReasonSuspicious     = "suspicious"
)

// The trailing window kept per identity; suspicion looks at the most
// recent minute of it.
const (
	trackingWindow  = 5 * time.Minute
	suspicionWindow = time.Minute
	fixedRetryAfter = 60 * time.Second
)

// Config holds DDoS protection settings.
type Config struct {
	MaxConnectionsPerIdentity int
	SuspiciousThreshold       int // requests in the trailing minute that trigger a block
	BlockDuration             time.Duration

	// GlobalRequestsPerSecond caps aggregate throughput across all
	// identities. 0 disables the global limiter.
	GlobalRequestsPerSecond int

	Now func() time.Time
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}

// EventSink receives the CRITICAL event emitted when a flood block fires.
// The pipeline wires the security monitor in here.
type EventSink func(identity string, requestsLastMinute int)

type identityTrack struct {
	active   int
	requests []time.Time
}

// Gate admits or denies requests before any other gate runs: blocked
// identities first, then the concurrent-connection cap, then flood
// suspicion over the trailing minute.
type Gate struct {
	mu     sync.Mutex
	config Config
	blocks *Blocklist
	global *rate.Limiter
	sink   EventSink
	track  map[string]*identityTrack
}

// NewGate creates a connection gate. sink may be nil.
func NewGate(config Config, sink EventSink) *Gate {
	if config.MaxConnectionsPerIdentity == 0 {
		config.MaxConnectionsPerIdentity = 50
	}
	if config.SuspiciousThreshold == 0 {
		config.SuspiciousThreshold = 100
	}
	if config.BlockDuration == 0 {
		config.BlockDuration = 5 * time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	g := &Gate{
		config: config,
		blocks: NewBlocklist(config.Now),
		sink:   sink,
		track:  make(map[string]*identityTrack),
	}
	if config.GlobalRequestsPerSecond > 0 {
		g.global = rate.NewLimiter(rate.Limit(config.GlobalRequestsPerSecond), config.GlobalRequestsPerSecond)
	}
	return g
}

// Admit decides whether a request from identity may proceed. On Allow the
// identity's active-connection count is incremented; the caller must pair
// every Allow with exactly one Release on any exit path.
func (g *Gate) Admit(identity string) Decision {
	if blocked, remaining := g.blocks.IsBlocked(identity); blocked {
		return Decision{Reason: ReasonBlocked, RetryAfter: remaining}
	}

	// Aggregate throughput cap. No per-identity block for this; the
	// offender is everyone at once.
	if g.global != nil && !g.global.Allow() {
		return Decision{Reason: ReasonSuspicious, RetryAfter: fixedRetryAfter}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.config.Now()
	tr, ok := g.track[identity]
	if !ok {
		tr = &identityTrack{}
		g.track[identity] = tr
	}

	if tr.active >= g.config.MaxConnectionsPerIdentity {
		return Decision{Reason: ReasonMaxConnections, RetryAfter: fixedRetryAfter}
	}

	// Trim the 5-minute trailing window, count the prior requests in the
	// last minute, then record this one. Counting before the append means
	// a threshold of N blocks the N+1th request in the window, not the Nth.
	cutoff := now.Add(-trackingWindow)
	i := 0
	for i < len(tr.requests) && !tr.requests[i].After(cutoff) {
		i++
	}
	if i > 0 {
		tr.requests = tr.requests[i:]
	}

	recent := 0
	minuteAgo := now.Add(-suspicionWindow)
	for _, ts := range tr.requests {
		if ts.After(minuteAgo) {
			recent++
		}
	}
	tr.requests = append(tr.requests, now)

	if recent >= g.config.SuspiciousThreshold {
		g.blocks.Block(identity, g.config.BlockDuration)
		if g.sink != nil {
			g.sink(identity, recent)
		}
		return Decision{Reason: ReasonSuspicious, RetryAfter: g.config.BlockDuration}
	}

	tr.active++
	return Decision{Allowed: true}
}

// Release decrements the identity's active-connection count. It is safe
// to call on any exit path; the count never goes below zero.
func (g *Gate) Release(identity string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if tr, ok := g.track[identity]; ok && tr.active > 0 {
		tr.active--
	}
}

// Block adds an explicit block for identity, used by the monitor's
// brute-force rule.
func (g *Gate) Block(identity string, duration time.Duration) {
	if duration == 0 {
		duration = g.config.BlockDuration
	}
	g.blocks.Block(identity, duration)
}

// Unblock removes a block immediately.
func (g *Gate) Unblock(identity string) bool {
	return g.blocks.Unblock(identity)
}

// IsBlocked reports whether identity currently has a live block.
func (g *Gate) IsBlocked(identity string) bool {
	return g.blocks.Contains(identity)
}

// Blocked lists all live blocks for the admin surface.
func (g *Gate) Blocked() []BlockedEntry {
	return g.blocks.List()
}

// ActiveConnections reports the current connection count for identity.
func (g *Gate) ActiveConnections(identity string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if tr, ok := g.track[identity]; ok {
		return tr.active
	}
	return 0
}

// Sweep drops identities with no connections and no recent requests.
func (g *Gate) Sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.config.Now().Add(-trackingWindow)
	for identity, tr := range g.track {
		i := 0
		for i < len(tr.requests) && !tr.requests[i].After(cutoff) {
			i++
		}
		if i > 0 {
			tr.requests = tr.requests[i:]
		}
		if tr.active == 0 && len(tr.requests) == 0 {
			delete(g.track, identity)
		}
	}
}
