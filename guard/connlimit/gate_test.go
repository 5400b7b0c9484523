package connlimit

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestFloodTriggersBlock(t *testing.T) {
	clock := newFakeClock()
	var sinkIdentity string
	var sinkCount int
	g := NewGate(Config{
		MaxConnectionsPerIdentity: 1000,
		SuspiciousThreshold:       100,
		BlockDuration:             5 * time.Minute,
		Now:                       clock.Now,
	}, func(identity string, n int) {
		sinkIdentity = identity
		sinkCount = n
	})

	// 100 requests within a minute pass; the 101st trips the threshold.
	for i := 0; i < 100; i++ {
		dec := g.Admit("9.9.9.9")
		if !dec.Allowed {
			t.Fatalf("request %d: expected allow, got deny(%s)", i+1, dec.Reason)
		}
		g.Release("9.9.9.9")
		clock.Advance(100 * time.Millisecond)
	}

	dec := g.Admit("9.9.9.9")
	if dec.Allowed || dec.Reason != ReasonSuspicious {
		t.Fatalf("101st request: expected deny(suspicious), got %+v", dec)
	}
	if sinkIdentity != "9.9.9.9" || sinkCount < 100 {
		t.Fatalf("event sink not invoked correctly: %q %d", sinkIdentity, sinkCount)
	}

	// Still inside block duration: denied with reason blocked.
	clock.Advance(time.Minute)
	dec = g.Admit("9.9.9.9")
	if dec.Allowed || dec.Reason != ReasonBlocked {
		t.Fatalf("expected deny(blocked) during block, got %+v", dec)
	}
	if dec.RetryAfter <= 0 {
		t.Fatal("blocked denial must report remaining block time")
	}

	// After the block expires the identity is admitted again.
	clock.Advance(5 * time.Minute)
	if dec := g.Admit("9.9.9.9"); !dec.Allowed {
		t.Fatalf("expected allow after block expiry, got deny(%s)", dec.Reason)
	}
}

func TestBlockBoundary(t *testing.T) {
	clock := newFakeClock()
	g := NewGate(Config{BlockDuration: time.Minute, Now: clock.Now}, nil)

	g.Block("1.1.1.1", time.Minute)

	// Rejected throughout [t0, t0+D).
	clock.Advance(59 * time.Second)
	if dec := g.Admit("1.1.1.1"); dec.Allowed {
		t.Fatal("expected deny one second before expiry")
	}

	// Accepted at exactly t0+D.
	clock.Advance(time.Second)
	if dec := g.Admit("1.1.1.1"); !dec.Allowed {
		t.Fatalf("expected allow at expiry boundary, got deny(%s)", dec.Reason)
	}
}

func TestMaxConnections(t *testing.T) {
	clock := newFakeClock()
	g := NewGate(Config{
		MaxConnectionsPerIdentity: 3,
		SuspiciousThreshold:       1000,
		Now:                       clock.Now,
	}, nil)

	for i := 0; i < 3; i++ {
		if dec := g.Admit("2.2.2.2"); !dec.Allowed {
			t.Fatalf("connection %d unexpectedly denied", i+1)
		}
	}
	dec := g.Admit("2.2.2.2")
	if dec.Allowed || dec.Reason != ReasonMaxConnections {
		t.Fatalf("expected deny(max_connections), got %+v", dec)
	}

	// No block is created for the connection cap alone.
	if g.IsBlocked("2.2.2.2") {
		t.Fatal("max_connections denial must not create a block")
	}

	// Releasing frees a slot.
	g.Release("2.2.2.2")
	if dec := g.Admit("2.2.2.2"); !dec.Allowed {
		t.Fatalf("expected allow after release, got deny(%s)", dec.Reason)
	}
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	clock := newFakeClock()
	g := NewGate(Config{Now: clock.Now}, nil)

	g.Release("3.3.3.3")
	g.Release("3.3.3.3")
	if n := g.ActiveConnections("3.3.3.3"); n != 0 {
		t.Fatalf("active connections = %d, want 0", n)
	}
}

func TestUnblockRoundTrip(t *testing.T) {
	clock := newFakeClock()
	g := NewGate(Config{Now: clock.Now}, nil)

	g.Block("4.4.4.4", time.Hour)
	if !g.IsBlocked("4.4.4.4") {
		t.Fatal("expected identity to be blocked")
	}

	if !g.Unblock("4.4.4.4") {
		t.Fatal("Unblock should report the block existed")
	}
	if g.Unblock("4.4.4.4") {
		t.Fatal("second Unblock should report nothing to remove")
	}

	if dec := g.Admit("4.4.4.4"); !dec.Allowed {
		t.Fatalf("expected allow after unblock, got deny(%s)", dec.Reason)
	}
}

func TestBlockedListing(t *testing.T) {
	clock := newFakeClock()
	g := NewGate(Config{Now: clock.Now}, nil)

	g.Block("5.5.5.5", time.Hour)
	g.Block("6.6.6.6", time.Second)

	clock.Advance(2 * time.Second)
	entries := g.Blocked()
	if len(entries) != 1 {
		t.Fatalf("expected 1 live block, got %d", len(entries))
	}
	if entries[0].Identity != "5.5.5.5" {
		t.Fatalf("unexpected blocked identity %q", entries[0].Identity)
	}
	if !entries[0].ExpiresAt.After(entries[0].BlockedAt) {
		t.Fatal("block expiry must be strictly after its start")
	}
}

func TestGlobalLimiter(t *testing.T) {
	clock := newFakeClock()
	g := NewGate(Config{
		SuspiciousThreshold:     1_000_000,
		GlobalRequestsPerSecond: 5,
		Now:                     clock.Now,
	}, nil)

	// The token bucket starts full with a burst of 5; draining it from
	// many identities at once must deny without creating blocks.
	denied := 0
	for i := 0; i < 20; i++ {
		dec := g.Admit("7.7.7.7")
		if !dec.Allowed {
			if dec.Reason != ReasonSuspicious {
				t.Fatalf("global cap denial reason = %q", dec.Reason)
			}
			denied++
		} else {
			g.Release("7.7.7.7")
		}
	}
	if denied == 0 {
		t.Fatal("global limiter never denied")
	}
	if g.IsBlocked("7.7.7.7") {
		t.Fatal("global cap must not block individual identities")
	}
}

func TestSweepDropsIdleIdentities(t *testing.T) {
	clock := newFakeClock()
	g := NewGate(Config{Now: clock.Now}, nil)

	if dec := g.Admit("8.8.8.8"); !dec.Allowed {
		t.Fatal("expected allow")
	}
	g.Release("8.8.8.8")

	clock.Advance(10 * time.Minute)
	g.Sweep()

	g.mu.Lock()
	n := len(g.track)
	g.mu.Unlock()
	if n != 0 {
		t.Fatalf("sweep left %d idle identities tracked", n)
	}
}
