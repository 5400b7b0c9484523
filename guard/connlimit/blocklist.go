package connlimit

import (
	"sync"
	"time"
)

// BlockedEntry describes one live block for the admin surface.
type BlockedEntry struct {
	Identity  string    `json:"identity"`
	BlockedAt time.Time `json:"blocked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type blockRecord struct {
	start    time.Time
	duration time.Duration
}

// Blocklist holds TTL block records keyed by client identity. Expiry is
// lazy: an expired record is removed on the first check that sees it.
type Blocklist struct {
	mu      sync.Mutex
	now     func() time.Time
	records map[string]blockRecord
}

// NewBlocklist creates an empty blocklist using the given clock.
func NewBlocklist(now func() time.Time) *Blocklist {
	if now == nil {
		now = time.Now
	}
	return &Blocklist{
		now:     now,
		records: make(map[string]blockRecord),
	}
}

// Block records a block for identity lasting duration from now.
func (b *Blocklist) Block(identity string, duration time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[identity] = blockRecord{start: b.now(), duration: duration}
}

// Unblock removes a block immediately regardless of remaining duration.
func (b *Blocklist) Unblock(identity string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.records[identity]
	delete(b.records, identity)
	return ok
}

// IsBlocked reports whether identity has a live block and how long it has
// left. A request at exactly start+duration is no longer blocked.
func (b *Blocklist) IsBlocked(identity string) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[identity]
	if !ok {
		return false, 0
	}
	remaining := rec.start.Add(rec.duration).Sub(b.now())
	if remaining <= 0 {
		delete(b.records, identity)
		return false, 0
	}
	return true, remaining
}

// Contains is IsBlocked without the duration, for set-membership checks.
func (b *Blocklist) Contains(identity string) bool {
	blocked, _ := b.IsBlocked(identity)
	return blocked
}

// List returns all live blocks, dropping expired records as it goes.
func (b *Blocklist) List() []BlockedEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	entries := make([]BlockedEntry, 0, len(b.records))
	for identity, rec := range b.records {
		expiry := rec.start.Add(rec.duration)
		if !expiry.After(now) {
			delete(b.records, identity)
			continue
		}
		entries = append(entries, BlockedEntry{
			Identity:  identity,
			BlockedAt: rec.start,
			ExpiresAt: expiry,
		})
	}
	return entries
}

// Len counts live blocks.
func (b *Blocklist) Len() int {
	return len(b.List())
}
