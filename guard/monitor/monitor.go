package monitor

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Notifier receives every alert the monitor creates. Implementations
// filter by severity themselves and must never block or propagate
// failures into the request path.
type Notifier interface {
	Notify(alert Alert)
}

// Blocker is the block-set the brute-force rule feeds. The connection
// gate satisfies it.
type Blocker interface {
	Block(identity string, duration time.Duration)
	IsBlocked(identity string) bool
}

// Sweeper is any component with per-identity state the background sweep
// should trim alongside the monitor's own rings.
type Sweeper interface {
	Sweep()
}

// Config holds detection thresholds. Immutable for the process lifetime
// except the user-agent deny list, which is hot-reloadable.
type Config struct {
	BruteForcePerIdentity int           // auth failures per identity per hour
	BruteForcePerUser     int           // auth failures per user per hour
	RequestsPerMinute     int           // any-event rate that marks an identity suspicious
	EndpointScanThreshold int           // distinct endpoints per minute
	GlobalAuthFailures    int           // hour-trailing aggregate, checked by the sweep
	BlockDuration         time.Duration // applied by the brute-force rule
	Retention             time.Duration // event history window
	SweepInterval         time.Duration
	StopTimeout           time.Duration // bounded join on Stop

	GlobalHistory      int // global ring capacity
	PerIdentityHistory int
	PerUserHistory     int

	SuspiciousUserAgents []string // substring deny-list, e.g. scanner tool names

	Now func() time.Time
}

// Monitor is the event ledger, rule engine, and alert store. Gates feed
// it classified events; rules run synchronously inside Record so the
// caller observes any alert created as a side effect.
type Monitor struct {
	mu     sync.Mutex
	config Config

	events     *ring
	byIdentity map[string]*ring
	byUser     map[string]*ring
	suspicious map[string]struct{}

	alerts     []*Alert
	alertIndex map[string]*Alert
	alertSeq   int64

	// One alert per rule/subject per window. Kept in a TTL cache so a
	// client hammering past a threshold doesn't flood the alert list.
	dedup *gocache.Cache

	uaDenyList []string

	blocker   Blocker
	notifiers []Notifier
	sweepers  []Sweeper

	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New creates a monitor. blocker may be nil (brute-force blocks are then
// recorded in alerts only).
func New(config Config, blocker Blocker, notifiers ...Notifier) *Monitor {
	if config.BruteForcePerIdentity == 0 {
		config.BruteForcePerIdentity = 10
	}
	if config.BruteForcePerUser == 0 {
		config.BruteForcePerUser = 5
	}
	if config.RequestsPerMinute == 0 {
		config.RequestsPerMinute = 100
	}
	if config.EndpointScanThreshold == 0 {
		config.EndpointScanThreshold = 20
	}
	if config.GlobalAuthFailures == 0 {
		config.GlobalAuthFailures = 50
	}
	if config.BlockDuration == 0 {
		config.BlockDuration = 5 * time.Minute
	}
	if config.Retention == 0 {
		config.Retention = 24 * time.Hour
	}
	if config.SweepInterval == 0 {
		config.SweepInterval = time.Minute
	}
	if config.StopTimeout == 0 {
		config.StopTimeout = 2 * time.Second
	}
	if config.GlobalHistory == 0 {
		config.GlobalHistory = 10000
	}
	if config.PerIdentityHistory == 0 {
		config.PerIdentityHistory = 1000
	}
	if config.PerUserHistory == 0 {
		config.PerUserHistory = 1000
	}
	if len(config.SuspiciousUserAgents) == 0 {
		config.SuspiciousUserAgents = []string{"sqlmap", "nikto", "nmap", "masscan", "zap", "burp"}
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	m := &Monitor{
		config:     config,
		events:     newRing(config.GlobalHistory),
		byIdentity: make(map[string]*ring),
		byUser:     make(map[string]*ring),
		suspicious: make(map[string]struct{}),
		alertIndex: make(map[string]*Alert),
		dedup:      gocache.New(time.Hour, 10*time.Minute),
		blocker:    blocker,
		notifiers:  notifiers,
	}
	m.setDenyList(config.SuspiciousUserAgents)
	return m
}

// AddSweeper registers extra per-identity state to trim in the
// background sweep.
func (m *Monitor) AddSweeper(s Sweeper) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepers = append(m.sweepers, s)
}

// SetUserAgentDenyList replaces the suspicious user-agent substrings.
// Used by the config hot-reloader.
func (m *Monitor) SetUserAgentDenyList(agents []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setDenyList(agents)
}

func (m *Monitor) setDenyList(agents []string) {
	deny := make([]string, 0, len(agents))
	for _, a := range agents {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			deny = append(deny, a)
		}
	}
	m.uaDenyList = deny
}

// Record ingests one event, appends it to the global, per-identity, and
// per-user histories, and evaluates every applicable rule against the
// updated state. No I/O happens here; notification is dispatched async.
func (m *Monitor) Record(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = m.config.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.events.push(e)

	idRing, ok := m.byIdentity[e.Identity]
	if !ok {
		idRing = newRing(m.config.PerIdentityHistory)
		m.byIdentity[e.Identity] = idRing
	}
	idRing.push(e)

	if e.UserID != "" {
		userRing, ok := m.byUser[e.UserID]
		if !ok {
			userRing = newRing(m.config.PerUserHistory)
			m.byUser[e.UserID] = userRing
		}
		userRing.push(e)
	}

	m.checkImmediateThreats(e, idRing)
}

func (m *Monitor) checkImmediateThreats(e Event, idRing *ring) {
	if e.Type == EventAuthFailure {
		m.checkBruteForce(e, idRing)
	}
	m.checkUserAgent(e)
	m.checkRequestRate(e, idRing)
	m.checkEndpointScanning(e, idRing)
}

func (m *Monitor) checkBruteForce(e Event, idRing *ring) {
	hourAgo := e.Timestamp.Add(-time.Hour)

	failures := idRing.countSince(hourAgo, EventAuthFailure)
	if failures >= m.config.BruteForcePerIdentity && m.dedupOnce("bfip:"+e.Identity, time.Hour) {
		if m.blocker != nil {
			m.blocker.Block(e.Identity, m.config.BlockDuration)
		}
		m.createAlert(
			AlertBruteForceIP,
			SeverityCritical,
			fmt.Sprintf("Brute force attack detected from %s", e.Identity),
			map[string]any{"identity": e.Identity, "failed_attempts": failures, "time_window": "1 hour"},
			idRing.lastN(5, hourAgo, EventAuthFailure),
		)
	}

	if e.UserID == "" {
		return
	}
	userRing, ok := m.byUser[e.UserID]
	if !ok {
		return
	}
	failures = userRing.countSince(hourAgo, EventAuthFailure)
	if failures >= m.config.BruteForcePerUser && m.dedupOnce("bfuser:"+e.UserID, time.Hour) {
		m.createAlert(
			AlertBruteForceUser,
			SeverityHigh,
			fmt.Sprintf("Multiple failed login attempts for user %s", e.UserID),
			map[string]any{"user_id": e.UserID, "failed_attempts": failures, "time_window": "1 hour"},
			userRing.lastN(5, hourAgo, EventAuthFailure),
		)
	}
}

func (m *Monitor) checkUserAgent(e Event) {
	ua := strings.ToLower(e.UserAgent)
	if ua == "" {
		return
	}
	for _, deny := range m.uaDenyList {
		if strings.Contains(ua, deny) {
			if m.dedupOnce("ua:"+e.Identity, time.Hour) {
				m.createAlert(
					AlertSuspiciousAgent,
					SeverityHigh,
					fmt.Sprintf("Suspicious user agent detected from %s", e.Identity),
					map[string]any{"user_agent": e.UserAgent, "identity": e.Identity, "matched": deny},
					[]Event{e},
				)
			}
			return
		}
	}
}

func (m *Monitor) checkRequestRate(e Event, idRing *ring) {
	minuteAgo := e.Timestamp.Add(-time.Minute)
	recent := idRing.countSince(minuteAgo, "")
	if recent < m.config.RequestsPerMinute {
		return
	}
	m.suspicious[e.Identity] = struct{}{}
	if m.dedupOnce("rate:"+e.Identity, time.Minute) {
		m.createAlert(
			AlertHighRequestRate,
			SeverityMedium,
			fmt.Sprintf("High request rate detected from %s", e.Identity),
			map[string]any{"identity": e.Identity, "requests_per_minute": recent},
			idRing.lastN(10, minuteAgo, ""),
		)
	}
}

func (m *Monitor) checkEndpointScanning(e Event, idRing *ring) {
	minuteAgo := e.Timestamp.Add(-time.Minute)
	endpoints := make(map[string]struct{})
	idRing.each(func(ev Event) bool {
		if ev.Timestamp.After(minuteAgo) {
			endpoints[ev.Endpoint] = struct{}{}
		}
		return true
	})
	if len(endpoints) < m.config.EndpointScanThreshold {
		return
	}
	m.suspicious[e.Identity] = struct{}{}
	if m.dedupOnce("scan:"+e.Identity, time.Minute) {
		sample := make([]string, 0, 10)
		for ep := range endpoints {
			if len(sample) == 10 {
				break
			}
			sample = append(sample, ep)
		}
		m.createAlert(
			AlertEndpointScanning,
			SeverityHigh,
			fmt.Sprintf("Endpoint scanning detected from %s", e.Identity),
			map[string]any{"identity": e.Identity, "unique_endpoints": len(endpoints), "endpoints": sample},
			idRing.lastN(5, minuteAgo, ""),
		)
	}
}

// dedupOnce reports whether key fired for the first time inside its
// window. Unlike every other window in this package, dedup TTLs run on
// wall time: go-cache has no injectable clock, and holding a duplicate
// alert down slightly long is harmless. Tests that advance a fake clock
// must not expect dedup windows to reopen with it.
func (m *Monitor) dedupOnce(key string, window time.Duration) bool {
	if _, exists := m.dedup.Get(key); exists {
		return false
	}
	m.dedup.Set(key, struct{}{}, window)
	return true
}

// SuspiciousIdentities lists identities flagged by the rate and scanning
// rules.
func (m *Monitor) SuspiciousIdentities() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.suspicious))
	for identity := range m.suspicious {
		out = append(out, identity)
	}
	return out
}

// Start launches the background sweep. It is an error to start a running
// monitor.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("monitor already running")
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.sweepLoop(m.stop, m.done)
	return nil
}

// Stop signals the sweep to exit and waits for it with a bounded
// timeout.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stop, done := m.stop, m.done
	m.mu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-time.After(m.config.StopTimeout):
		log.Printf("monitor: sweep did not stop within %v", m.config.StopTimeout)
	}
}

func (m *Monitor) sweepLoop(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.runSweep()
		}
	}
}

func (m *Monitor) runSweep() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("monitor: sweep panic recovered: %v", r)
		}
	}()
	m.SweepNow()
}

// SweepNow performs one maintenance pass: trims event history to the
// retention window, drops per-identity and per-user entries that end up
// empty, sweeps registered components, and evaluates trend rules.
func (m *Monitor) SweepNow() {
	m.mu.Lock()

	cutoff := m.config.Now().Add(-m.config.Retention)
	m.events.dropOlderThan(cutoff)

	for identity, r := range m.byIdentity {
		r.dropOlderThan(cutoff)
		if r.count == 0 {
			delete(m.byIdentity, identity)
		}
	}
	for userID, r := range m.byUser {
		r.dropOlderThan(cutoff)
		if r.count == 0 {
			delete(m.byUser, userID)
		}
	}

	m.analyzeTrends()
	sweepers := m.sweepers
	m.mu.Unlock()

	for _, s := range sweepers {
		s.Sweep()
	}
}

// analyzeTrends checks hour-trailing aggregates. Callers hold m.mu.
func (m *Monitor) analyzeTrends() {
	hourAgo := m.config.Now().Add(-time.Hour)
	failures := m.events.countSince(hourAgo, EventAuthFailure)
	if failures > m.config.GlobalAuthFailures && m.dedupOnce("trend:authfail", time.Hour) {
		m.createAlert(
			AlertHighAuthFailures,
			SeverityMedium,
			"High number of authentication failures detected",
			map[string]any{"count": failures, "time_window": "1 hour"},
			nil,
		)
	}
}

func safeNotify(n Notifier, a Alert) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("monitor: notifier panic recovered: %v", r)
		}
	}()
	n.Notify(a)
}
