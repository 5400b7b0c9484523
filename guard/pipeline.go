// Package guard composes the request defenses into a single middleware
// chain: connection gate, rate limits, input screening, then monitoring
// and audit of the outcome.
package guard

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hrguard/guard/audit"
	"hrguard/guard/authid"
	"hrguard/guard/clientip"
	"hrguard/guard/connlimit"
	"hrguard/guard/metrics"
	"hrguard/guard/monitor"
	"hrguard/guard/ratelimit"
	"hrguard/guard/requestid"
	"hrguard/guard/threat"
)

// Pipeline holds the gates and the observers they report to.
type Pipeline struct {
	meter     *ratelimit.Meter
	gate      *connlimit.Gate
	detector  *threat.Detector
	monitor   *monitor.Monitor
	extractor *authid.Extractor
	trail     *audit.Trail

	// trustedAgents bypass the gates entirely, e.g. internal health
	// checkers. Substring match against the User-Agent header.
	trustedAgents []string
}

// NewPipeline builds the middleware chain. extractor and trail may be
// nil when user attribution or auditing is disabled.
func NewPipeline(meter *ratelimit.Meter, gate *connlimit.Gate, detector *threat.Detector, mon *monitor.Monitor, extractor *authid.Extractor, trail *audit.Trail, trustedAgents []string) *Pipeline {
	return &Pipeline{
		meter:         meter,
		gate:          gate,
		detector:      detector,
		monitor:       mon,
		extractor:     extractor,
		trail:         trail,
		trustedAgents: trustedAgents,
	}
}

// statusRecorder captures the status code the inner handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	return rec.ResponseWriter.Write(b)
}

// Handler wraps next with the full defense chain.
func (p *Pipeline) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		securityHeaders(w)
		metrics.RequestsTotal.WithLabelValues(r.Method).Inc()

		if p.isTrustedAgent(r.UserAgent()) {
			next.ServeHTTP(w, r)
			return
		}

		identity := clientip.FromRequest(r)
		userID := ""
		if p.extractor != nil {
			userID = p.extractor.UserID(r)
		}
		reqCtx := audit.RequestContext{
			Identity:  identity,
			Method:    r.Method,
			Endpoint:  r.URL.Path,
			UserAgent: r.UserAgent(),
			RequestID: requestid.FromRequest(r),
		}

		// Connection gate: blocks, flood suspicion, concurrency cap.
		if d := p.gate.Admit(identity); !d.Allowed {
			metrics.RequestsBlocked.WithLabelValues("connection", d.Reason).Inc()
			p.logSecurity(audit.EventSecurityDeny, "HIGH", reqCtx, userID, map[string]any{
				"gate":   "connection",
				"reason": d.Reason,
			})
			denyJSON(w, http.StatusTooManyRequests, "request rejected", d.RetryAfter)
			return
		}
		metrics.ActiveConnections.Inc()
		defer func() {
			p.gate.Release(identity)
			metrics.ActiveConnections.Dec()
		}()

		// Rate limits: burst, minute, hour. Denied requests are not
		// recorded, so the window only holds served traffic.
		if d := p.meter.Check(identity); !d.Allowed {
			metrics.RequestsBlocked.WithLabelValues("rate", d.Reason).Inc()
			metrics.RateLimitExceeded.WithLabelValues(d.Reason).Inc()
			p.monitor.Record(monitor.Event{
				Type:      monitor.EventRateLimited,
				Severity:  monitor.SeverityMedium,
				Identity:  identity,
				UserID:    userID,
				Endpoint:  r.URL.Path,
				UserAgent: r.UserAgent(),
				Details:   map[string]any{"window": d.Reason},
			})
			p.logSecurity(audit.EventSecurityDeny, "MEDIUM", reqCtx, userID, map[string]any{
				"gate":   "rate",
				"window": d.Reason,
			})
			p.rateHeaders(w, identity)
			denyJSON(w, http.StatusTooManyRequests, "rate limit exceeded", d.RetryAfter)
			return
		}
		p.meter.Record(identity)
		p.rateHeaders(w, identity)

		// Input screening on path and parameters.
		if family, param, found := p.screen(r); found {
			metrics.RequestsBlocked.WithLabelValues("input", family).Inc()
			metrics.MaliciousInputBlocked.WithLabelValues(family).Inc()
			p.monitor.Record(monitor.Event{
				Type:      monitor.EventMaliciousInput,
				Severity:  monitor.SeverityHigh,
				Identity:  identity,
				UserID:    userID,
				Endpoint:  r.URL.Path,
				UserAgent: r.UserAgent(),
				Details:   map[string]any{"family": family, "parameter": param},
			})
			p.logSecurity(audit.EventSecurityDeny, "HIGH", reqCtx, userID, map[string]any{
				"gate":      "input",
				"family":    family,
				"parameter": param,
			})
			denyJSON(w, http.StatusBadRequest, "invalid request input", 0)
			return
		}

		metrics.RequestsAllowed.Inc()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		p.observe(rec.status, identity, userID, r, reqCtx)
	})
}

// screen inspects the path and parameters for known attack patterns.
func (p *Pipeline) screen(r *http.Request) (family, param string, found bool) {
	if p.detector.ScanPath(r.URL.Path) {
		return threat.FamilyTraversal, "path", true
	}
	if param, family, found := p.detector.ScanValues(r.URL.Query()); found {
		return family, param, true
	}
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseForm(); err == nil {
			if param, family, found := p.detector.ScanValues(r.PostForm); found {
				return family, param, true
			}
		}
	}
	return "", "", false
}

// observe classifies the served request and feeds the monitor and audit
// trail after the response is written.
func (p *Pipeline) observe(status int, identity, userID string, r *http.Request, reqCtx audit.RequestContext) {
	eventType := monitor.EventRequest
	severity := monitor.SeverityLow
	switch status {
	case http.StatusUnauthorized:
		eventType = monitor.EventAuthFailure
		severity = monitor.SeverityMedium
	case http.StatusForbidden:
		eventType = monitor.EventUnauthorized
		severity = monitor.SeverityMedium
	}

	metrics.SecurityEvents.WithLabelValues(eventType).Inc()
	p.monitor.Record(monitor.Event{
		Type:      eventType,
		Severity:  severity,
		Identity:  identity,
		UserID:    userID,
		Endpoint:  r.URL.Path,
		UserAgent: r.UserAgent(),
		Details:   map[string]any{"status": status},
	})

	if p.trail != nil {
		auditType := audit.EventRequest
		if eventType == monitor.EventAuthFailure {
			auditType = audit.EventLoginFailed
		}
		p.trail.LogAudit(auditType, reqCtx, userID, "", status, nil, "")
	}
}

func (p *Pipeline) isTrustedAgent(ua string) bool {
	for _, trusted := range p.trustedAgents {
		if trusted != "" && strings.Contains(ua, trusted) {
			return true
		}
	}
	return false
}

func (p *Pipeline) rateHeaders(w http.ResponseWriter, identity string) {
	perMinute, perHour := p.meter.Limits()
	rem := p.meter.Remaining(identity)
	h := w.Header()
	h.Set("X-RateLimit-Limit-Minute", strconv.Itoa(perMinute))
	h.Set("X-RateLimit-Remaining-Minute", strconv.Itoa(rem.Minute))
	h.Set("X-RateLimit-Limit-Hour", strconv.Itoa(perHour))
	h.Set("X-RateLimit-Remaining-Hour", strconv.Itoa(rem.Hour))
}

func (p *Pipeline) logSecurity(eventType, severity string, ctx audit.RequestContext, userID string, details map[string]any) {
	if p.trail == nil {
		return
	}
	p.trail.LogSecurity(eventType, severity, ctx, details, userID, true, "request_denied")
}

// Sweep refreshes gauge metrics. Registered with the monitor so the
// background sweep keeps them current.
func (p *Pipeline) Sweep() {
	metrics.BlockedIdentities.Set(float64(len(p.gate.Blocked())))
}

const contentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline'; " +
	"style-src 'self' 'unsafe-inline'; " +
	"img-src 'self' data: https:; " +
	"font-src 'self'; " +
	"connect-src 'self'; " +
	"frame-ancestors 'none'; " +
	"base-uri 'self'; " +
	"form-action 'self'"

const permissionsPolicy = "geolocation=(), microphone=(), camera=(), " +
	"payment=(), usb=(), magnetometer=(), gyroscope=(), speaker=()"

func securityHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-XSS-Protection", "1; mode=block")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	h.Set("Content-Security-Policy", contentSecurityPolicy)
	h.Set("Permissions-Policy", permissionsPolicy)
}

func denyJSON(w http.ResponseWriter, status int, msg string, retryAfter time.Duration) {
	if secs := int(retryAfter.Seconds()); secs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
