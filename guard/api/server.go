// Package api exposes the security operations surface: dashboard,
// alert management, block management, the live alert feed, and health.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"hrguard/guard/audit"
	"hrguard/guard/connlimit"
	"hrguard/guard/health"
	"hrguard/guard/monitor"
	"hrguard/guard/requestid"
)

// Server wires the admin routes. It reads from the monitor and gate and
// records admin actions on the audit trail.
type Server struct {
	monitor *monitor.Monitor
	gate    *connlimit.Gate
	trail   *audit.Trail
	feed    *LiveFeed
	router  *mux.Router
	version string
	started time.Time
}

// NewServer builds the admin API. feed may be nil when the live feed is
// disabled; trail may be nil when auditing is off.
func NewServer(m *monitor.Monitor, g *connlimit.Gate, trail *audit.Trail, feed *LiveFeed, version string) *Server {
	s := &Server{
		monitor: m,
		gate:    g,
		trail:   trail,
		feed:    feed,
		router:  mux.NewRouter(),
		version: version,
		started: time.Now(),
	}

	r := s.router.PathPrefix("/security").Subrouter()
	r.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	r.HandleFunc("/alerts", s.handleAlerts).Methods(http.MethodGet)
	r.HandleFunc("/alerts/{id}/resolve", s.handleResolve).Methods(http.MethodPost)
	r.HandleFunc("/blocked-ips", s.handleBlocked).Methods(http.MethodGet)
	r.HandleFunc("/unblock-ip", s.handleUnblock).Methods(http.MethodPost)
	r.HandleFunc("/health", health.Handler(version, s.started)).Methods(http.MethodGet)
	if feed != nil {
		r.HandleFunc("/live", feed.Handler()).Methods(http.MethodGet)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying router so callers can mount extra
// handlers (e.g. /metrics) on the same listener.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snap := s.monitor.Snapshot(len(s.gate.Blocked()))
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	var filter monitor.AlertFilter

	if v := r.URL.Query().Get("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "resolved must be true or false")
			return
		}
		filter.Resolved = &resolved
	}
	if v := r.URL.Query().Get("level"); v != "" {
		level := monitor.Severity(strings.ToUpper(v))
		switch level {
		case monitor.SeverityLow, monitor.SeverityMedium, monitor.SeverityHigh, monitor.SeverityCritical:
			filter.Level = level
		default:
			writeError(w, http.StatusBadRequest, "unknown level")
			return
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	alerts := s.monitor.Alerts(filter)
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.monitor.Resolve(id) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}

	s.logAdmin(r, "alert_resolved", map[string]any{"alert_id": id})
	writeJSON(w, http.StatusOK, map[string]any{"alert_id": id, "resolved": true})
}

func (s *Server) handleBlocked(w http.ResponseWriter, r *http.Request) {
	entries := s.gate.Blocked()
	writeJSON(w, http.StatusOK, map[string]any{
		"blocked":               entries,
		"count":                 len(entries),
		"suspicious_identities": s.monitor.SuspiciousIdentities(),
	})
}

func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identity string `json:"identity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Identity == "" {
		writeError(w, http.StatusBadRequest, "body must be {\"identity\": \"...\"}")
		return
	}

	if !s.gate.Unblock(body.Identity) {
		writeError(w, http.StatusNotFound, "identity is not blocked")
		return
	}

	s.logAdmin(r, "identity_unblocked", map[string]any{"identity": body.Identity})
	writeJSON(w, http.StatusOK, map[string]any{"identity": body.Identity, "unblocked": true})
}

func (s *Server) logAdmin(r *http.Request, action string, details map[string]any) {
	if s.trail == nil {
		return
	}
	ctx := audit.RequestContext{
		Identity:  r.RemoteAddr,
		Method:    r.Method,
		Endpoint:  r.URL.Path,
		UserAgent: r.UserAgent(),
		RequestID: requestid.FromRequest(r),
	}
	if details == nil {
		details = map[string]any{}
	}
	details["admin_action"] = action
	s.trail.LogAudit(audit.EventRequest, ctx, "", "", http.StatusOK, details, "")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
