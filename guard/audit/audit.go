// Package audit is the append-only structured log sink consumed by the
// request-defense pipeline. Write failures are swallowed by the logging
// backend and never affect request outcome.
package audit

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Audit event types recorded once per non-excluded request.
const (
	EventRequest        = "http_request"
	EventLogin          = "user_login"
	EventLoginFailed    = "authentication_failure"
	EventAuthorizeError = "authorization_failure"
	EventSecurityDeny   = "security_violation"
)

// RotationConfig controls log rotation for one sink file.
type RotationConfig struct {
	Filename   string `yaml:"filename"`
	MaxSizeMB  int    `yaml:"max_size_mb"`  // before rotation (default: 100)
	MaxBackups int    `yaml:"max_backups"`  // old files kept (default: 3)
	MaxAgeDays int    `yaml:"max_age_days"` // days to keep old files (default: 28)
	Compress   bool   `yaml:"compress"`
}

// Config holds audit trail settings.
type Config struct {
	Enabled  bool           `yaml:"enabled"`
	Audit    RotationConfig `yaml:"audit"`
	Security RotationConfig `yaml:"security"`

	Now func() time.Time `yaml:"-"`
}

// RequestContext carries the request fields every record shares.
type RequestContext struct {
	Identity  string
	Method    string
	Endpoint  string
	UserAgent string
	RequestID string
}

// Trail writes structured audit and security records to rotated JSON
// logs. It is safe for concurrent use.
type Trail struct {
	audit    *logrus.Logger
	security *logrus.Logger
	now      func() time.Time
	seq      atomic.Int64
}

func rotatedWriter(rc RotationConfig) io.Writer {
	if rc.Filename == "" {
		return os.Stdout
	}
	if rc.MaxSizeMB == 0 {
		rc.MaxSizeMB = 100
	}
	if rc.MaxBackups == 0 {
		rc.MaxBackups = 3
	}
	if rc.MaxAgeDays == 0 {
		rc.MaxAgeDays = 28
	}
	return &lumberjack.Logger{
		Filename:   rc.Filename,
		MaxSize:    rc.MaxSizeMB,
		MaxBackups: rc.MaxBackups,
		MaxAge:     rc.MaxAgeDays,
		Compress:   rc.Compress,
	}
}

func newJSONLogger(w io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	return l
}

// NewTrail creates an audit trail. With Enabled false both sinks
// discard.
func NewTrail(config Config) *Trail {
	if config.Now == nil {
		config.Now = time.Now
	}

	auditOut := io.Discard
	securityOut := io.Discard
	if config.Enabled {
		auditOut = rotatedWriter(config.Audit)
		securityOut = rotatedWriter(config.Security)
	}

	return &Trail{
		audit:    newJSONLogger(auditOut, logrus.InfoLevel),
		security: newJSONLogger(securityOut, logrus.WarnLevel),
		now:      config.Now,
	}
}

// SetOutputs redirects both sinks; tests point them at buffers.
func (t *Trail) SetOutputs(auditOut, securityOut io.Writer) {
	t.audit.SetOutput(auditOut)
	t.security.SetOutput(securityOut)
}

func (t *Trail) eventID() string {
	return fmt.Sprintf("evt_%d_%d", t.now().UnixMicro(), t.seq.Add(1))
}

// LogAudit records one request outcome. No return value: the pipeline
// never acts on sink failures.
func (t *Trail) LogAudit(eventType string, ctx RequestContext, userID, userEmail string, statusCode int, details map[string]any, sessionID string) {
	fields := logrus.Fields{
		"event_id":    t.eventID(),
		"event_type":  eventType,
		"identity":    ctx.Identity,
		"method":      ctx.Method,
		"endpoint":    ctx.Endpoint,
		"user_agent":  ctx.UserAgent,
		"status_code": statusCode,
	}
	if userID != "" {
		fields["user_id"] = userID
	}
	if userEmail != "" {
		fields["user_email"] = userEmail
	}
	if sessionID != "" {
		fields["session_id"] = sessionID
	}
	if ctx.RequestID != "" {
		fields["request_id"] = ctx.RequestID
	}
	for k, v := range details {
		fields["detail_"+k] = v
	}
	t.audit.WithFields(fields).Info("audit")
}

// LogSecurity records a denied or flagged request.
func (t *Trail) LogSecurity(eventType, severity string, ctx RequestContext, details map[string]any, userID string, blocked bool, actionTaken string) {
	fields := logrus.Fields{
		"event_id":     t.eventID(),
		"event_type":   eventType,
		"severity":     severity,
		"identity":     ctx.Identity,
		"method":       ctx.Method,
		"endpoint":     ctx.Endpoint,
		"user_agent":   ctx.UserAgent,
		"blocked":      blocked,
		"action_taken": actionTaken,
	}
	if userID != "" {
		fields["user_id"] = userID
	}
	if ctx.RequestID != "" {
		fields["request_id"] = ctx.RequestID
	}
	for k, v := range details {
		fields["detail_"+k] = v
	}

	entry := t.security.WithFields(fields)
	switch severity {
	case "HIGH", "CRITICAL":
		entry.Error("security")
	default:
		entry.Warn("security")
	}
}
