// Package config loads the service configuration from a YAML file and
// translates it into the per-package option structs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"hrguard/guard/audit"
	"hrguard/guard/authid"
	"hrguard/guard/compression"
	"hrguard/guard/connlimit"
	"hrguard/guard/http3"
	"hrguard/guard/monitor"
	"hrguard/guard/ratelimit"
	"hrguard/guard/webhook"
)

// Config is the root of the YAML configuration file. Zero values mean
// "use the package default"; the translation methods below pass zeros
// through so each package's constructor fills them in.
type Config struct {
	Server    ServerConfig       `yaml:"server"`
	RateLimit RateLimitConfig    `yaml:"rate_limit"`
	ConnGate  ConnGateConfig     `yaml:"connection_gate"`
	Monitor   MonitorConfig      `yaml:"monitor"`
	Auth      authid.Config      `yaml:"auth"`
	Audit     audit.Config       `yaml:"audit"`
	Webhook   webhook.Config     `yaml:"webhook"`
	HTTP3     http3.Config       `yaml:"http3"`
	Compress  compression.Config `yaml:"compression"`
}

type ServerConfig struct {
	Listen      string `yaml:"listen"`       // guarded traffic (default :8080)
	AdminListen string `yaml:"admin_listen"` // security API + metrics (default :9090)

	// TrustedAgents lists user-agent substrings exempt from the
	// request gates, e.g. internal health checkers.
	TrustedAgents []string `yaml:"trusted_agents"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	RequestsPerHour   int `yaml:"requests_per_hour"`
	BurstLimit        int `yaml:"burst_limit"`
}

type ConnGateConfig struct {
	MaxConnectionsPerIdentity int `yaml:"max_connections_per_identity"`
	SuspiciousThreshold       int `yaml:"suspicious_threshold"`
	BlockDurationSec          int `yaml:"block_duration_sec"`
	GlobalRequestsPerSecond   int `yaml:"global_requests_per_second"`
}

type MonitorConfig struct {
	BruteForcePerIdentity int `yaml:"brute_force_per_identity"`
	BruteForcePerUser     int `yaml:"brute_force_per_user"`
	RequestsPerMinute     int `yaml:"requests_per_minute"`
	EndpointScanThreshold int `yaml:"endpoint_scan_threshold"`
	GlobalAuthFailures    int `yaml:"global_auth_failures"`
	BlockDurationSec      int `yaml:"block_duration_sec"`
	RetentionHours        int `yaml:"retention_hours"`
	SweepIntervalSec      int `yaml:"sweep_interval_sec"`

	GlobalHistory      int `yaml:"global_history"`
	PerIdentityHistory int `yaml:"per_identity_history"`
	PerUserHistory     int `yaml:"per_user_history"`

	// DenyListFile optionally points at a user-agent deny-list file
	// that is watched and hot-reloaded. Empty keeps the built-in list.
	DenyListFile string `yaml:"deny_list_file"`
}

// Load reads and parses the YAML file at path. A missing path returns
// an all-defaults Config.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		applyDefaults(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.AdminListen == "" {
		cfg.Server.AdminListen = ":9090"
	}
}

// RateLimiter translates the rate limit section.
func (c *Config) RateLimiter() ratelimit.Config {
	return ratelimit.Config{
		RequestsPerMinute: c.RateLimit.RequestsPerMinute,
		RequestsPerHour:   c.RateLimit.RequestsPerHour,
		BurstLimit:        c.RateLimit.BurstLimit,
	}
}

// Gate translates the connection gate section.
func (c *Config) Gate() connlimit.Config {
	return connlimit.Config{
		MaxConnectionsPerIdentity: c.ConnGate.MaxConnectionsPerIdentity,
		SuspiciousThreshold:       c.ConnGate.SuspiciousThreshold,
		BlockDuration:             time.Duration(c.ConnGate.BlockDurationSec) * time.Second,
		GlobalRequestsPerSecond:   c.ConnGate.GlobalRequestsPerSecond,
	}
}

// MonitorConfig translates the monitor section.
func (c *Config) MonitorOptions() monitor.Config {
	return monitor.Config{
		BruteForcePerIdentity: c.Monitor.BruteForcePerIdentity,
		BruteForcePerUser:     c.Monitor.BruteForcePerUser,
		RequestsPerMinute:     c.Monitor.RequestsPerMinute,
		EndpointScanThreshold: c.Monitor.EndpointScanThreshold,
		GlobalAuthFailures:    c.Monitor.GlobalAuthFailures,
		BlockDuration:         time.Duration(c.Monitor.BlockDurationSec) * time.Second,
		Retention:             time.Duration(c.Monitor.RetentionHours) * time.Hour,
		SweepInterval:         time.Duration(c.Monitor.SweepIntervalSec) * time.Second,
		GlobalHistory:         c.Monitor.GlobalHistory,
		PerIdentityHistory:    c.Monitor.PerIdentityHistory,
		PerUserHistory:        c.Monitor.PerUserHistory,
	}
}
