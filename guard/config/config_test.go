package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sample = `
server:
  listen: ":8081"
  admin_listen: ":9191"
  trusted_agents:
    - internal-healthcheck

rate_limit:
  requests_per_minute: 120
  requests_per_hour: 2000
  burst_limit: 20

connection_gate:
  max_connections_per_identity: 25
  suspicious_threshold: 200
  block_duration_sec: 600

monitor:
  brute_force_per_identity: 8
  retention_hours: 12
  sweep_interval_sec: 30

webhook:
  enabled: true
  urls:
    - https://hooks.example.com/alerts
  min_level: CRITICAL
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Listen != ":8081" {
		t.Errorf("listen %q", cfg.Server.Listen)
	}
	if cfg.Server.AdminListen != ":9191" {
		t.Errorf("admin listen %q", cfg.Server.AdminListen)
	}
	if len(cfg.Server.TrustedAgents) != 1 || cfg.Server.TrustedAgents[0] != "internal-healthcheck" {
		t.Errorf("trusted agents %v", cfg.Server.TrustedAgents)
	}

	rl := cfg.RateLimiter()
	if rl.RequestsPerMinute != 120 || rl.RequestsPerHour != 2000 || rl.BurstLimit != 20 {
		t.Errorf("rate limit translation %+v", rl)
	}

	gate := cfg.Gate()
	if gate.SuspiciousThreshold != 200 {
		t.Errorf("suspicious threshold %d", gate.SuspiciousThreshold)
	}
	if gate.BlockDuration != 10*time.Minute {
		t.Errorf("block duration %v", gate.BlockDuration)
	}

	mon := cfg.MonitorOptions()
	if mon.BruteForcePerIdentity != 8 {
		t.Errorf("brute force threshold %d", mon.BruteForcePerIdentity)
	}
	if mon.Retention != 12*time.Hour {
		t.Errorf("retention %v", mon.Retention)
	}
	if mon.SweepInterval != 30*time.Second {
		t.Errorf("sweep interval %v", mon.SweepInterval)
	}

	if !cfg.Webhook.Enabled || cfg.Webhook.MinLevel != "CRITICAL" {
		t.Errorf("webhook %+v", cfg.Webhook)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Listen != ":8080" {
		t.Errorf("listen %q", cfg.Server.Listen)
	}
	if cfg.Server.AdminListen != ":9090" {
		t.Errorf("admin listen %q", cfg.Server.AdminListen)
	}
	// Zero section values pass through so constructors fill defaults.
	if cfg.RateLimiter().RequestsPerMinute != 0 {
		t.Error("expected zero passthrough for unset thresholds")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
