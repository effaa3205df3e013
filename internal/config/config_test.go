package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "sentinel.db" {
		t.Fatalf("expected default db path, got %s", cfg.DBPath)
	}
	if cfg.Supervisor.HealthThreshold != 0.7 {
		t.Fatalf("expected default threshold 0.7, got %.2f", cfg.Supervisor.HealthThreshold)
	}
}

func TestLoadPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	body := `
db_path: /var/lib/sentinel/state.db
supervisor:
  interval_seconds: 10
  max_repair_attempts: 2
gate:
  trusted_sources:
    - billing-svc
    - audit-svc
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "/var/lib/sentinel/state.db" {
		t.Fatalf("db path not overridden: %s", cfg.DBPath)
	}

	sup := cfg.SupervisorConfig()
	if sup.Interval != 10*time.Second {
		t.Fatalf("interval not overridden: %s", sup.Interval)
	}
	if sup.MaxRepairAttempts != 2 {
		t.Fatalf("max attempts not overridden: %d", sup.MaxRepairAttempts)
	}
	// Unnamed fields keep their defaults.
	if sup.HealthThreshold != 0.7 {
		t.Fatalf("threshold should stay default, got %.2f", sup.HealthThreshold)
	}

	g := cfg.GateConfig()
	if len(g.TrustedSources) != 2 || g.TrustedSources[0] != "billing-svc" {
		t.Fatalf("trusted sources not loaded: %v", g.TrustedSources)
	}
	if g.AllowLowThreshold != 0.8 {
		t.Fatalf("gate threshold should stay default, got %.2f", g.AllowLowThreshold)
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("supervisor: ["), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestHookTimeout(t *testing.T) {
	var c Config
	if got := c.HookTimeout(); got != 30*time.Second {
		t.Fatalf("expected 30s default, got %s", got)
	}
	c.Lifecycle.HookTimeoutSeconds = 5
	if got := c.HookTimeout(); got != 5*time.Second {
		t.Fatalf("expected 5s, got %s", got)
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("SENTINEL_TEST_KEY", "set")
	if got := EnvOr("SENTINEL_TEST_KEY", "fallback"); got != "set" {
		t.Fatalf("expected env value, got %s", got)
	}
	if got := EnvOr("SENTINEL_TEST_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %s", got)
	}
}
