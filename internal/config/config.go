package config

// #region imports
import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/gate"
	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/supervisor"
)

// #endregion

// #region config

// Config is the on-disk configuration. Zero values fall back to defaults at
// load time, so a partial file only overrides what it names.
type Config struct {
	DBPath string `yaml:"db_path"`

	Lifecycle struct {
		HookTimeoutSeconds int `yaml:"hook_timeout_seconds"`
	} `yaml:"lifecycle"`

	Supervisor struct {
		IntervalSeconds        int     `yaml:"interval_seconds"`
		HealthThreshold        float64 `yaml:"health_threshold"`
		MaxConsecutiveFailures int     `yaml:"max_consecutive_failures"`
		MaxRepairAttempts      int     `yaml:"max_repair_attempts"`
		RestartPauseMS         int     `yaml:"restart_pause_ms"`
	} `yaml:"supervisor"`

	Gate struct {
		AllowLowThreshold    float64  `yaml:"allow_low_threshold"`
		AllowMediumThreshold float64  `yaml:"allow_medium_threshold"`
		TransformThreshold   float64  `yaml:"transform_threshold"`
		MinCheckScore        float64  `yaml:"min_check_score"`
		TrustedSources       []string `yaml:"trusted_sources"`
	} `yaml:"gate"`

	Probe struct {
		Addr string `yaml:"addr"`
	} `yaml:"probe"`
}

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	c.DBPath = "sentinel.db"
	c.Lifecycle.HookTimeoutSeconds = 30

	sup := supervisor.DefaultConfig()
	c.Supervisor.IntervalSeconds = int(sup.Interval / time.Second)
	c.Supervisor.HealthThreshold = sup.HealthThreshold
	c.Supervisor.MaxConsecutiveFailures = sup.MaxConsecutiveFailures
	c.Supervisor.MaxRepairAttempts = sup.MaxRepairAttempts
	c.Supervisor.RestartPauseMS = int(sup.RestartPause / time.Millisecond)

	g := gate.DefaultConfig()
	c.Gate.AllowLowThreshold = g.AllowLowThreshold
	c.Gate.AllowMediumThreshold = g.AllowMediumThreshold
	c.Gate.TransformThreshold = g.TransformThreshold
	c.Gate.MinCheckScore = g.MinCheckScore
	return c
}

// Load reads a YAML config file over the defaults. A missing file is not an
// error; the defaults apply unchanged.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	blob, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(blob, &c); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}

// #endregion config

// #region adapters

// SupervisorConfig converts the file form into the supervisor's runtime
// policy.
func (c Config) SupervisorConfig() supervisor.Config {
	cfg := supervisor.DefaultConfig()
	if c.Supervisor.IntervalSeconds > 0 {
		cfg.Interval = time.Duration(c.Supervisor.IntervalSeconds) * time.Second
	}
	if c.Supervisor.HealthThreshold > 0 {
		cfg.HealthThreshold = c.Supervisor.HealthThreshold
	}
	if c.Supervisor.MaxConsecutiveFailures > 0 {
		cfg.MaxConsecutiveFailures = c.Supervisor.MaxConsecutiveFailures
	}
	if c.Supervisor.MaxRepairAttempts > 0 {
		cfg.MaxRepairAttempts = c.Supervisor.MaxRepairAttempts
	}
	if c.Supervisor.RestartPauseMS > 0 {
		cfg.RestartPause = time.Duration(c.Supervisor.RestartPauseMS) * time.Millisecond
	}
	return cfg
}

// GateConfig converts the file form into the gatekeeper's runtime policy.
func (c Config) GateConfig() gate.Config {
	cfg := gate.DefaultConfig()
	if c.Gate.AllowLowThreshold > 0 {
		cfg.AllowLowThreshold = c.Gate.AllowLowThreshold
	}
	if c.Gate.AllowMediumThreshold > 0 {
		cfg.AllowMediumThreshold = c.Gate.AllowMediumThreshold
	}
	if c.Gate.TransformThreshold > 0 {
		cfg.TransformThreshold = c.Gate.TransformThreshold
	}
	if c.Gate.MinCheckScore > 0 {
		cfg.MinCheckScore = c.Gate.MinCheckScore
	}
	if len(c.Gate.TrustedSources) > 0 {
		cfg.TrustedSources = append([]string{}, c.Gate.TrustedSources...)
	}
	return cfg
}

// HookTimeout returns the lifecycle hook timeout.
func (c Config) HookTimeout() time.Duration {
	if c.Lifecycle.HookTimeoutSeconds > 0 {
		return time.Duration(c.Lifecycle.HookTimeoutSeconds) * time.Second
	}
	return 30 * time.Second
}

// #endregion adapters

// #region env

// EnvOr reads an environment variable with a fallback.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion env
