package gate

import "time"

// #region action

// Action is the verdict rendered for one piece of inbound data.
type Action string

const (
	ActionAllow      Action = "allow"
	ActionDeny       Action = "deny"
	ActionQuarantine Action = "quarantine"
	ActionTransform  Action = "transform"
)

// #endregion action

// #region security-level

// SecurityLevel grades how much scrutiny the data warrants downstream.
type SecurityLevel string

const (
	LevelLow      SecurityLevel = "low"
	LevelMedium   SecurityLevel = "medium"
	LevelHigh     SecurityLevel = "high"
	LevelCritical SecurityLevel = "critical"
)

// #endregion security-level

// #region check-names

// Names of the four independent checks, used in scores and reasoning.
const (
	CheckSource    = "source_validation"
	CheckIntegrity = "data_integrity"
	CheckPattern   = "pattern_analysis"
	CheckThreat    = "threat_assessment"
)

// Transformations applied when the decision is Transform.
const (
	TransformSanitizeInput     = "sanitize_input"
	TransformNormalizeEncoding = "normalize_encoding"
	TransformContentFilter     = "apply_content_filter"
)

// #endregion check-names

// #region metadata

// Metadata accompanies inbound data. All fields are caller-supplied claims;
// the gate scores them, it does not verify transport properties itself.
type Metadata struct {
	Authenticated bool
	Encrypted     bool
	Checksum      string    // hex sha256 of the payload; empty = none supplied
	Timestamp     time.Time // claimed production time; zero = unclaimed
}

// #endregion metadata

// #region decision

// Decision is the immutable output of one Evaluate call.
type Decision struct {
	Action          Action
	Confidence      float64
	SecurityLevel   SecurityLevel
	Reasoning       []string
	Transformations []string
	CheckScores     map[string]float64
	Timestamp       time.Time
}

// #endregion decision

// #region gate-config

// Config holds the gate's policy thresholds. The numeric cutoffs are policy
// parameters, not derived quantities; override per deployment.
type Config struct {
	AllowLowThreshold    float64 // >= this -> Allow/Low
	AllowMediumThreshold float64 // >= this -> Allow/Medium
	TransformThreshold   float64 // >= this -> Transform/High
	MinCheckScore        float64 // any single check below this -> Quarantine
	TransformTrigger     float64 // per-check score below this adds a transformation
	ReasonThreshold      float64 // per-check score below this adds a reasoning line

	MaxPayloadBytes     int
	MaxCompositeEntries int

	TrustedSources []string // reputation list for source validation

	SessionAnomalyCount  int64 // per-session access count treated as behavioral anomaly
	LifetimeAnomalyCount int64 // lifetime access count treated as access-pattern anomaly
	MaxTimestampSkew     time.Duration
}

// DefaultConfig returns the stock policy.
func DefaultConfig() Config {
	return Config{
		AllowLowThreshold:    0.8,
		AllowMediumThreshold: 0.6,
		TransformThreshold:   0.4,
		MinCheckScore:        0.2,
		TransformTrigger:     0.7,
		ReasonThreshold:      0.5,
		MaxPayloadBytes:      1 << 20,
		MaxCompositeEntries:  1000,
		SessionAnomalyCount:  100,
		LifetimeAnomalyCount: 1000,
		MaxTimestampSkew:     365 * 24 * time.Hour,
	}
}

// #endregion gate-config
