package logging

import "time"

// #region gate-record
// GateRecord captures the complete inputs and outputs of a single gate
// evaluation. Serialized as JSON into gate_log.record_json so decisions can
// be replayed deterministically.
type GateRecord struct {
	Source      string `json:"source"`
	DataType    string `json:"data_type"`
	PayloadJSON string `json:"payload_json"`

	// Caller-supplied metadata claims as evaluated at runtime
	Authenticated    bool      `json:"authenticated"`
	Encrypted        bool      `json:"encrypted"`
	Checksum         string    `json:"checksum,omitempty"`
	PayloadTimestamp time.Time `json:"payload_timestamp,omitempty"`

	// Source counters after this access was recorded
	SessionCount  int64 `json:"session_count"`
	LifetimeCount int64 `json:"lifetime_count"`
	SeenBefore    bool  `json:"seen_before"`
	Trusted       bool  `json:"trusted"`

	// Per-check scores and the thresholds active at decision time
	CheckScores map[string]float64  `json:"check_scores"`
	Thresholds  GateRecordThresholds `json:"thresholds"`

	// Gate output
	Action          string   `json:"action"`
	SecurityLevel   string   `json:"security_level"`
	Confidence      float64  `json:"confidence"`
	Reasoning       []string `json:"reasoning"`
	Transformations []string `json:"transformations,omitempty"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}

// GateRecordThresholds captures the gate config active at decision time.
type GateRecordThresholds struct {
	AllowLow      float64 `json:"allow_low"`
	AllowMedium   float64 `json:"allow_medium"`
	Transform     float64 `json:"transform"`
	MinCheckScore float64 `json:"min_check_score"`
}

// #endregion gate-record
