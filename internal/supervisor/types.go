package supervisor

// #region imports
import (
	"context"
	"errors"
	"time"
)

// #endregion

// #region strategy

// Strategy is a named repair approach. Strategies escalate in cost and
// blast radius: a restart is cheap, replacing a component with its standby
// is not.
type Strategy string

const (
	StrategyIsolateAndRestart         Strategy = "isolate_and_restart"
	StrategyReinitializeFromBlueprint Strategy = "reinitialize_from_blueprint"
	StrategyRollbackToBackup          Strategy = "rollback_to_backup"
	StrategyReplaceWithRedundant      Strategy = "replace_with_redundant"
	StrategyEmergencyShutdown         Strategy = "emergency_shutdown"
)

// #endregion strategy

// #region errors

var (
	// ErrRepairExhausted: a component hit the repair attempt cap without
	// recovering.
	ErrRepairExhausted = errors.New("repair attempts exhausted")

	// ErrNoBlueprint: reinitialize was selected but no blueprint exists for
	// the component.
	ErrNoBlueprint = errors.New("no blueprint for component")

	// ErrNoBackup: rollback was selected but no backup snapshot exists.
	ErrNoBackup = errors.New("no backup for component")

	// ErrNoStandby: replacement was selected but no standby instance was
	// registered.
	ErrNoStandby = errors.New("no standby instance for component")
)

// #endregion errors

// #region health

// ComponentHealth is the supervisor's per-component tracking record, updated
// every monitoring cycle.
type ComponentHealth struct {
	ComponentName       string
	HealthScore         float64
	ConsecutiveFailures int
	TotalFailures       int
	LastError           string
	LastChecked         time.Time
	IsCritical          bool
	RepairAttempts      int
	Escalated           bool // emergency shutdown already fired
}

// #endregion health

// #region repair-action

// RepairAction is one executed repair, recorded for history and for the
// strategy memory.
type RepairAction struct {
	ActionID      string
	ComponentName string
	Strategy      Strategy
	Timestamp     time.Time
	Success       bool
	ErrorMessage  string
	RecoveryTime  time.Duration
}

// #endregion repair-action

// #region config

// Config tunes the monitoring loop and escalation policy.
type Config struct {
	Interval               time.Duration
	HealthThreshold        float64
	MaxConsecutiveFailures int
	MaxRepairAttempts      int
	RestartPause           time.Duration
}

// DefaultConfig returns the standard supervision policy.
func DefaultConfig() Config {
	return Config{
		Interval:               30 * time.Second,
		HealthThreshold:        0.7,
		MaxConsecutiveFailures: 3,
		MaxRepairAttempts:      5,
		RestartPause:           100 * time.Millisecond,
	}
}

// #endregion config

// #region boundaries

// BlueprintSource serves known-good component configurations for
// reinitialization.
type BlueprintSource interface {
	GetBlueprint(component string) ([]byte, bool, error)
}

// BackupStore serves point-in-time component snapshots for rollback.
type BackupStore interface {
	GetBackup(component string) ([]byte, bool, error)
	PutBackup(component string, snapshot []byte) error
}

// Prober checks component liveness out-of-band, typically over gRPC health.
type Prober interface {
	Check(ctx context.Context, service string) (bool, error)
}

// #endregion boundaries
