package lifecycle

import (
	"context"
	"time"
)

// #region state

// State is a component's position in the lifecycle state machine.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateActive        State = "active"
	StateSuspended     State = "suspended"
	StateStopping      State = "stopping"
	StateStopped       State = "stopped"
	StateError         State = "error"
	StateRepairing     State = "repairing"
)

// #endregion state

// #region hooks

// Hooks are the only way the controller touches actual subsystem logic.
// Any hook may be nil, in which case the transition is a pure state change.
// Hooks receive a context bounded by the controller's hook timeout.
type Hooks struct {
	Start   func(ctx context.Context) error
	Stop    func(ctx context.Context, graceful bool) error
	Repair  func(ctx context.Context) error
	Replace func(ctx context.Context, newInstance any) error
}

// #endregion hooks

// #region component-record

// ComponentRecord is a point-in-time snapshot of one registered component.
// Records are only ever mutated through controller operations; callers get
// copies.
type ComponentRecord struct {
	Name           string
	State          State
	HealthScore    float64
	ErrorCount     int
	Dependencies   []string
	Dependents     []string
	LastTransition time.Time
}

// #endregion component-record

// #region system-status

// SystemStatus is a snapshot of every component plus aggregate health
// (mean of per-component health scores).
type SystemStatus struct {
	Components      map[string]ComponentRecord
	AggregateHealth float64
	TakenAt         time.Time
}

// #endregion system-status

// #region internal-component

// component is the controller-private mutable record.
type component struct {
	name           string
	state          State
	healthScore    float64
	errorCount     int
	deps           []string            // declared dependency names, registration order
	depSet         map[string]struct{} // same names, for membership checks
	dependents     []string            // reverse edges, maintained on register
	lastTransition time.Time
	hooks          Hooks
	instance       any
	order          int // registration sequence, for deterministic traversal
}

// #endregion internal-component
