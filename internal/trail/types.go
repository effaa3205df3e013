package trail

import (
	"errors"
	"time"
)

// #region step-type

// StepType classifies a reasoning step. The fixed weights below bias path
// confidence toward early, structural steps over late reflective ones.
type StepType string

const (
	StepSeedActivation        StepType = "seed_activation"
	StepPriorApplication      StepType = "prior_application"
	StepPatternMatching       StepType = "pattern_matching"
	StepEvidenceEvaluation    StepType = "evidence_evaluation"
	StepDecisionSynthesis     StepType = "decision_synthesis"
	StepReflectionIntegration StepType = "reflection_integration"
)

// stepWeights need not sum to 1 across a path; confidence is normalized by
// the weights actually present.
var stepWeights = map[StepType]float64{
	StepSeedActivation:        0.30,
	StepPriorApplication:      0.25,
	StepPatternMatching:       0.20,
	StepEvidenceEvaluation:    0.15,
	StepDecisionSynthesis:     0.08,
	StepReflectionIntegration: 0.02,
}

// #endregion step-type

// #region errors

var (
	// ErrPathNotActive: add_step/complete_path on an unknown or already
	// completed path id. No mutation.
	ErrPathNotActive = errors.New("path not active")

	// ErrPathNotFound: replay/audit referenced an id that exists nowhere.
	ErrPathNotFound = errors.New("path not found")

	// ErrUnknownPredecessor: a step referenced a predecessor node id that is
	// not part of the path.
	ErrUnknownPredecessor = errors.New("unknown predecessor")

	// ErrCycleDetected: re-inserting a step with predecessors that are its
	// own descendants would break the DAG property.
	ErrCycleDetected = errors.New("reasoning cycle rejected")
)

// #endregion errors

// #region node

// ReasoningNode is one step in a reasoning DAG. Node ids are content-derived
// (hash of path id, step type, component, and data), so re-inserting an
// identical step is idempotent.
type ReasoningNode struct {
	NodeID       string
	StepType     StepType
	Component    string
	Data         map[string]any
	Confidence   float64
	Predecessors []string
	Successors   []string
}

// #endregion node

// #region path

// ReasoningPath is one traced decision flow. Active paths accept steps;
// completed paths are frozen.
type ReasoningPath struct {
	PathID          string
	RootQuestion    string
	Nodes           map[string]*ReasoningNode
	FinalVerdict    map[string]any
	TotalConfidence float64
	ExecutionTime   time.Duration
	CreatedAt       time.Time
	CompletedAt     time.Time

	order []string // node insertion order, for stable replay
}

// Ordered returns the path's nodes in stored order.
func (p *ReasoningPath) Ordered() []*ReasoningNode {
	out := make([]*ReasoningNode, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.Nodes[id])
	}
	return out
}

// #endregion path

// #region audit

// AuditFilter narrows an audit query. Zero values mean "no constraint".
type AuditFilter struct {
	Component     string
	MinConfidence float64
	From          time.Time
	To            time.Time
}

// PathSummary is the read-only audit view of a completed path.
type PathSummary struct {
	PathID          string
	RootQuestion    string
	TotalConfidence float64
	NodeCount       int
	ExecutionTime   time.Duration
	CreatedAt       time.Time
	CompletedAt     time.Time
}

// #endregion audit
