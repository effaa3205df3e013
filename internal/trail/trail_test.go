package trail

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/store"
)

func TestStartPathIsIdempotent(t *testing.T) {
	tr := NewTrail()
	ctx := map[string]any{"component": "vault-core"}

	id1 := tr.StartPath("restart vault-core?", ctx)
	id2 := tr.StartPath("restart vault-core?", ctx)
	if id1 != id2 {
		t.Fatalf("same inputs produced different path ids: %s vs %s", id1, id2)
	}

	id3 := tr.StartPath("restart vault-core?", map[string]any{"component": "cache"})
	if id3 == id1 {
		t.Fatal("different context should produce a different path id")
	}
}

func TestAddStepIdempotentNodeIDs(t *testing.T) {
	tr := NewTrail()
	id := tr.StartPath("q", nil)

	n1, err := tr.AddStep(id, StepSeedActivation, "gate", map[string]any{"k": "v"}, 0.9, nil)
	if err != nil {
		t.Fatalf("add step: %v", err)
	}
	n2, err := tr.AddStep(id, StepSeedActivation, "gate", map[string]any{"k": "v"}, 0.7, nil)
	if err != nil {
		t.Fatalf("re-add step: %v", err)
	}
	if n1 != n2 {
		t.Fatalf("identical steps produced different ids: %s vs %s", n1, n2)
	}

	nodes, err := tr.ReplayPath(id)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("re-adding must not duplicate, got %d nodes", len(nodes))
	}
	if nodes[0].Confidence != 0.7 {
		t.Fatalf("re-add should overwrite confidence, got %.2f", nodes[0].Confidence)
	}
}

func TestAddStepUnknownPredecessor(t *testing.T) {
	tr := NewTrail()
	id := tr.StartPath("q", nil)

	_, err := tr.AddStep(id, StepSeedActivation, "gate", nil, 1.0, []string{"nope"})
	if !errors.Is(err, ErrUnknownPredecessor) {
		t.Fatalf("expected ErrUnknownPredecessor, got %v", err)
	}
}

func TestAddStepToCompletedPathFails(t *testing.T) {
	tr := NewTrail()
	id := tr.StartPath("q", nil)
	if _, err := tr.AddStep(id, StepSeedActivation, "gate", nil, 1.0, nil); err != nil {
		t.Fatalf("add step: %v", err)
	}
	if err := tr.CompletePath(id, map[string]any{"ok": true}, time.Millisecond); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := tr.AddStep(id, StepDecisionSynthesis, "gate", nil, 1.0, nil); !errors.Is(err, ErrPathNotActive) {
		t.Fatalf("expected ErrPathNotActive, got %v", err)
	}
	if err := tr.CompletePath(id, nil, 0); !errors.Is(err, ErrPathNotActive) {
		t.Fatalf("double completion: expected ErrPathNotActive, got %v", err)
	}
}

func TestReinsertionCycleRejected(t *testing.T) {
	tr := NewTrail()
	id := tr.StartPath("q", nil)

	a, _ := tr.AddStep(id, StepSeedActivation, "gate", map[string]any{"n": "a"}, 1.0, nil)
	b, _ := tr.AddStep(id, StepPatternMatching, "gate", map[string]any{"n": "b"}, 1.0, []string{a})

	// Re-inserting a with b as predecessor would make a its own ancestor.
	_, err := tr.AddStep(id, StepSeedActivation, "gate", map[string]any{"n": "a"}, 1.0, []string{b})
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
}

func TestWeightedConfidenceNormalizedByPresentSteps(t *testing.T) {
	tr := NewTrail()
	id := tr.StartPath("q", nil)

	if _, err := tr.AddStep(id, StepSeedActivation, "gate", map[string]any{"n": 1}, 0.9, nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := tr.AddStep(id, StepPatternMatching, "gate", map[string]any{"n": 2}, 0.8, nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := tr.CompletePath(id, nil, time.Millisecond); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// (0.9*0.30 + 0.8*0.20) / (0.30 + 0.20) = 0.86
	p, ok := tr.Completed(id)
	if !ok {
		t.Fatal("path should be completed")
	}
	if math.Abs(p.TotalConfidence-0.86) > 1e-9 {
		t.Fatalf("expected 0.86, got %.6f", p.TotalConfidence)
	}
}

func TestReplayTopologicalOrder(t *testing.T) {
	tr := NewTrail()
	id := tr.StartPath("q", nil)

	seed, _ := tr.AddStep(id, StepSeedActivation, "gate", map[string]any{"n": "seed"}, 1.0, nil)
	left, _ := tr.AddStep(id, StepEvidenceEvaluation, "gate", map[string]any{"n": "left"}, 0.8, []string{seed})
	right, _ := tr.AddStep(id, StepEvidenceEvaluation, "gate", map[string]any{"n": "right"}, 0.7, []string{seed})
	final, _ := tr.AddStep(id, StepDecisionSynthesis, "gate", map[string]any{"n": "final"}, 0.9, []string{left, right})

	nodes, err := tr.ReplayPath(id)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	pos := make(map[string]int, len(nodes))
	for i, n := range nodes {
		pos[n.NodeID] = i
	}
	if pos[seed] != 0 {
		t.Fatalf("seed should replay first, got position %d", pos[seed])
	}
	if pos[final] != 3 {
		t.Fatalf("synthesis should replay last, got position %d", pos[final])
	}
	if pos[left] > pos[final] || pos[right] > pos[final] {
		t.Fatal("predecessors must replay before successors")
	}
	// Ties among ready nodes break by insertion order.
	if pos[left] > pos[right] {
		t.Fatal("insertion order should break ties")
	}
}

func TestReplayUnknownPath(t *testing.T) {
	tr := NewTrail()
	if _, err := tr.ReplayPath("missing"); !errors.Is(err, ErrPathNotFound) {
		t.Fatalf("expected ErrPathNotFound, got %v", err)
	}
}

func TestAuditFilters(t *testing.T) {
	tr := NewTrail()

	first := tr.StartPath("q1", nil)
	tr.AddStep(first, StepSeedActivation, "vault-core", map[string]any{"n": 1}, 0.9, nil)
	tr.CompletePath(first, nil, time.Millisecond)

	second := tr.StartPath("q2", nil)
	tr.AddStep(second, StepSeedActivation, "cache", map[string]any{"n": 2}, 0.3, nil)
	tr.CompletePath(second, nil, time.Millisecond)

	all := tr.Audit(AuditFilter{})
	if len(all) != 2 {
		t.Fatalf("expected 2 completed paths, got %d", len(all))
	}

	byComponent := tr.Audit(AuditFilter{Component: "vault-core"})
	if len(byComponent) != 1 || byComponent[0].PathID != first {
		t.Fatalf("component filter failed: %+v", byComponent)
	}

	byConfidence := tr.Audit(AuditFilter{MinConfidence: 0.5})
	if len(byConfidence) != 1 || byConfidence[0].PathID != first {
		t.Fatalf("confidence filter failed: %+v", byConfidence)
	}
}

func TestPersistAndLoadPath(t *testing.T) {
	st, err := store.NewStore(filepath.Join(t.TempDir(), "trail.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	tr, err := NewTrailWithDB(st.DB())
	if err != nil {
		t.Fatalf("new trail: %v", err)
	}

	id := tr.StartPath("persist me", map[string]any{"k": "v"})
	seed, _ := tr.AddStep(id, StepSeedActivation, "gate", map[string]any{"n": "seed"}, 0.9, nil)
	tr.AddStep(id, StepDecisionSynthesis, "gate", map[string]any{"n": "final"}, 0.8, []string{seed})
	if err := tr.CompletePath(id, map[string]any{"verdict": "allow"}, 5*time.Millisecond); err != nil {
		t.Fatalf("complete: %v", err)
	}

	loaded, err := LoadPath(st.DB(), id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.RootQuestion != "persist me" {
		t.Fatalf("question did not round-trip: %q", loaded.RootQuestion)
	}
	if len(loaded.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(loaded.Nodes))
	}
	if loaded.FinalVerdict["verdict"] != "allow" {
		t.Fatalf("verdict did not round-trip: %v", loaded.FinalVerdict)
	}
	ordered := loaded.Ordered()
	if ordered[0].StepType != StepSeedActivation {
		t.Fatalf("stored order lost: first step is %s", ordered[0].StepType)
	}

	summaries, err := ListPaths(st.DB(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 1 || summaries[0].NodeCount != 2 {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}
}
