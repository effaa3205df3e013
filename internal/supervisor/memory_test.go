package supervisor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/store"
)

func testMemory(t *testing.T) *Memory {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	mem, err := NewMemory(st.DB())
	if err != nil {
		t.Fatalf("new memory: %v", err)
	}
	return mem
}

func record(t *testing.T, mem *Memory, component string, strategy Strategy, success bool, when time.Time) {
	t.Helper()
	err := mem.RecordAction(RepairAction{
		ActionID:      uuid.NewString(),
		ComponentName: component,
		Strategy:      strategy,
		Timestamp:     when,
		Success:       success,
		RecoveryTime:  time.Second,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
}

func TestBestStrategyNeedsEnoughSamples(t *testing.T) {
	mem := testMemory(t)
	now := time.Now().UTC()

	record(t, mem, "db", StrategyIsolateAndRestart, true, now)
	record(t, mem, "db", StrategyIsolateAndRestart, true, now)

	if _, ok := mem.BestStrategy("db", 3); ok {
		t.Fatal("two samples should not be enough")
	}

	record(t, mem, "db", StrategyRollbackToBackup, false, now)
	best, ok := mem.BestStrategy("db", 3)
	if !ok {
		t.Fatal("three samples should be enough")
	}
	if best != StrategyIsolateAndRestart {
		t.Fatalf("expected isolate_and_restart, got %s", best)
	}
}

func TestBestStrategyPrefersRecentOutcomes(t *testing.T) {
	mem := testMemory(t)
	now := time.Now().UTC()
	old := now.Add(-60 * 24 * time.Hour)

	// Isolate worked long ago; rollback is what works now.
	record(t, mem, "db", StrategyIsolateAndRestart, true, old)
	record(t, mem, "db", StrategyIsolateAndRestart, false, now)
	record(t, mem, "db", StrategyRollbackToBackup, true, now)
	record(t, mem, "db", StrategyRollbackToBackup, true, now)

	best, ok := mem.BestStrategy("db", 3)
	if !ok {
		t.Fatal("expected a recommendation")
	}
	if best != StrategyRollbackToBackup {
		t.Fatalf("expected rollback_to_backup, got %s", best)
	}
}

func TestBestStrategyIsolatedPerComponent(t *testing.T) {
	mem := testMemory(t)
	now := time.Now().UTC()

	record(t, mem, "db", StrategyRollbackToBackup, true, now)
	record(t, mem, "db", StrategyRollbackToBackup, true, now)
	record(t, mem, "db", StrategyRollbackToBackup, true, now)

	if _, ok := mem.BestStrategy("cache", 3); ok {
		t.Fatal("cache has no history, expected no recommendation")
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	mem := testMemory(t)
	base := time.Now().UTC().Add(-time.Hour)

	record(t, mem, "db", StrategyIsolateAndRestart, false, base)
	record(t, mem, "db", StrategyRollbackToBackup, true, base.Add(time.Minute))

	history, err := mem.History("db", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(history))
	}
	if history[0].Strategy != StrategyRollbackToBackup {
		t.Fatalf("expected newest first, got %s", history[0].Strategy)
	}
	if !history[0].Success || history[1].Success {
		t.Fatal("success flags did not round-trip")
	}
}
