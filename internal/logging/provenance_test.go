package logging

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "log.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := EnsureGateLog(db); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	// Ensure is idempotent.
	if err := EnsureGateLog(db); err != nil {
		t.Fatalf("re-ensure: %v", err)
	}
	return db
}

func TestLogAndListGateRecords(t *testing.T) {
	db := testDB(t)
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		rec := GateRecord{
			Source:        "svc-a",
			DataType:      "string",
			PayloadJSON:   "payload",
			Action:        "allow",
			SecurityLevel: "low",
			Confidence:    0.9,
			CheckScores:   map[string]float64{"source_validation": 1.0},
			EvaluatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		if err := LogGateDecision(db, rec); err != nil {
			t.Fatalf("log %d: %v", i, err)
		}
	}

	records, err := ListGateRecords(db, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected limit 2, got %d", len(records))
	}
	if !records[0].EvaluatedAt.After(records[1].EvaluatedAt) {
		t.Fatal("expected newest first")
	}
	if records[0].CheckScores["source_validation"] != 1.0 {
		t.Fatalf("check scores did not round-trip: %v", records[0].CheckScores)
	}
}
