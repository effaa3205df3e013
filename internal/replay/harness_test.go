package replay

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/gate"
	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/logging"
	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/store"
)

func recordedDecisions(t *testing.T) (*store.Store, []logging.GateRecord) {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "replay.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	g := gate.NewGatekeeper(gate.DefaultConfig())
	if err := g.SetDB(st.DB()); err != nil {
		t.Fatalf("set db: %v", err)
	}
	fixed := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	g.SetClock(func() time.Time { return fixed })

	payloads := []struct {
		data   string
		source string
		meta   gate.Metadata
	}{
		{"hello world", "svc-a", gate.Metadata{Authenticated: true, Encrypted: true}},
		{"hello again", "svc-a", gate.Metadata{Authenticated: true, Encrypted: true}},
		{"DROP TABLE users", "svc-b", gate.Metadata{}},
	}
	for _, p := range payloads {
		g.Evaluate(p.data, p.source, p.meta)
	}

	records, err := logging.ListGateRecords(st.DB(), 10)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != len(payloads) {
		t.Fatalf("expected %d records, got %d", len(payloads), len(records))
	}
	return st, records
}

func TestReplayReproducesRecordedDecisions(t *testing.T) {
	st, _ := recordedDecisions(t)

	report, err := ReplayDB(st.DB(), 10)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if report.Total != 3 {
		t.Fatalf("expected 3 replayed, got %d", report.Total)
	}
	if report.Mismatched != 0 {
		t.Fatalf("expected bit-for-bit reproduction, got %d mismatches: %+v",
			report.Mismatched, report.Results)
	}
}

func TestReplayDetectsTamperedRecord(t *testing.T) {
	_, records := recordedDecisions(t)

	records[0].Action = "allow"
	records[0].SecurityLevel = "low"
	records[0].Confidence = 0.99

	report := Replay(records[:1])
	if report.Mismatched != 1 {
		t.Fatalf("expected 1 mismatch, got %d", report.Mismatched)
	}
}

func TestFixtureRoundTrip(t *testing.T) {
	_, records := recordedDecisions(t)
	path := filepath.Join(t.TempDir(), "fixture.json")

	if err := SaveFixture(path, "gate-pinning", records); err != nil {
		t.Fatalf("save: %v", err)
	}
	fixture, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fixture.Name != "gate-pinning" {
		t.Fatalf("name did not round-trip: %q", fixture.Name)
	}
	if len(fixture.Records) != len(records) {
		t.Fatalf("expected %d records, got %d", len(records), len(fixture.Records))
	}

	report := Replay(fixture.Records)
	if report.Mismatched != 0 {
		t.Fatalf("fixture replay mismatched: %+v", report.Results)
	}
}
