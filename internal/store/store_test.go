package store

import (
	"bytes"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBlueprintRoundTrip(t *testing.T) {
	s := testStore(t)

	if err := s.PutBlueprint("vault-core", []byte(`{"shards":4}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := s.GetBlueprint("vault-core")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected blueprint to exist")
	}
	if !bytes.Equal(got, []byte(`{"shards":4}`)) {
		t.Fatalf("blueprint did not round-trip: %s", got)
	}
}

func TestBlueprintMissingIsNotAnError(t *testing.T) {
	s := testStore(t)
	got, ok, err := s.GetBlueprint("nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok || got != nil {
		t.Fatalf("expected (nil, false), got (%v, %v)", got, ok)
	}
}

func TestBlueprintUpsertKeepsLatest(t *testing.T) {
	s := testStore(t)

	if err := s.PutBlueprint("c", []byte("v1")); err != nil {
		t.Fatalf("put v1: %v", err)
	}
	if err := s.PutBlueprint("c", []byte("v2")); err != nil {
		t.Fatalf("put v2: %v", err)
	}
	got, ok, err := s.GetBlueprint("c")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(got) != "v2" {
		t.Fatalf("expected latest blueprint, got %s", got)
	}
}

func TestBackupRoundTrip(t *testing.T) {
	s := testStore(t)

	if err := s.PutBackup("index-service", []byte("snapshot-bytes")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := s.GetBackup("index-service")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(got) != "snapshot-bytes" {
		t.Fatalf("backup did not round-trip: %s", got)
	}

	if _, ok, _ := s.GetBackup("other"); ok {
		t.Fatal("expected no backup for other")
	}
}
