package supervisor

import (
	"math"
	"testing"
	"time"

	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/lifecycle"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScoreHealthyActive(t *testing.T) {
	now := time.Now()
	rec := lifecycle.ComponentRecord{
		State:          lifecycle.StateActive,
		LastTransition: now.Add(-time.Minute),
	}
	if got := Score(rec, now); got != 1.0 {
		t.Fatalf("expected 1.0, got %.4f", got)
	}
}

func TestScoreStatePenalties(t *testing.T) {
	now := time.Now()
	cases := []struct {
		state lifecycle.State
		want  float64
	}{
		{lifecycle.StateError, 0.5},
		{lifecycle.StateStopped, 0.7},
		{lifecycle.StateRepairing, 0.8},
		{lifecycle.StateSuspended, 1.0},
	}
	for _, tc := range cases {
		rec := lifecycle.ComponentRecord{State: tc.state, LastTransition: now}
		if got := Score(rec, now); !almostEqual(got, tc.want) {
			t.Fatalf("%s: expected %.2f, got %.4f", tc.state, tc.want, got)
		}
	}
}

func TestScoreErrorCountCapped(t *testing.T) {
	now := time.Now()
	rec := lifecycle.ComponentRecord{
		State:          lifecycle.StateActive,
		ErrorCount:     2,
		LastTransition: now,
	}
	if got := Score(rec, now); !almostEqual(got, 0.8) {
		t.Fatalf("2 errors: expected 0.8, got %.4f", got)
	}

	rec.ErrorCount = 10
	if got := Score(rec, now); !almostEqual(got, 0.7) {
		t.Fatalf("10 errors: expected penalty cap at 0.3, got score %.4f", got)
	}
}

func TestScoreStalenessRamp(t *testing.T) {
	now := time.Now()

	rec := lifecycle.ComponentRecord{
		State:          lifecycle.StateActive,
		LastTransition: now.Add(-30 * time.Minute),
	}
	if got := Score(rec, now); got != 1.0 {
		t.Fatalf("under an hour should not penalize, got %.4f", got)
	}

	// 13 hours idle: 12 hours past the grace period, half the 24h ramp.
	rec.LastTransition = now.Add(-13 * time.Hour)
	if got := Score(rec, now); !almostEqual(got, 0.9) {
		t.Fatalf("13h idle: expected 0.9, got %.4f", got)
	}

	rec.LastTransition = now.Add(-72 * time.Hour)
	if got := Score(rec, now); !almostEqual(got, 0.8) {
		t.Fatalf("72h idle: expected staleness cap at 0.2, got score %.4f", got)
	}
}

func TestScoreFloorsAtZero(t *testing.T) {
	now := time.Now()
	rec := lifecycle.ComponentRecord{
		State:          lifecycle.StateError,
		ErrorCount:     10,
		LastTransition: now.Add(-72 * time.Hour),
	}
	// 1.0 - 0.5 - 0.3 - 0.2 = 0.0
	if got := Score(rec, now); got != 0.0 {
		t.Fatalf("expected floor at 0, got %.4f", got)
	}
}
