package supervisor

// #region imports
import (
	"time"

	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/lifecycle"
)

// #endregion

// #region score

// Score computes a component's health in [0,1] from its lifecycle record.
// The penalties are additive: state penalty, accumulated error penalty
// (capped at 0.3), and a staleness ramp that starts one hour after the last
// transition and maxes out at 0.2 after a full day.
func Score(rec lifecycle.ComponentRecord, now time.Time) float64 {
	score := 1.0

	switch rec.State {
	case lifecycle.StateError:
		score -= 0.5
	case lifecycle.StateStopped:
		score -= 0.3
	case lifecycle.StateRepairing:
		score -= 0.2
	}

	errPenalty := 0.1 * float64(rec.ErrorCount)
	if errPenalty > 0.3 {
		errPenalty = 0.3
	}
	score -= errPenalty

	score -= stalenessPenalty(rec.LastTransition, now)

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// stalenessPenalty ramps linearly from 0 at one hour of inactivity to 0.2 at
// twenty-five hours.
func stalenessPenalty(lastTransition, now time.Time) float64 {
	if lastTransition.IsZero() {
		return 0
	}
	age := now.Sub(lastTransition)
	if age <= time.Hour {
		return 0
	}
	p := 0.2 * float64(age-time.Hour) / float64(24*time.Hour)
	if p > 0.2 {
		return 0.2
	}
	return p
}

// #endregion score
