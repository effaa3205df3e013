package replay

// #region imports
import (
	"database/sql"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/gate"
	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/logging"
)

// #endregion

// #region result

// Result compares one recorded gate decision against its re-evaluation.
type Result struct {
	Index              int
	Source             string
	RecordedAction     string
	ReplayedAction     string
	RecordedLevel      string
	ReplayedLevel      string
	RecordedConfidence float64
	ReplayedConfidence float64
	Match              bool
}

// Report aggregates a replay run.
type Report struct {
	Total      int
	Matched    int
	Mismatched int
	Results    []Result
}

const confidenceTolerance = 1e-9

// #endregion result

// #region harness

// Replay re-evaluates recorded gate decisions against the current scoring
// code. Each record carries the full evaluation inputs, including the
// counter state and thresholds in force at the time, so a clean codebase
// reproduces every decision bit for bit.
func Replay(records []logging.GateRecord) Report {
	report := Report{Total: len(records)}

	for i, rec := range records {
		res := replayOne(i, rec)
		if res.Match {
			report.Matched++
		} else {
			report.Mismatched++
			log.Printf("[REPLAY] mismatch #%d source=%s: recorded %s/%s %.4f, replayed %s/%s %.4f",
				i, rec.Source,
				res.RecordedAction, res.RecordedLevel, res.RecordedConfidence,
				res.ReplayedAction, res.ReplayedLevel, res.ReplayedConfidence)
		}
		report.Results = append(report.Results, res)
	}
	return report
}

func replayOne(index int, rec logging.GateRecord) Result {
	cfg := gate.DefaultConfig()
	cfg.AllowLowThreshold = rec.Thresholds.AllowLow
	cfg.AllowMediumThreshold = rec.Thresholds.AllowMedium
	cfg.TransformThreshold = rec.Thresholds.Transform
	cfg.MinCheckScore = rec.Thresholds.MinCheckScore
	if rec.Trusted {
		cfg.TrustedSources = []string{rec.Source}
	} else {
		cfg.TrustedSources = nil
	}

	g := gate.NewGatekeeper(cfg)
	g.SetClock(func() time.Time { return rec.EvaluatedAt })
	// Counters are recorded post-increment; prime the pre-call state.
	g.PrimeSource(rec.Source, rec.SessionCount-1, rec.LifetimeCount-1)

	decision := g.Evaluate(rec.PayloadJSON, rec.Source, gate.Metadata{
		Authenticated: rec.Authenticated,
		Encrypted:     rec.Encrypted,
		Checksum:      rec.Checksum,
		Timestamp:     rec.PayloadTimestamp,
	})

	res := Result{
		Index:              index,
		Source:             rec.Source,
		RecordedAction:     rec.Action,
		ReplayedAction:     string(decision.Action),
		RecordedLevel:      rec.SecurityLevel,
		ReplayedLevel:      string(decision.SecurityLevel),
		RecordedConfidence: rec.Confidence,
		ReplayedConfidence: decision.Confidence,
	}
	res.Match = res.RecordedAction == res.ReplayedAction &&
		res.RecordedLevel == res.ReplayedLevel &&
		math.Abs(res.RecordedConfidence-res.ReplayedConfidence) < confidenceTolerance
	return res
}

// #endregion harness

// #region from-db

// ReplayDB replays the most recent limit decisions from a gate_log database.
func ReplayDB(db *sql.DB, limit int) (Report, error) {
	records, err := logging.ListGateRecords(db, limit)
	if err != nil {
		return Report{}, fmt.Errorf("load gate records: %w", err)
	}
	// ListGateRecords returns newest first; replay in original order.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return Replay(records), nil
}

// #endregion from-db
