package gate

// #region imports
import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/logging"
	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/telemetry"
)

// #endregion

// #region gatekeeper

// Gatekeeper scores inbound data across four independent checks and renders
// an allow/deny/quarantine/transform decision before the data is trusted.
// Scoring is a pure function of the inputs; the per-source access counters
// are the one piece of shared mutable state and are guarded by a mutex.
type Gatekeeper struct {
	config Config

	mu      sync.Mutex
	sources map[string]*sourceStats

	db    *sql.DB // optional decision provenance
	sink  telemetry.Sink
	clock func() time.Time
}

type sourceStats struct {
	sessionCount  int64
	lifetimeCount int64
	firstSeen     time.Time
}

// NewGatekeeper creates a gatekeeper with the given policy.
func NewGatekeeper(config Config) *Gatekeeper {
	return &Gatekeeper{
		config:  config,
		sources: make(map[string]*sourceStats),
		sink:    telemetry.NopSink{},
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// SetDB enables gate_log provenance. Logging failures never fail the
// evaluation.
func (g *Gatekeeper) SetDB(db *sql.DB) error {
	if err := logging.EnsureGateLog(db); err != nil {
		return err
	}
	g.db = db
	return nil
}

// SetSink attaches a telemetry sink.
func (g *Gatekeeper) SetSink(sink telemetry.Sink) {
	if sink != nil {
		g.sink = sink
	}
}

// SetClock overrides the time source. Used by tests and replay.
func (g *Gatekeeper) SetClock(clock func() time.Time) {
	g.clock = clock
}

// PrimeSource seeds a source's counters, used by replay to reconstruct the
// counter state that existed before a recorded evaluation.
func (g *Gatekeeper) PrimeSource(source string, sessionCount, lifetimeCount int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sources[source] = &sourceStats{
		sessionCount:  sessionCount,
		lifetimeCount: lifetimeCount,
		firstSeen:     g.clock(),
	}
}

// SourceCounts reports a source's current counters.
func (g *Gatekeeper) SourceCounts(source string) (session, lifetime int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.sources[source]; ok {
		return st.sessionCount, st.lifetimeCount
	}
	return 0, 0
}

// #endregion gatekeeper

// #region evaluate

// Evaluate classifies one piece of inbound data. Every call records the
// access on the source's counters exactly once.
func (g *Gatekeeper) Evaluate(data any, source string, meta Metadata) Decision {
	began := g.clock()
	payload := payloadBytes(data)

	seenBefore, sessionCount, lifetimeCount := g.recordAccess(source)
	trusted := g.isTrusted(source)

	scores := map[string]float64{
		CheckSource:    g.sourceScore(seenBefore, trusted, meta),
		CheckIntegrity: g.integrityScore(data, payload, meta),
		CheckPattern:   patternScore(payload),
		CheckThreat:    g.threatScore(payload, meta, sessionCount, lifetimeCount),
	}

	confidence := (scores[CheckSource] + scores[CheckIntegrity] +
		scores[CheckPattern] + scores[CheckThreat]) / 4.0

	action, level, transformations := g.decide(confidence, scores)
	reasoning := g.buildReasoning(confidence, source, data, scores)

	decision := Decision{
		Action:          action,
		Confidence:      confidence,
		SecurityLevel:   level,
		Reasoning:       reasoning,
		Transformations: transformations,
		CheckScores:     scores,
		Timestamp:       began,
	}

	g.logDecision(decision, data, payload, source, meta, seenBefore, trusted, sessionCount, lifetimeCount)

	e := telemetry.NewEvent(source, "gate_evaluate", g.clock().Sub(began), action != ActionQuarantine)
	if level == LevelCritical {
		e.Severity = telemetry.SeverityWarning
	}
	e.Metadata = map[string]string{
		"action":     string(action),
		"confidence": fmt.Sprintf("%.3f", confidence),
	}
	g.sink.Emit(e)

	return decision
}

// recordAccess bumps the source's counters and reports whether the source
// had been seen before this call.
func (g *Gatekeeper) recordAccess(source string) (seenBefore bool, session, lifetime int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.sources[source]
	if !ok {
		st = &sourceStats{firstSeen: g.clock()}
		g.sources[source] = st
	}
	seenBefore = ok && st.lifetimeCount > 0
	st.sessionCount++
	st.lifetimeCount++
	return seenBefore, st.sessionCount, st.lifetimeCount
}

func (g *Gatekeeper) isTrusted(source string) bool {
	for _, s := range g.config.TrustedSources {
		if s == source {
			return true
		}
	}
	return false
}

// sourceScore averages four booleans: source previously seen, source on the
// reputation list, authenticated, encrypted.
func (g *Gatekeeper) sourceScore(seenBefore, trusted bool, meta Metadata) float64 {
	return (boolScore(seenBefore) + boolScore(trusted) +
		boolScore(meta.Authenticated) + boolScore(meta.Encrypted)) / 4.0
}

// #endregion evaluate

// #region decide

// decide applies the fixed threshold policy. A single check at or below the
// floor forces quarantine regardless of the mean: a complete failure of one
// independent check cannot be averaged away.
func (g *Gatekeeper) decide(confidence float64, scores map[string]float64) (Action, SecurityLevel, []string) {
	for _, name := range []string{CheckSource, CheckIntegrity, CheckPattern, CheckThreat} {
		if scores[name] < g.config.MinCheckScore {
			return ActionQuarantine, LevelCritical, nil
		}
	}

	switch {
	case confidence >= g.config.AllowLowThreshold:
		return ActionAllow, LevelLow, nil
	case confidence >= g.config.AllowMediumThreshold:
		return ActionAllow, LevelMedium, nil
	case confidence >= g.config.TransformThreshold:
		var transformations []string
		if scores[CheckIntegrity] < g.config.TransformTrigger {
			transformations = append(transformations, TransformSanitizeInput)
		}
		if scores[CheckPattern] < g.config.TransformTrigger {
			transformations = append(transformations, TransformNormalizeEncoding)
		}
		if scores[CheckThreat] < g.config.TransformTrigger {
			transformations = append(transformations, TransformContentFilter)
		}
		return ActionTransform, LevelHigh, transformations
	default:
		return ActionQuarantine, LevelCritical, nil
	}
}

// buildReasoning always includes the overall confidence, source, and data
// type, plus one line per check that scored below the reason threshold.
func (g *Gatekeeper) buildReasoning(confidence float64, source string, data any, scores map[string]float64) []string {
	reasoning := []string{
		fmt.Sprintf("overall confidence %.3f", confidence),
		fmt.Sprintf("source %q", source),
		fmt.Sprintf("data type %T", data),
	}
	for _, name := range []string{CheckSource, CheckIntegrity, CheckPattern, CheckThreat} {
		if scores[name] < g.config.ReasonThreshold {
			reasoning = append(reasoning, fmt.Sprintf("%s scored %.3f (below %.2f)",
				name, scores[name], g.config.ReasonThreshold))
		}
	}
	return reasoning
}

// #endregion decide

// #region provenance

func (g *Gatekeeper) logDecision(
	decision Decision,
	data any,
	payload []byte,
	source string,
	meta Metadata,
	seenBefore, trusted bool,
	sessionCount, lifetimeCount int64,
) {
	if g.db == nil {
		return
	}
	rec := logging.GateRecord{
		Source:           source,
		DataType:         fmt.Sprintf("%T", data),
		PayloadJSON:      string(payload),
		Authenticated:    meta.Authenticated,
		Encrypted:        meta.Encrypted,
		Checksum:         meta.Checksum,
		PayloadTimestamp: meta.Timestamp,
		SessionCount:     sessionCount,
		LifetimeCount:    lifetimeCount,
		SeenBefore:       seenBefore,
		Trusted:          trusted,
		CheckScores:      decision.CheckScores,
		Thresholds: logging.GateRecordThresholds{
			AllowLow:      g.config.AllowLowThreshold,
			AllowMedium:   g.config.AllowMediumThreshold,
			Transform:     g.config.TransformThreshold,
			MinCheckScore: g.config.MinCheckScore,
		},
		Action:          string(decision.Action),
		SecurityLevel:   string(decision.SecurityLevel),
		Confidence:      decision.Confidence,
		Reasoning:       decision.Reasoning,
		Transformations: decision.Transformations,
		EvaluatedAt:     decision.Timestamp,
	}
	if err := logging.LogGateDecision(g.db, rec); err != nil {
		log.Printf("[GATE] failed to log decision for %q: %v", source, err)
	}
}

// #endregion provenance
