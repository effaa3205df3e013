package supervisor

// #region imports
import (
	"database/sql"
	"fmt"
	"math"
	"time"
)

// #endregion

// #region schema
const repairSchema = `
CREATE TABLE IF NOT EXISTS repair_actions (
    action_id     TEXT PRIMARY KEY,
    component     TEXT NOT NULL,
    strategy      TEXT NOT NULL,
    success       INTEGER NOT NULL,
    error_message TEXT NOT NULL,
    recovery_ms   INTEGER NOT NULL,
    created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_repair_actions_component ON repair_actions(component);
`

// #endregion schema

// #region memory

// Memory persists repair outcomes and answers "which strategy has worked for
// this component lately". Recent outcomes count more: weights halve every
// seven days.
type Memory struct {
	db    *sql.DB
	clock func() time.Time
}

const memoryHalfLife = 7 * 24 * time.Hour

// NewMemory prepares the repair_actions table on the given database.
func NewMemory(db *sql.DB) (*Memory, error) {
	if _, err := db.Exec(repairSchema); err != nil {
		return nil, fmt.Errorf("repair schema: %w", err)
	}
	return &Memory{
		db:    db,
		clock: func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetClock overrides the time source. Test hook.
func (m *Memory) SetClock(clock func() time.Time) {
	m.clock = clock
}

// RecordAction appends one repair outcome.
func (m *Memory) RecordAction(a RepairAction) error {
	success := 0
	if a.Success {
		success = 1
	}
	_, err := m.db.Exec(
		`INSERT OR REPLACE INTO repair_actions
		 (action_id, component, strategy, success, error_message, recovery_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ActionID,
		a.ComponentName,
		string(a.Strategy),
		success,
		a.ErrorMessage,
		a.RecoveryTime.Milliseconds(),
		a.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record repair action: %w", err)
	}
	return nil
}

// BestStrategy returns the strategy with the highest decay-weighted success
// rate for a component. It refuses to recommend on fewer than minSamples
// recorded actions.
func (m *Memory) BestStrategy(component string, minSamples int) (Strategy, bool) {
	rows, err := m.db.Query(
		`SELECT strategy, success, created_at FROM repair_actions WHERE component = ?`,
		component,
	)
	if err != nil {
		return "", false
	}
	defer rows.Close()

	now := m.clock()
	type tally struct{ weighted, total float64 }
	tallies := make(map[Strategy]*tally)
	samples := 0

	for rows.Next() {
		var strat string
		var success int
		var created string
		if err := rows.Scan(&strat, &success, &created); err != nil {
			return "", false
		}
		samples++

		when, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			when = now
		}
		age := now.Sub(when)
		if age < 0 {
			age = 0
		}
		w := math.Pow(0.5, float64(age)/float64(memoryHalfLife))

		t, ok := tallies[Strategy(strat)]
		if !ok {
			t = &tally{}
			tallies[Strategy(strat)] = t
		}
		t.total += w
		if success == 1 {
			t.weighted += w
		}
	}
	if rows.Err() != nil || samples < minSamples {
		return "", false
	}

	var best Strategy
	bestRate := -1.0
	for strat, t := range tallies {
		if t.total == 0 {
			continue
		}
		rate := t.weighted / t.total
		if rate > bestRate {
			bestRate = rate
			best = strat
		}
	}
	if bestRate <= 0 {
		return "", false
	}
	return best, true
}

// History returns a component's recorded actions, newest first. An empty
// component matches everything.
func (m *Memory) History(component string, limit int) ([]RepairAction, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT action_id, component, strategy, success, error_message, recovery_ms, created_at
	          FROM repair_actions`
	args := []any{}
	if component != "" {
		query += ` WHERE component = ?`
		args = append(args, component)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := m.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("repair history: %w", err)
	}
	defer rows.Close()

	var out []RepairAction
	for rows.Next() {
		var a RepairAction
		var strat, created string
		var success int
		var recoveryMS int64
		if err := rows.Scan(&a.ActionID, &a.ComponentName, &strat, &success, &a.ErrorMessage, &recoveryMS, &created); err != nil {
			return nil, err
		}
		a.Strategy = Strategy(strat)
		a.Success = success == 1
		a.RecoveryTime = time.Duration(recoveryMS) * time.Millisecond
		a.Timestamp, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, a)
	}
	return out, rows.Err()
}

// #endregion memory
