package logging

// #region imports
import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #endregion

// #region schema
const gateLogSchema = `
CREATE TABLE IF NOT EXISTS gate_log (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    source         TEXT NOT NULL,
    data_type      TEXT NOT NULL,
    action         TEXT NOT NULL,
    security_level TEXT NOT NULL,
    confidence     REAL NOT NULL,
    record_json    TEXT NOT NULL,
    created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_gate_log_source ON gate_log(source);
`

// #endregion schema

// #region ensure
// EnsureGateLog creates the gate_log table if missing.
func EnsureGateLog(db *sql.DB) error {
	if _, err := db.Exec(gateLogSchema); err != nil {
		return fmt.Errorf("gate log schema: %w", err)
	}
	return nil
}

// #endregion ensure

// #region log-gate-decision
// LogGateDecision appends one evaluation record to gate_log.
func LogGateDecision(db *sql.DB, rec GateRecord) error {
	if rec.EvaluatedAt.IsZero() {
		rec.EvaluatedAt = time.Now().UTC()
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal gate record: %w", err)
	}
	_, err = db.Exec(
		`INSERT INTO gate_log (source, data_type, action, security_level, confidence, record_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Source,
		rec.DataType,
		rec.Action,
		rec.SecurityLevel,
		rec.Confidence,
		string(blob),
		rec.EvaluatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log gate decision: %w", err)
	}
	return nil
}

// #endregion log-gate-decision

// #region list
// ListGateRecords returns up to limit most recent gate records, newest first.
func ListGateRecords(db *sql.DB, limit int) ([]GateRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT record_json FROM gate_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list gate records: %w", err)
	}
	defer rows.Close()

	var records []GateRecord
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var rec GateRecord
		if err := json.Unmarshal([]byte(blob), &rec); err != nil {
			return nil, fmt.Errorf("decode gate record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list
