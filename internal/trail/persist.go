package trail

// #region imports
import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #endregion

// #region schema
const pathSchema = `
CREATE TABLE IF NOT EXISTS reasoning_paths (
    path_id          TEXT PRIMARY KEY,
    root_question    TEXT NOT NULL,
    verdict_json     TEXT NOT NULL,
    total_confidence REAL NOT NULL,
    execution_ms     INTEGER NOT NULL,
    created_at       TEXT NOT NULL,
    completed_at     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS reasoning_nodes (
    path_id    TEXT NOT NULL,
    node_id    TEXT NOT NULL,
    seq        INTEGER NOT NULL,
    step_type  TEXT NOT NULL,
    component  TEXT NOT NULL,
    data_json  TEXT NOT NULL,
    confidence REAL NOT NULL,
    PRIMARY KEY (path_id, node_id)
);
CREATE TABLE IF NOT EXISTS reasoning_edges (
    path_id TEXT NOT NULL,
    from_id TEXT NOT NULL,
    to_id   TEXT NOT NULL,
    PRIMARY KEY (path_id, from_id, to_id)
);
CREATE INDEX IF NOT EXISTS idx_reasoning_nodes_path ON reasoning_nodes(path_id, seq);
`

func ensurePathSchema(db *sql.DB) error {
	if _, err := db.Exec(pathSchema); err != nil {
		return fmt.Errorf("reasoning path schema: %w", err)
	}
	return nil
}

// #endregion schema

// #region save

// savePath writes a completed path in one transaction. seq preserves the
// topological replay order so loads do not have to re-sort.
func savePath(db *sql.DB, p *ReasoningPath, ordered []string) error {
	verdict, err := json.Marshal(p.FinalVerdict)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin save path: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT OR REPLACE INTO reasoning_paths
		 (path_id, root_question, verdict_json, total_confidence, execution_ms, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.PathID,
		p.RootQuestion,
		string(verdict),
		p.TotalConfidence,
		p.ExecutionTime.Milliseconds(),
		p.CreatedAt.Format(time.RFC3339Nano),
		p.CompletedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save path %s: %w", p.PathID, err)
	}

	for seq, id := range ordered {
		node := p.Nodes[id]
		data, err := json.Marshal(node.Data)
		if err != nil {
			return fmt.Errorf("marshal node %s: %w", id, err)
		}
		_, err = tx.Exec(
			`INSERT OR REPLACE INTO reasoning_nodes
			 (path_id, node_id, seq, step_type, component, data_json, confidence)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.PathID, node.NodeID, seq, string(node.StepType), node.Component, string(data), node.Confidence,
		)
		if err != nil {
			return fmt.Errorf("save node %s: %w", id, err)
		}
		for _, pred := range node.Predecessors {
			_, err = tx.Exec(
				`INSERT OR REPLACE INTO reasoning_edges (path_id, from_id, to_id) VALUES (?, ?, ?)`,
				p.PathID, pred, node.NodeID,
			)
			if err != nil {
				return fmt.Errorf("save edge %s->%s: %w", pred, id, err)
			}
		}
	}
	return tx.Commit()
}

// #endregion save

// #region load

// ListPaths returns summaries of persisted paths, newest completion first.
func ListPaths(db *sql.DB, limit int) ([]PathSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT p.path_id, p.root_question, p.total_confidence, p.execution_ms, p.created_at, p.completed_at,
		        (SELECT COUNT(*) FROM reasoning_nodes n WHERE n.path_id = p.path_id)
		 FROM reasoning_paths p ORDER BY p.completed_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list paths: %w", err)
	}
	defer rows.Close()

	var out []PathSummary
	for rows.Next() {
		var s PathSummary
		var execMS int64
		var created, completed string
		if err := rows.Scan(&s.PathID, &s.RootQuestion, &s.TotalConfidence, &execMS, &created, &completed, &s.NodeCount); err != nil {
			return nil, err
		}
		s.ExecutionTime = time.Duration(execMS) * time.Millisecond
		s.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		s.CompletedAt, _ = time.Parse(time.RFC3339Nano, completed)
		out = append(out, s)
	}
	return out, rows.Err()
}

// LoadPath reconstructs one persisted path, nodes in stored replay order.
func LoadPath(db *sql.DB, pathID string) (*ReasoningPath, error) {
	p := &ReasoningPath{
		PathID: pathID,
		Nodes:  make(map[string]*ReasoningNode),
	}

	var verdict, created, completed string
	var execMS int64
	err := db.QueryRow(
		`SELECT root_question, verdict_json, total_confidence, execution_ms, created_at, completed_at
		 FROM reasoning_paths WHERE path_id = ?`, pathID,
	).Scan(&p.RootQuestion, &verdict, &p.TotalConfidence, &execMS, &created, &completed)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("load %q: %w", pathID, ErrPathNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load path %s: %w", pathID, err)
	}
	if err := json.Unmarshal([]byte(verdict), &p.FinalVerdict); err != nil {
		return nil, fmt.Errorf("decode verdict for %s: %w", pathID, err)
	}
	p.ExecutionTime = time.Duration(execMS) * time.Millisecond
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	p.CompletedAt, _ = time.Parse(time.RFC3339Nano, completed)

	rows, err := db.Query(
		`SELECT node_id, step_type, component, data_json, confidence
		 FROM reasoning_nodes WHERE path_id = ? ORDER BY seq`, pathID,
	)
	if err != nil {
		return nil, fmt.Errorf("load nodes for %s: %w", pathID, err)
	}
	defer rows.Close()

	for rows.Next() {
		n := &ReasoningNode{}
		var step, data string
		if err := rows.Scan(&n.NodeID, &step, &n.Component, &data, &n.Confidence); err != nil {
			return nil, err
		}
		n.StepType = StepType(step)
		if err := json.Unmarshal([]byte(data), &n.Data); err != nil {
			return nil, fmt.Errorf("decode node %s: %w", n.NodeID, err)
		}
		p.Nodes[n.NodeID] = n
		p.order = append(p.order, n.NodeID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edges, err := db.Query(
		`SELECT from_id, to_id FROM reasoning_edges WHERE path_id = ?`, pathID,
	)
	if err != nil {
		return nil, fmt.Errorf("load edges for %s: %w", pathID, err)
	}
	defer edges.Close()

	for edges.Next() {
		var from, to string
		if err := edges.Scan(&from, &to); err != nil {
			return nil, err
		}
		if f, ok := p.Nodes[from]; ok {
			f.Successors = append(f.Successors, to)
		}
		if t, ok := p.Nodes[to]; ok {
			t.Predecessors = append(t.Predecessors, from)
		}
	}
	return p, edges.Err()
}

// #endregion load
