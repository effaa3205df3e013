package trail

// #region imports
import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"
)

// #endregion

// #region trail

// Trail records reasoning DAGs per logical decision and serves replay and
// audit queries. Content-derived ids make the trail idempotent under retries
// and at-least-once delivery.
type Trail struct {
	mu        sync.Mutex
	active    map[string]*ReasoningPath
	completed map[string]*ReasoningPath
	doneOrder []string // completion order, for stable audit listings

	db    *sql.DB // optional persistence of completed paths
	clock func() time.Time
}

// NewTrail creates an in-memory audit trail.
func NewTrail() *Trail {
	return &Trail{
		active:    make(map[string]*ReasoningPath),
		completed: make(map[string]*ReasoningPath),
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// NewTrailWithDB creates a trail that persists completed paths to SQLite.
func NewTrailWithDB(db *sql.DB) (*Trail, error) {
	if err := ensurePathSchema(db); err != nil {
		return nil, err
	}
	t := NewTrail()
	t.db = db
	return t, nil
}

// SetClock overrides the time source. Test hook.
func (t *Trail) SetClock(clock func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clock = clock
}

// #endregion trail

// #region ids

// canonicalJSON serializes with deterministic key order (encoding/json
// sorts map keys at every level).
func canonicalJSON(v any) string {
	if v == nil {
		return "null"
	}
	blob, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(blob)
}

func hashID(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// PathID derives the deterministic id for a question and context.
func PathID(question string, context map[string]any) string {
	return hashID("path", question, canonicalJSON(context))
}

// NodeID derives the deterministic id for a step within a path.
func NodeID(pathID string, stepType StepType, component string, data map[string]any) string {
	return hashID("node", pathID, string(stepType), component, canonicalJSON(data))
}

// #endregion ids

// #region start-path

// StartPath opens (or resumes) a path. The id is content-derived, so
// starting twice with identical inputs returns the same id and resumes the
// existing active path rather than erroring.
func (t *Trail) StartPath(question string, context map[string]any) string {
	id := PathID(question, context)

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.active[id]; ok {
		return id
	}
	if _, ok := t.completed[id]; ok {
		// Completed paths are frozen; the caller gets the id and any
		// further AddStep fails with ErrPathNotActive.
		return id
	}
	t.active[id] = &ReasoningPath{
		PathID:       id,
		RootQuestion: question,
		Nodes:        make(map[string]*ReasoningNode),
		CreatedAt:    t.clock(),
	}
	log.Printf("[TRAIL] path %s started: %q", id, question)
	return id
}

// #endregion start-path

// #region add-step

// AddStep appends a node to an active path and wires predecessor edges.
// Re-adding an identical step overwrites in place (same node id, no
// duplicate). Predecessors must already exist in the path, and a predecessor
// set that would create a cycle is rejected.
func (t *Trail) AddStep(
	pathID string,
	stepType StepType,
	component string,
	data map[string]any,
	confidence float64,
	predecessors []string,
) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.active[pathID]
	if !ok {
		return "", fmt.Errorf("add step to %q: %w", pathID, ErrPathNotActive)
	}

	nodeID := NodeID(pathID, stepType, component, data)

	preds := dedupe(predecessors)
	for _, pred := range preds {
		if _, ok := p.Nodes[pred]; !ok {
			return "", fmt.Errorf("add step %s: predecessor %q: %w", nodeID, pred, ErrUnknownPredecessor)
		}
		if pred == nodeID || p.isDescendant(nodeID, pred) {
			return "", fmt.Errorf("add step %s: predecessor %q: %w", nodeID, pred, ErrCycleDetected)
		}
	}

	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	existing, reinsert := p.Nodes[nodeID]
	if reinsert {
		// Idempotent overwrite: detach from old predecessors, keep successors.
		for _, old := range existing.Predecessors {
			if prev, ok := p.Nodes[old]; ok {
				prev.Successors = removeID(prev.Successors, nodeID)
			}
		}
		existing.Data = data
		existing.Confidence = confidence
		existing.Predecessors = preds
	} else {
		p.Nodes[nodeID] = &ReasoningNode{
			NodeID:       nodeID,
			StepType:     stepType,
			Component:    component,
			Data:         data,
			Confidence:   confidence,
			Predecessors: preds,
		}
		p.order = append(p.order, nodeID)
	}

	for _, pred := range preds {
		prev := p.Nodes[pred]
		if !containsID(prev.Successors, nodeID) {
			prev.Successors = append(prev.Successors, nodeID)
		}
	}
	return nodeID, nil
}

// isDescendant reports whether target is reachable from start by successor
// edges. Iterative walk; the graph is acyclic by construction.
func (p *ReasoningPath) isDescendant(start, target string) bool {
	node, ok := p.Nodes[start]
	if !ok {
		return false
	}
	seen := map[string]bool{start: true}
	queue := append([]string{}, node.Successors...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == target {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		if n, ok := p.Nodes[cur]; ok {
			queue = append(queue, n.Successors...)
		}
	}
	return false
}

// #endregion add-step

// #region complete-path

// CompletePath computes the weighted total confidence, freezes the path, and
// moves it from active to completed. The check-and-move is atomic: a second
// completion attempt fails cleanly with ErrPathNotActive.
func (t *Trail) CompletePath(pathID string, verdict map[string]any, executionTime time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.active[pathID]
	if !ok {
		return fmt.Errorf("complete %q: %w", pathID, ErrPathNotActive)
	}

	var num, den float64
	for _, id := range p.order {
		node := p.Nodes[id]
		w := stepWeights[node.StepType]
		num += w * node.Confidence
		den += w
	}
	if den > 0 {
		p.TotalConfidence = num / den
	}
	p.FinalVerdict = verdict
	p.ExecutionTime = executionTime
	p.CompletedAt = t.clock()

	delete(t.active, pathID)
	t.completed[pathID] = p
	t.doneOrder = append(t.doneOrder, pathID)

	log.Printf("[TRAIL] path %s completed: confidence=%.4f nodes=%d",
		pathID, p.TotalConfidence, len(p.Nodes))

	if t.db != nil {
		if err := savePath(t.db, p, t.topoOrder(p)); err != nil {
			log.Printf("[TRAIL] failed to persist path %s: %v", pathID, err)
		}
	}
	return nil
}

// #endregion complete-path

// #region replay

// ReplayPath returns the path's nodes in topological order: every
// predecessor strictly before its successors, insertion order breaking ties
// among ready nodes. Pure read; works on active and completed paths.
func (t *Trail) ReplayPath(pathID string) ([]ReasoningNode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.active[pathID]
	if !ok {
		p, ok = t.completed[pathID]
	}
	if !ok {
		return nil, fmt.Errorf("replay %q: %w", pathID, ErrPathNotFound)
	}

	ordered := t.topoOrder(p)
	out := make([]ReasoningNode, 0, len(ordered))
	for _, id := range ordered {
		out = append(out, copyNode(p.Nodes[id]))
	}
	return out, nil
}

// topoOrder repeatedly emits the earliest-inserted node whose predecessors
// have all been emitted.
func (t *Trail) topoOrder(p *ReasoningPath) []string {
	emitted := make(map[string]bool, len(p.order))
	out := make([]string, 0, len(p.order))

	for len(out) < len(p.order) {
		progressed := false
		for _, id := range p.order {
			if emitted[id] {
				continue
			}
			node := p.Nodes[id]
			ready := true
			for _, pred := range node.Predecessors {
				if !emitted[pred] {
					ready = false
					break
				}
			}
			if ready {
				emitted[id] = true
				out = append(out, id)
				progressed = true
			}
		}
		if !progressed {
			// Unreachable while AddStep rejects cycles.
			break
		}
	}
	return out
}

// #endregion replay

// #region audit

// Audit is a read-only filter over completed paths, in completion order.
func (t *Trail) Audit(filter AuditFilter) []PathSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []PathSummary
	for _, id := range t.doneOrder {
		p := t.completed[id]
		if p.TotalConfidence < filter.MinConfidence {
			continue
		}
		if !filter.From.IsZero() && p.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && p.CreatedAt.After(filter.To) {
			continue
		}
		if filter.Component != "" && !pathTouches(p, filter.Component) {
			continue
		}
		out = append(out, PathSummary{
			PathID:          p.PathID,
			RootQuestion:    p.RootQuestion,
			TotalConfidence: p.TotalConfidence,
			NodeCount:       len(p.Nodes),
			ExecutionTime:   p.ExecutionTime,
			CreatedAt:       p.CreatedAt,
			CompletedAt:     p.CompletedAt,
		})
	}
	return out
}

// Completed returns the frozen path, if it exists.
func (t *Trail) Completed(pathID string) (ReasoningPath, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.completed[pathID]
	if !ok {
		return ReasoningPath{}, false
	}
	snapshot := ReasoningPath{
		PathID:          p.PathID,
		RootQuestion:    p.RootQuestion,
		Nodes:           make(map[string]*ReasoningNode, len(p.Nodes)),
		FinalVerdict:    p.FinalVerdict,
		TotalConfidence: p.TotalConfidence,
		ExecutionTime:   p.ExecutionTime,
		CreatedAt:       p.CreatedAt,
		CompletedAt:     p.CompletedAt,
		order:           append([]string{}, p.order...),
	}
	for id, n := range p.Nodes {
		c := copyNode(n)
		snapshot.Nodes[id] = &c
	}
	return snapshot, true
}

func pathTouches(p *ReasoningPath, component string) bool {
	for _, n := range p.Nodes {
		if n.Component == component {
			return true
		}
	}
	return false
}

// #endregion audit

// #region helpers

func copyNode(n *ReasoningNode) ReasoningNode {
	out := ReasoningNode{
		NodeID:       n.NodeID,
		StepType:     n.StepType,
		Component:    n.Component,
		Confidence:   n.Confidence,
		Predecessors: append([]string{}, n.Predecessors...),
		Successors:   append([]string{}, n.Successors...),
	}
	if n.Data != nil {
		out.Data = make(map[string]any, len(n.Data))
		for k, v := range n.Data {
			out.Data[k] = v
		}
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func containsID(list []string, id string) bool {
	for _, x := range list {
		if x == id {
			return true
		}
	}
	return false
}

func removeID(list []string, id string) []string {
	for i, x := range list {
		if x == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// #endregion helpers
