package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/logging"
	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/store"
	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/supervisor"
	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/trail"
)

// #region main
func main() {
	dbPath := flag.String("db", "sentinel.db", "path to the control plane database")
	view := flag.String("view", "repairs", "what to show: repairs, gate, paths, path")
	pathID := flag.String("path", "", "path id for -view path")
	limit := flag.Int("limit", 20, "max rows")
	asJSON := flag.Bool("json", false, "emit JSON instead of a table")
	flag.Parse()

	st, err := store.NewStore(*dbPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	switch *view {
	case "repairs":
		showRepairs(st, *limit, *asJSON)
	case "gate":
		showGate(st, *limit, *asJSON)
	case "paths":
		showPaths(st, *limit, *asJSON)
	case "path":
		if *pathID == "" {
			log.Fatal("-view path requires -path <id>")
		}
		showPath(st, *pathID, *asJSON)
	default:
		log.Fatalf("unknown view %q", *view)
	}
}

// #endregion main

// #region views

func showRepairs(st *store.Store, limit int, asJSON bool) {
	mem, err := supervisor.NewMemory(st.DB())
	if err != nil {
		log.Fatalf("open repair memory: %v", err)
	}
	actions, err := mem.History("", limit)
	if err != nil {
		log.Fatalf("repair history: %v", err)
	}
	if asJSON {
		emitJSON(actions)
		return
	}
	for _, a := range actions {
		fmt.Printf("%s  %-24s %-30s ok=%-5v recovery=%-8s %s\n",
			a.Timestamp.Format(time.RFC3339), a.ComponentName, a.Strategy,
			a.Success, a.RecoveryTime, a.ErrorMessage)
	}
}

func showGate(st *store.Store, limit int, asJSON bool) {
	records, err := logging.ListGateRecords(st.DB(), limit)
	if err != nil {
		log.Fatalf("gate records: %v", err)
	}
	if asJSON {
		emitJSON(records)
		return
	}
	for _, r := range records {
		fmt.Printf("%s  %-20s %-10s %-8s conf=%.3f %s\n",
			r.EvaluatedAt.Format(time.RFC3339), r.Source, r.Action, r.SecurityLevel,
			r.Confidence, r.DataType)
	}
}

func showPaths(st *store.Store, limit int, asJSON bool) {
	summaries, err := trail.ListPaths(st.DB(), limit)
	if err != nil {
		log.Fatalf("list paths: %v", err)
	}
	if asJSON {
		emitJSON(summaries)
		return
	}
	for _, s := range summaries {
		fmt.Printf("%s  conf=%.3f nodes=%-3d took=%-8s %q\n",
			s.PathID, s.TotalConfidence, s.NodeCount, s.ExecutionTime, s.RootQuestion)
	}
}

func showPath(st *store.Store, pathID string, asJSON bool) {
	p, err := trail.LoadPath(st.DB(), pathID)
	if err != nil {
		log.Fatalf("load path: %v", err)
	}
	if asJSON {
		emitJSON(p)
		return
	}
	fmt.Printf("path %s  conf=%.3f\n  %q\n", p.PathID, p.TotalConfidence, p.RootQuestion)
	for i, n := range p.Ordered() {
		fmt.Printf("  %2d. %-24s %-16s conf=%.3f preds=%d\n",
			i+1, n.StepType, n.Component, n.Confidence, len(n.Predecessors))
	}
	verdict, _ := json.MarshalIndent(p.FinalVerdict, "  ", "  ")
	fmt.Printf("  verdict: %s\n", verdict)
}

func emitJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("encode: %v", err)
	}
}

// #endregion views
