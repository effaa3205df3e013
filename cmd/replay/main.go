package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/replay"
	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/store"
)

// #region main
func main() {
	dbPath := flag.String("db", "sentinel.db", "path to the control plane database")
	fixturePath := flag.String("fixture", "", "replay a JSON fixture instead of the database")
	limit := flag.Int("limit", 100, "max decisions to replay from the database")
	verbose := flag.Bool("v", false, "print every result, not just mismatches")
	flag.Parse()

	var report replay.Report

	if *fixturePath != "" {
		fixture, err := replay.LoadFixture(*fixturePath)
		if err != nil {
			log.Fatalf("load fixture: %v", err)
		}
		fmt.Printf("Replaying fixture %q (%d records)\n", fixture.Name, len(fixture.Records))
		report = replay.Replay(fixture.Records)
	} else {
		st, err := store.NewStore(*dbPath)
		if err != nil {
			log.Fatalf("open store: %v", err)
		}
		defer st.Close()

		report, err = replay.ReplayDB(st.DB(), *limit)
		if err != nil {
			log.Fatalf("replay: %v", err)
		}
	}

	for _, r := range report.Results {
		if !*verbose && r.Match {
			continue
		}
		status := "ok"
		if !r.Match {
			status = "MISMATCH"
		}
		fmt.Printf("#%-4d %-8s source=%-20s recorded=%s/%s %.4f  replayed=%s/%s %.4f\n",
			r.Index, status, r.Source,
			r.RecordedAction, r.RecordedLevel, r.RecordedConfidence,
			r.ReplayedAction, r.ReplayedLevel, r.ReplayedConfidence)
	}

	fmt.Printf("\n%d replayed: %d matched, %d mismatched\n",
		report.Total, report.Matched, report.Mismatched)
	if report.Mismatched > 0 {
		os.Exit(1)
	}
}

// #endregion main
