// Command report renders the charts for a recorded run without
// starting the bridge, for post-hoc analysis of the run database.
package main

import (
	"flag"
	"log"

	"github.com/crosswalk-data/aeb.report/internal/report"
	"github.com/crosswalk-data/aeb.report/internal/runlog"
)

var (
	dbPath = flag.String("db", "aeb_runs.db", "Path to the run database")
	runID  = flag.String("run", "", "Run to render (default: most recent)")
	outDir = flag.String("out", "reports", "Output directory for report artefacts")
)

func main() {
	flag.Parse()

	db, err := runlog.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open run database: %v", err)
	}
	defer db.Close()

	id := *runID
	if id == "" {
		id, err = db.LatestRunID()
		if err != nil {
			log.Fatalf("no runs recorded in %s: %v", *dbPath, err)
		}
	}

	ticks, err := db.Ticks(id)
	if err != nil {
		log.Fatalf("failed to load run %s: %v", id, err)
	}
	if len(ticks) == 0 {
		log.Fatalf("run %s has no recorded ticks", id)
	}

	htmlPath, err := report.WriteHTML(*outDir, id, ticks)
	if err != nil {
		log.Fatalf("failed to write HTML report: %v", err)
	}
	log.Printf("wrote %s", htmlPath)

	plots, err := report.SavePlots(*outDir, id, ticks)
	if err != nil {
		log.Fatalf("failed to write plots: %v", err)
	}
	for _, p := range plots {
		log.Printf("wrote %s", p)
	}
}
