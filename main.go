package main

import (
	"context"
	"embed"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/crosswalk-data/aeb.report/api"
	"github.com/crosswalk-data/aeb.report/internal/aeb"
	"github.com/crosswalk-data/aeb.report/internal/bridge"
	"github.com/crosswalk-data/aeb.report/internal/config"
	"github.com/crosswalk-data/aeb.report/internal/cosim"
	"github.com/crosswalk-data/aeb.report/internal/report"
	"github.com/crosswalk-data/aeb.report/internal/runlog"
	"github.com/crosswalk-data/aeb.report/internal/world"
)

var (
	//go:embed static/*
	staticFiles embed.FS
	devMode     = flag.Bool("dev", false, "Run in dev mode (serve static files from ./static)")
	noLink      = flag.Bool("no-link", false, "Skip the controller link and run on the local fallback policy")
	noRecord    = flag.Bool("no-record", false, "Disable run recording and post-run reports")
	configPath  = flag.String("config", "", "Path to JSON config file")
	listen      = flag.String("listen", "", "HTTP listen address (overrides config)")
)

func main() {
	flag.Parse()

	cfg := config.Empty()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	httpAddr := cfg.GetHTTPAddr()
	if *listen != "" {
		httpAddr = *listen
	}

	// The controller connects before the loop starts; a failed bind or
	// accept is not fatal, the run continues on the fallback policy.
	var link cosim.CommandLink
	if *noLink {
		link = cosim.NewDisabledLink()
	} else {
		log.Printf("waiting for controller on %s", cfg.GetListenAddr())
		l, err := cosim.Open(cfg.GetListenAddr())
		if err != nil {
			log.Printf("controller link unavailable, running degraded: %v", err)
			link = cosim.NewDisabledLink()
		} else {
			link = l
		}
	}

	var db *runlog.DB
	var runID string
	if !*noRecord {
		var err error
		db, err = runlog.Open(cfg.GetDBPath())
		if err != nil {
			log.Fatalf("failed to open run database: %v", err)
		}
		defer db.Close()

		runID, err = db.StartRun(link.State().String())
		if err != nil {
			log.Fatalf("failed to register run: %v", err)
		}
		log.Printf("recording run %s", runID)
	}

	pub := bridge.NewPublisher()
	engine := aeb.NewEngine(aeb.Thresholds{
		WarnDistance:      cfg.GetWarnDistance(),
		BrakeDistance:     cfg.GetBrakeDistance(),
		CollisionDistance: cfg.GetCollisionDistance(),
		BrakeReference:    cfg.GetBrakeReference(),
		MaxDeceleration:   cfg.GetMaxDeceleration(),
	})
	w := world.NewKinematicWorld(scenarioFromConfig(cfg))
	driver := bridge.NewDriver(w, link, engine, pub, cfg, nil)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// drain snapshots into the run log; the channel closes when the
	// driver tears the publisher down
	if db != nil {
		id, ch := pub.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer pub.Unsubscribe(id)
			db.Record(runID, ch)
			log.Print("record routine terminated")
		}()
	}

	// the control loop itself
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := driver.Run(ctx); err != nil {
			log.Printf("control loop failed: %v", err)
		}
		// unwind the HTTP server and recorder once the loop is done,
		// whatever ended it
		stop()
		log.Print("control loop terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// admin debugging routes (accessible only in dev mode or over Tailscale)
		if db != nil {
			db.AttachAdminRoutes(mux)
		}

		apiMux := api.NewServer(pub, db, cfg.GetDisplayUnits()).ServeMux()
		mux.Handle("/api/", apiMux)
		mux.Handle("/events", apiMux)
		mux.Handle("/report", apiMux)

		// read static files from the embedded filesystem in production or
		// from the local ./static in dev for easier iteration without
		// restarting the server
		var staticHandler http.Handler
		if *devMode {
			staticHandler = http.FileServer(http.Dir("./static"))
		} else {
			hud, err := fs.Sub(staticFiles, "static")
			if err != nil {
				log.Fatalf("failed to open embedded static files: %v", err)
			}
			staticHandler = http.FileServer(http.FS(hud))
		}
		mux.Handle("/", staticHandler)

		server := &http.Server{
			Addr:    httpAddr,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("HUD listening on %s", httpAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	if db != nil {
		writeReport(db, runID, cfg.GetReportDir())
	}
	log.Printf("Graceful shutdown complete")
}

// scenarioFromConfig overlays any configured geometry overrides on the
// default crossing scenario and keeps the world timestep in lockstep
// with the loop's tick period.
func scenarioFromConfig(cfg *config.Config) world.Scenario {
	s := world.DefaultScenario()
	s.Timestep = cfg.GetTimestep()
	if cfg.EgoStartY != nil {
		s.EgoStart.Y = *cfg.EgoStartY
	}
	if cfg.LeadStartY != nil {
		s.LeadStart.Y = *cfg.LeadStartY
	}
	if cfg.EgoTopSpeed != nil {
		s.EgoTopVel = *cfg.EgoTopSpeed
	}
	if cfg.LeadTopSpeed != nil {
		s.LeadTopVel = *cfg.LeadTopSpeed
	}
	return s
}

// writeReport renders the recorded run to HTML and PNG artefacts.
func writeReport(db *runlog.DB, runID, dir string) {
	ticks, err := db.Ticks(runID)
	if err != nil {
		log.Printf("failed to load run %s for reporting: %v", runID, err)
		return
	}
	if len(ticks) == 0 {
		log.Printf("run %s recorded no ticks, skipping report", runID)
		return
	}

	htmlPath, err := report.WriteHTML(dir, runID, ticks)
	if err != nil {
		log.Printf("failed to write HTML report: %v", err)
	} else {
		log.Printf("wrote report %s", htmlPath)
	}

	plots, err := report.SavePlots(dir, runID, ticks)
	if err != nil {
		log.Printf("failed to write plots: %v", err)
		return
	}
	for _, p := range plots {
		log.Printf("wrote plot %s", p)
	}
}
