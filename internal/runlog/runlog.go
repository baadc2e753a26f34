// Package runlog records every published tick of a run to sqlite so
// runs can be replayed into reports and inspected live over the debug
// routes. It is a sink: the decision loop is correct without it.
package runlog

import (
	"database/sql"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/crosswalk-data/aeb.report/internal/bridge"
	"github.com/crosswalk-data/aeb.report/internal/monitoring"
)

type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the run database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			link_state TEXT,
			started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS ticks (
			run_id TEXT,
			tick INTEGER,
			sim_time DOUBLE,
			distance DOUBLE,
			ttc DOUBLE,
			ego_speed DOUBLE,
			lead_speed DOUBLE,
			relative_velocity DOUBLE,
			state TEXT,
			deceleration DOUBLE,
			throttle DOUBLE,
			brake DOUBLE,
			link_state TEXT,
			collision INTEGER,
			PRIMARY KEY (run_id, tick),
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// StartRun registers a new run and returns its ID.
func (db *DB) StartRun(linkState string) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec("INSERT INTO runs (run_id, link_state) VALUES (?, ?)", id, linkState)
	if err != nil {
		return "", err
	}
	return id, nil
}

// RecordTick persists one published snapshot. An infinite TTC is
// stored as NULL; sqlite has no representation for it.
func (db *DB) RecordTick(runID string, s bridge.Snapshot) error {
	ttc := sql.NullFloat64{Float64: s.TTC, Valid: !math.IsInf(s.TTC, 0)}
	_, err := db.Exec(`
		INSERT INTO ticks (
			run_id, tick, sim_time, distance, ttc, ego_speed, lead_speed,
			relative_velocity, state, deceleration, throttle, brake,
			link_state, collision
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, s.Tick, s.Time, s.Distance, ttc, s.EgoSpeed, s.LeadSpeed,
		s.RelativeVelocity, s.StateName, s.Command.Deceleration,
		s.Control.Throttle, s.Control.Brake, s.LinkStateName, s.Collision,
	)
	return err
}

// Tick is one recorded loop iteration. TTC reads back as +Inf where it
// was stored as NULL.
type Tick struct {
	Tick             int
	SimTime          float64
	Distance         float64
	TTC              float64
	EgoSpeed         float64
	LeadSpeed        float64
	RelativeVelocity float64
	State            string
	Deceleration     float64
	Throttle         float64
	Brake            float64
	LinkState        string
	Collision        bool
}

// Ticks returns the full recorded trace of one run, in tick order.
func (db *DB) Ticks(runID string) ([]Tick, error) {
	rows, err := db.Query(`
		SELECT tick, sim_time, distance, ttc, ego_speed, lead_speed,
			relative_velocity, state, deceleration, throttle, brake,
			link_state, collision
		FROM ticks WHERE run_id = ? ORDER BY tick`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []Tick
	for rows.Next() {
		var t Tick
		var ttc sql.NullFloat64
		if err := rows.Scan(&t.Tick, &t.SimTime, &t.Distance, &ttc,
			&t.EgoSpeed, &t.LeadSpeed, &t.RelativeVelocity, &t.State,
			&t.Deceleration, &t.Throttle, &t.Brake, &t.LinkState,
			&t.Collision); err != nil {
			return nil, err
		}
		if ttc.Valid {
			t.TTC = ttc.Float64
		} else {
			t.TTC = math.Inf(1)
		}
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// LatestRunID returns the most recently started run.
func (db *DB) LatestRunID() (string, error) {
	var id string
	err := db.QueryRow("SELECT run_id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1").Scan(&id)
	return id, err
}

// Record drains snapshots from ch into the run log until the channel
// closes. Run it on its own goroutine; the publisher drops ticks for
// us if we ever fall behind, so the step loop is never backpressured.
func (db *DB) Record(runID string, ch <-chan bridge.Snapshot) {
	for s := range ch {
		if err := db.RecordTick(runID, s); err != nil {
			monitoring.Logf("runlog: failed to record tick %d: %v", s.Tick, err)
		}
	}
}

// AttachAdminRoutes mounts a tailSQL browser for the run database on
// the debug mux, accessible only over localhost/Tailscale.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("runlog: failed to create tailsql server: %v", err)
		return
	}
	tsql.SetDB("sqlite://runs.db", db.DB, &tailsql.DBOptions{
		Label: "AEB Run Log",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the run database", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := fmt.Sprintf("backup-%d.db", time.Now().Unix())
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		http.ServeFile(w, r, backupPath)
	}))
}
