// Package api serves the live HUD: the latest tick snapshot, a
// streaming event feed and the rendered run report.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/crosswalk-data/aeb.report/internal/bridge"
	"github.com/crosswalk-data/aeb.report/internal/report"
	"github.com/crosswalk-data/aeb.report/internal/runlog"
	"github.com/crosswalk-data/aeb.report/internal/units"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	pub    *bridge.Publisher
	db     *runlog.DB
	speeds string
}

// NewServer wires the HUD against the live publisher and the run
// database. db may be nil when recording is disabled; the report and
// tick endpoints then answer 503.
func NewServer(pub *bridge.Publisher, db *runlog.DB, speeds string) *Server {
	return &Server{
		pub:    pub,
		db:     db,
		speeds: speeds,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/snapshot", s.showSnapshot)
	mux.HandleFunc("/api/ticks", s.listTicks)
	mux.HandleFunc("/events", s.streamEvents)
	mux.HandleFunc("/report", s.showReport)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// hudSnapshot is a Snapshot with display-unit speed fields added.
type hudSnapshot struct {
	bridge.Snapshot
	SpeedUnits       string  `json:"speed_units"`
	EgoSpeedDisplay  float64 `json:"ego_speed_display"`
	LeadSpeedDisplay float64 `json:"lead_speed_display"`
	TTCDisplay       string  `json:"ttc_display"`
}

func (s *Server) toHUD(snap bridge.Snapshot) hudSnapshot {
	return hudSnapshot{
		Snapshot:         snap,
		SpeedUnits:       s.speeds,
		EgoSpeedDisplay:  units.ConvertSpeed(snap.EgoSpeed, s.speeds),
		LeadSpeedDisplay: units.ConvertSpeed(snap.LeadSpeed, s.speeds),
		TTCDisplay:       units.FormatTTC(snap.TTC),
	}
}

func (s *Server) showSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	snap, ok := s.pub.Latest()
	if !ok {
		s.writeJSONError(w, http.StatusNotFound, "no tick published yet")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.toHUD(snap))
}

// streamEvents pushes one JSON line per tick until the client goes
// away or the publisher closes during shutdown. Ticks the client is
// too slow for are dropped upstream rather than buffered.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	id, ch := s.pub.Subscribe()
	defer s.pub.Unsubscribe(id)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case snap, open := <-ch:
			if !open {
				return
			}
			if err := enc.Encode(s.toHUD(snap)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// resolveRun picks the run named by ?run_id, defaulting to the latest.
func (s *Server) resolveRun(r *http.Request) (string, error) {
	if id := r.URL.Query().Get("run_id"); id != "" {
		return id, nil
	}
	return s.db.LatestRunID()
}

func (s *Server) listTicks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "run recording disabled")
		return
	}

	runID, err := s.resolveRun(r)
	if err != nil {
		s.writeJSONError(w, http.StatusNotFound, "no recorded runs")
		return
	}
	ticks, err := s.db.Ticks(runID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load ticks: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"run_id": runID,
		"ticks":  ticks,
	})
}

func (s *Server) showReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "run recording disabled")
		return
	}

	runID, err := s.resolveRun(r)
	if err != nil {
		s.writeJSONError(w, http.StatusNotFound, "no recorded runs")
		return
	}
	ticks, err := s.db.Ticks(runID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load ticks: %v", err))
		return
	}
	if len(ticks) == 0 {
		s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("run %s has no ticks", runID))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderHTML(w, runID, ticks); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render report: %v", err))
	}
}
