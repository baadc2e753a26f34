package api

import (
	"bufio"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosswalk-data/aeb.report/internal/bridge"
	"github.com/crosswalk-data/aeb.report/internal/monitoring"
	"github.com/crosswalk-data/aeb.report/internal/runlog"
	"github.com/crosswalk-data/aeb.report/internal/units"
)

func init() {
	monitoring.SetLogger(nil)
}

func newTestServer(t *testing.T) (*Server, *bridge.Publisher, *runlog.DB) {
	t.Helper()
	pub := bridge.NewPublisher()
	db, err := runlog.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewServer(pub, db, units.KMPH), pub, db
}

func TestSnapshotBeforeFirstTick(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSnapshotConvertsDisplaySpeeds(t *testing.T) {
	s, pub, _ := newTestServer(t)

	pub.Publish(bridge.Snapshot{
		Tick: 3, Distance: 12, TTC: math.Inf(1),
		EgoSpeed: 3, LeadSpeed: 1,
		StateName: "warning", LinkStateName: "degraded",
	})

	w := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "kmph", got["speed_units"])
	assert.InDelta(t, 10.8, got["ego_speed_display"], 1e-9)
	assert.InDelta(t, 3.6, got["lead_speed_display"], 1e-9)
	assert.Equal(t, "∞", got["ttc_display"])
	assert.Equal(t, "degraded", got["link_state"])
}

func TestSnapshotMethodNotAllowed(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/snapshot", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestListTicksDefaultsToLatestRun(t *testing.T) {
	s, _, db := newTestServer(t)

	old, err := db.StartRun("degraded")
	require.NoError(t, err)
	require.NoError(t, db.RecordTick(old, bridge.Snapshot{Tick: 1}))

	latest, err := db.StartRun("connected")
	require.NoError(t, err)
	require.NoError(t, db.RecordTick(latest, bridge.Snapshot{Tick: 1, Distance: 63, TTC: math.Inf(1)}))
	require.NoError(t, db.RecordTick(latest, bridge.Snapshot{Tick: 2, Distance: 60, TTC: 30}))

	w := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ticks", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		RunID string        `json:"run_id"`
		Ticks []runlog.Tick `json:"ticks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, latest, got.RunID)
	assert.Len(t, got.Ticks, 2)
	assert.Equal(t, 63.0, got.Ticks[0].Distance)
}

func TestListTicksNoRuns(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ticks", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListTicksRecordingDisabled(t *testing.T) {
	s := NewServer(bridge.NewPublisher(), nil, units.MPS)

	w := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ticks", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReportRendersRecordedRun(t *testing.T) {
	s, _, db := newTestServer(t)

	runID, err := db.StartRun("degraded")
	require.NoError(t, err)
	require.NoError(t, db.RecordTick(runID, bridge.Snapshot{Tick: 1, Time: 0.05, Distance: 63, TTC: math.Inf(1)}))
	require.NoError(t, db.RecordTick(runID, bridge.Snapshot{Tick: 2, Time: 0.10, Distance: 6, TTC: 3}))

	w := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/report?run_id="+runID, nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Time to Collision")
}

func TestReportEmptyRun(t *testing.T) {
	s, _, db := newTestServer(t)

	runID, err := db.StartRun("degraded")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/report?run_id="+runID, nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamEventsDeliversTicks(t *testing.T) {
	s, pub, _ := newTestServer(t)

	srv := httptest.NewServer(s.ServeMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The subscriber is registered once the headers arrive; publish a
	// couple of ticks and read them back as JSON lines.
	go func() {
		for i := 1; i <= 2; i++ {
			pub.Publish(bridge.Snapshot{Tick: i, Distance: float64(63 - i)})
			time.Sleep(10 * time.Millisecond)
		}
		pub.Close()
	}()

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			lines = append(lines, strings.TrimSpace(line))
		}
		if err != nil {
			break
		}
	}

	require.NotEmpty(t, lines)
	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, 1.0, first["tick"])
}
