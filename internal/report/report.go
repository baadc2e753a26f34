// Package report renders a recorded run as charts: an interactive HTML
// page for browsing and PNG plots for artefact archiving.
package report

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/crosswalk-data/aeb.report/internal/runlog"
)

// TTC values are unbounded (and +Inf while the gap opens), so charts
// cap them here to keep the interesting sub-critical region readable.
const (
	ttcDisplayCap = 10.0
	ttcCritical   = 2.0

	collisionThreshold = 2.5
)

func timeAxis(ticks []runlog.Tick) []string {
	x := make([]string, len(ticks))
	for i, t := range ticks {
		x[i] = fmt.Sprintf("%.2f", t.SimTime)
	}
	return x
}

func cappedTTC(t runlog.Tick) float64 {
	if math.IsInf(t.TTC, 1) || t.TTC > ttcDisplayCap {
		return ttcDisplayCap
	}
	return t.TTC
}

func constantSeries(n int, v float64) []opts.LineData {
	s := make([]opts.LineData, n)
	for i := range s {
		s[i] = opts.LineData{Value: v}
	}
	return s
}

func newLine(title, subtitle, yLabel string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1200px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: yLabel}),
	)
	return line
}

// RenderHTML writes the full interactive report for one run to w.
func RenderHTML(w io.Writer, runID string, ticks []runlog.Tick) error {
	if len(ticks) == 0 {
		return fmt.Errorf("run %s has no recorded ticks", runID)
	}

	x := timeAxis(ticks)
	subtitle := fmt.Sprintf("run=%s ticks=%d", runID, len(ticks))

	distData := make([]opts.LineData, len(ticks))
	ttcData := make([]opts.LineData, len(ticks))
	egoData := make([]opts.LineData, len(ticks))
	leadData := make([]opts.LineData, len(ticks))
	brakeData := make([]opts.LineData, len(ticks))
	decelData := make([]opts.LineData, len(ticks))
	for i, t := range ticks {
		distData[i] = opts.LineData{Value: t.Distance}
		ttcData[i] = opts.LineData{Value: cappedTTC(t)}
		egoData[i] = opts.LineData{Value: t.EgoSpeed}
		leadData[i] = opts.LineData{Value: t.LeadSpeed}
		brakeData[i] = opts.LineData{Value: t.Brake}
		decelData[i] = opts.LineData{Value: t.Deceleration}
	}

	dist := newLine("Separation", subtitle, "distance (m)")
	dist.SetXAxis(x).
		AddSeries("distance", distData).
		AddSeries("collision threshold", constantSeries(len(ticks), collisionThreshold),
			charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed", Color: "#ff5252"}))

	ttc := newLine("Time to Collision", fmt.Sprintf("%s (capped at %.0fs)", subtitle, ttcDisplayCap), "TTC (s)")
	ttc.SetXAxis(x).
		AddSeries("ttc", ttcData).
		AddSeries("critical", constantSeries(len(ticks), ttcCritical),
			charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed", Color: "#ff5252"}))

	speeds := newLine("Actor Speeds", subtitle, "speed (m/s)")
	speeds.SetXAxis(x).
		AddSeries("ego", egoData).
		AddSeries("cyclist", leadData)

	braking := newLine("Braking", subtitle, "fraction")
	braking.SetXAxis(x).
		AddSeries("brake applied", brakeData).
		AddSeries("commanded deceleration", decelData)

	page := components.NewPage()
	page.PageTitle = "AEB Run Report"
	page.AddCharts(dist, ttc, speeds, braking)
	return page.Render(w)
}

// WriteHTML renders the report into dir and returns the file path.
func WriteHTML(dir, runID string, ticks []runlog.Tick) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("run_%s.html", runID))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := RenderHTML(f, runID, ticks); err != nil {
		return "", err
	}
	return path, nil
}

var (
	seriesBlue = color.RGBA{R: 33, G: 150, B: 243, A: 255}
	seriesTeal = color.RGBA{R: 0, G: 150, B: 136, A: 255}
	dangerRed  = color.RGBA{R: 255, A: 255}
)

func addLine(p *plot.Plot, label string, pts plotter.XYs, c color.Color, dashed bool) error {
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = c
	line.Width = vg.Points(1)
	if dashed {
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	}
	p.Add(line)
	p.Legend.Add(label, line)
	return nil
}

func thresholdLine(ticks []runlog.Tick, v float64) plotter.XYs {
	return plotter.XYs{
		{X: ticks[0].SimTime, Y: v},
		{X: ticks[len(ticks)-1].SimTime, Y: v},
	}
}

// SavePlots writes PNG plots of the run into dir and returns the paths.
func SavePlots(dir, runID string, ticks []runlog.Tick) ([]string, error) {
	if len(ticks) == 0 {
		return nil, fmt.Errorf("run %s has no recorded ticks", runID)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	distPts := make(plotter.XYs, len(ticks))
	ttcPts := make(plotter.XYs, len(ticks))
	egoPts := make(plotter.XYs, len(ticks))
	leadPts := make(plotter.XYs, len(ticks))
	for i, t := range ticks {
		distPts[i] = plotter.XY{X: t.SimTime, Y: t.Distance}
		ttcPts[i] = plotter.XY{X: t.SimTime, Y: cappedTTC(t)}
		egoPts[i] = plotter.XY{X: t.SimTime, Y: t.EgoSpeed}
		leadPts[i] = plotter.XY{X: t.SimTime, Y: t.LeadSpeed}
	}

	pDist := plot.New()
	pDist.Title.Text = fmt.Sprintf("Run %s - Separation", runID)
	pDist.X.Label.Text = "t (s)"
	pDist.Y.Label.Text = "Distance (m)"
	if err := addLine(pDist, "distance", distPts, seriesBlue, false); err != nil {
		return nil, err
	}
	if err := addLine(pDist, "collision threshold", thresholdLine(ticks, collisionThreshold), dangerRed, true); err != nil {
		return nil, err
	}

	pTTC := plot.New()
	pTTC.Title.Text = fmt.Sprintf("Run %s - Time to Collision", runID)
	pTTC.X.Label.Text = "t (s)"
	pTTC.Y.Label.Text = "TTC (s)"
	if err := addLine(pTTC, "ttc", ttcPts, seriesBlue, false); err != nil {
		return nil, err
	}
	if err := addLine(pTTC, "critical", thresholdLine(ticks, ttcCritical), dangerRed, true); err != nil {
		return nil, err
	}

	pSpeed := plot.New()
	pSpeed.Title.Text = fmt.Sprintf("Run %s - Actor Speeds", runID)
	pSpeed.X.Label.Text = "t (s)"
	pSpeed.Y.Label.Text = "Speed (m/s)"
	if err := addLine(pSpeed, "ego", egoPts, seriesBlue, false); err != nil {
		return nil, err
	}
	if err := addLine(pSpeed, "cyclist", leadPts, seriesTeal, false); err != nil {
		return nil, err
	}

	var paths []string
	for _, pl := range []struct {
		p    *plot.Plot
		name string
	}{
		{pDist, "distance"},
		{pTTC, "ttc"},
		{pSpeed, "speeds"},
	} {
		path := filepath.Join(dir, fmt.Sprintf("run_%s_%s.png", runID, pl.name))
		if err := pl.p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
			return nil, fmt.Errorf("save %s plot: %w", pl.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
