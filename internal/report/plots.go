// Package report renders run diagnostics: PNG line plots with gonum/plot and
// an interactive HTML page with go-echarts.
package report

import (
	"errors"
	"fmt"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/footfall/internal/pipeline"
)

// File names written by WritePlots and WriteTruthPlot.
const (
	CountsPlotFile = "assimilation_counts.png"
	RatePlotFile   = "bleedout_rate.png"
	TruthPlotFile  = "truth_counts.png"
)

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("no data to plot")

// series is one named line, y indexed by x.
type series struct {
	name string
	x, y []float64
}

// windowSeries extracts the standard diagnostic series from window records.
func windowSeries(records []pipeline.WindowRecord) (counts, rate []series) {
	n := len(records)
	x := make([]float64, n)
	truth := make([]float64, n)
	forecast := make([]float64, n)
	analysis := make([]float64, n)
	virtual := make([]float64, n)
	param := make([]float64, n)
	trueParam := make([]float64, n)
	for i, r := range records {
		x[i] = float64(r.Window)
		truth[i] = r.TrueObservation
		forecast[i] = r.ForecastMean
		analysis[i] = r.AnalysisMean
		virtual[i] = r.VirtualObservation
		param[i] = r.Parameter
		trueParam[i] = r.TrueParameter
	}
	counts = []series{
		{"truth", x, truth},
		{"forecast", x, forecast},
		{"analysis", x, analysis},
		{"observation", x, virtual},
	}
	rate = []series{
		{"estimate", x, param},
		{"true", x, trueParam},
	}
	return counts, rate
}

// WritePlots saves the count and rate plots of a run into dir and returns
// their paths.
func WritePlots(dir string, records []pipeline.WindowRecord) ([]string, error) {
	if len(records) == 0 {
		return nil, ErrNoData
	}
	counts, rate := windowSeries(records)

	countsFile := filepath.Join(dir, CountsPlotFile)
	if err := savePlot(countsFile, "Tracked camera count per window", "Window", "Count", counts); err != nil {
		return nil, fmt.Errorf("save counts plot: %w", err)
	}
	rateFile := filepath.Join(dir, RatePlotFile)
	if err := savePlot(rateFile, "Bleed-out rate", "Window", "Rate", rate); err != nil {
		return nil, fmt.Errorf("save rate plot: %w", err)
	}
	return []string{countsFile, rateFile}, nil
}

// WriteTruthPlot saves the hourly camera counts of a truth-only run.
func WriteTruthPlot(dir string, ts pipeline.TruthSeries) (string, error) {
	if len(ts.Counts) == 0 {
		return "", ErrNoData
	}
	lines := make([]series, len(ts.Counts))
	for i, counts := range ts.Counts {
		s := series{name: ts.Cameras[i], x: make([]float64, len(counts)), y: make([]float64, len(counts))}
		for h, n := range counts {
			s.x[h] = float64(h)
			s.y[h] = float64(n)
		}
		lines[i] = s
	}
	path := filepath.Join(dir, TruthPlotFile)
	title := fmt.Sprintf("Ground truth, bleed-out rate %.3f", ts.Rate)
	if err := savePlot(path, title, "Hour", "Count", lines); err != nil {
		return "", fmt.Errorf("save truth plot: %w", err)
	}
	return path, nil
}

func savePlot(path, title, xLabel, yLabel string, lines []series) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	for i, s := range lines {
		pts := make(plotter.XYs, len(s.x))
		for j := range s.x {
			pts[j] = plotter.XY{X: s.x[j], Y: s.y[j]}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p.Save(14*vg.Inch, 6*vg.Inch, path)
}
