package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/footfall/internal/pipeline"
)

// RenderHTML writes a page with the count and rate charts of a run.
func RenderHTML(w io.Writer, title string, records []pipeline.WindowRecord) error {
	if len(records) == 0 {
		return ErrNoData
	}
	counts, rate := windowSeries(records)

	page := components.NewPage()
	page.AddCharts(
		lineChart(title, "Tracked camera count per window", "Count", counts),
		lineChart(title, "Bleed-out rate", "Rate", rate),
	)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	return nil
}

func lineChart(pageTitle, title, yName string, lines []series) *charts.Line {
	x := make([]string, len(lines[0].x))
	for i, v := range lines[0].x {
		x[i] = strconv.Itoa(int(v))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: pageTitle, Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Window", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName, NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(x)
	for _, s := range lines {
		data := make([]opts.LineData, len(s.y))
		for i, v := range s.y {
			data[i] = opts.LineData{Value: v}
		}
		line.AddSeries(s.name, data)
	}
	return line
}
