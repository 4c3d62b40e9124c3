// Package output renders tables, rasters and spatial units to PNG, HTML and GeoJSON files.
package output

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/forest-guardian/copernicus-stats/internal/stats"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const dateLayout = "2006-01-02"

// SaveSeriesPNG draws one line per spatial unit for a table column. Missing values are skipped.
func SaveSeriesPNG(table *stats.Table, column, path string) error {
	idx := table.Index(column)
	if idx < 0 {
		return fmt.Errorf("column %q not found", column)
	}

	p := plot.New()
	p.Title.Text = column
	p.X.Label.Text = "Date"
	p.Y.Label.Text = column
	p.X.Tick.Marker = plot.TimeTicks{Format: dateLayout}
	p.Add(plotter.NewGrid())

	for i, unit := range table.Units() {
		pts := make(plotter.XYs, 0)
		for _, row := range table.RowsFor(unit) {
			v := row.Values[idx]
			if math.IsNaN(v) || math.IsInf(v, 0) || row.From.IsZero() {
				continue
			}
			pts = append(pts, plotter.XY{X: float64(row.From.Unix()), Y: v})
		}
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to create line for %s: %w", unit, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(unit, line)
	}
	p.Legend.Top = true

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}

// SaveSeriesHTML writes an interactive line chart with one series per unit.
func SaveSeriesHTML(table *stats.Table, column, path string) error {
	idx := table.Index(column)
	if idx < 0 {
		return fmt.Errorf("column %q not found", column)
	}

	dates := bucketStarts(table)
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: column, Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: column, Subtitle: fmt.Sprintf("units=%d buckets=%d", len(table.Units()), len(dates))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)

	labels := make([]string, len(dates))
	position := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		labels[i] = d.Format(dateLayout)
		position[d] = i
	}
	line.SetXAxis(labels)

	for _, unit := range table.Units() {
		data := make([]opts.LineData, len(dates))
		for i := range data {
			data[i] = opts.LineData{Value: "-"}
		}
		for _, row := range table.RowsFor(unit) {
			if v := row.Values[idx]; !math.IsNaN(v) && !math.IsInf(v, 0) {
				data[position[row.From]] = opts.LineData{Value: v}
			}
		}
		line.AddSeries(unit, data)
	}

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()
	if err := line.Render(file); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

func bucketStarts(table *stats.Table) []time.Time {
	seen := make(map[time.Time]struct{})
	var dates []time.Time
	for _, row := range table.Rows {
		if _, ok := seen[row.From]; !ok {
			seen[row.From] = struct{}{}
			dates = append(dates, row.From)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
