package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forest-guardian/copernicus-stats/internal/analysis"
	"github.com/forest-guardian/copernicus-stats/internal/delivery"
	"github.com/forest-guardian/copernicus-stats/internal/job"
	"github.com/forest-guardian/copernicus-stats/internal/output"
	"github.com/forest-guardian/copernicus-stats/internal/properties"
	"github.com/forest-guardian/copernicus-stats/internal/sentinel"
	"github.com/forest-guardian/copernicus-stats/internal/stats"
)

func (m *Menu) RunJob(ctx context.Context) error {
	if err := m.remote(); err != nil {
		return err
	}
	m.console.PrintWarning("A job is a YAML file naming the units, the time range and the aggregation interval.")
	path, err := m.console.ReadString("Enter the job file path: ")
	if err != nil {
		return err
	}
	j, err := job.Load(path)
	if err != nil {
		return err
	}
	result, err := delivery.RunStatistics(ctx, m.deps, j)
	if err != nil {
		return err
	}

	summaries := analysis.Summarize(result.Table, "mean")
	for _, s := range summaries {
		fmt.Fprintf(m.console.out, "%-24s n=%-4d mean=%.4f sd=%.4f\n", s.Unit, s.Count, s.Mean, s.StdDev)
	}
	m.console.PrintSuccess(fmt.Sprintf("Run %s saved %d rows at %s", result.Run.ID, len(result.Table.Rows), result.CSVPath))
	return nil
}

func (m *Menu) AnalyzeIndices(ctx context.Context) error {
	if err := m.remote(); err != nil {
		return err
	}
	unit, err := m.console.ReadUnit()
	if err != nil {
		return err
	}
	timeRange, err := m.console.ReadDateRange()
	if err != nil {
		return err
	}
	step, err := m.console.ReadInt("Enter the step in days: ", 1, 365)
	if err != nil {
		return err
	}
	index, err := m.console.ReadString("Enter the index (ndvi | ndwi): ")
	if err != nil {
		return err
	}

	series, err := delivery.RunIndexSeries(ctx, m.deps, delivery.IndexRequest{
		Unit:       unit,
		Range:      timeRange,
		StepDays:   step,
		Index:      strings.ToLower(index),
		Resolution: 10,
	})
	if err != nil {
		return err
	}
	m.console.PrintSuccess(fmt.Sprintf("Rendered %d images at %s", len(series.Frames), series.Dir))
	return nil
}

func (m *Menu) AnalyzeForestLoss(ctx context.Context) error {
	if err := m.remote(); err != nil {
		return err
	}
	unit, err := m.console.ReadUnit()
	if err != nil {
		return err
	}
	m.console.PrintInfo("Before period\n")
	before, err := m.console.ReadDateRange()
	if err != nil {
		return err
	}
	m.console.PrintInfo("After period\n")
	after, err := m.console.ReadDateRange()
	if err != nil {
		return err
	}
	reference, err := m.console.ReadString("Enter a reference loss GeoTIFF (optional): ")
	if err != nil {
		return err
	}

	result, err := delivery.RunForestLoss(ctx, m.deps, delivery.ForestLossRequest{
		Unit:          unit,
		Before:        before,
		After:         after,
		Resolution:    10,
		ReferencePath: reference,
	})
	if err != nil {
		return err
	}
	message := fmt.Sprintf("%d of %d forest pixels lost (%.1f%%). Results at %s",
		result.Loss.Lost, result.Loss.Forest, 100*result.Loss.LostFraction(), result.Dir)
	if result.Confusion != nil {
		message += fmt.Sprintf("\nAccuracy %.3f, precision %.3f, recall %.3f",
			result.Confusion.Accuracy(), result.Confusion.Precision(), result.Confusion.Recall())
	}
	m.console.PrintSuccess(message)
	return nil
}

func (m *Menu) PlotTable(context.Context) error {
	path, err := m.console.ReadString("Enter the statistics CSV path: ")
	if err != nil {
		return err
	}
	table, err := stats.LoadCSV(path)
	if err != nil {
		return err
	}
	m.console.PrintInfo(fmt.Sprintf("Columns: %s\n", strings.Join(table.Columns, ", ")))
	column, err := m.console.ReadString("Enter the column to plot: ")
	if err != nil {
		return err
	}

	base := strings.TrimSuffix(path, filepath.Ext(path)) + "_" + column
	if err := output.SaveSeriesPNG(table, column, base+".png"); err != nil {
		return err
	}
	if err := output.SaveSeriesHTML(table, column, base+".html"); err != nil {
		return err
	}
	m.console.PrintSuccess(fmt.Sprintf("Plots saved at %s.png and %s.html", base, base))
	return nil
}

func (m *Menu) ListEvalscripts(context.Context) error {
	success.Fprintln(m.console.out, "\nBuilt-in evalscripts:")
	for _, name := range sentinel.Evalscripts() {
		success.Fprintf(m.console.out, "- %s\n", name)
	}
	return nil
}

func (m *Menu) ListResults(context.Context) error {
	dir := properties.DataPath("result", "statistics")
	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("error reading results folder: %w", err)
	}
	success.Fprintf(m.console.out, "\nSaved tables in %s:\n", dir)
	for _, file := range files {
		if strings.HasSuffix(file.Name(), ".csv") {
			success.Fprintf(m.console.out, "- %s\n", file.Name())
		}
	}
	return nil
}
