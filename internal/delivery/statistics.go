package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/forest-guardian/copernicus-stats/internal/cache"
	"github.com/forest-guardian/copernicus-stats/internal/fetch"
	"github.com/forest-guardian/copernicus-stats/internal/job"
	"github.com/forest-guardian/copernicus-stats/internal/properties"
	"github.com/forest-guardian/copernicus-stats/internal/sentinel"
	"github.com/forest-guardian/copernicus-stats/internal/stats"
	"github.com/forest-guardian/copernicus-stats/internal/store"
	log "github.com/sirupsen/logrus"
)

// StatisticsResult is the outcome of a statistics job.
type StatisticsResult struct {
	Run     store.Run
	Table   *stats.Table
	CSVPath string
}

// RunStatistics requests zonal statistics for every spatial unit of j, normalizes the
// answers into one table and saves it as CSV and, when a sink is set, in the store.
func RunStatistics(ctx context.Context, deps *Deps, j *job.Job) (*StatisticsResult, error) {
	result, err := runStatistics(ctx, deps, j)
	if err != nil {
		deps.notifyError(ctx, fmt.Errorf("job %s: %w", j.Name, err))
		return nil, err
	}
	deps.notifySuccess(ctx, "Job %s finished: %d units, %d rows.\nRun: %s",
		j.Name, len(result.Table.Units()), len(result.Table.Rows), result.Run.ID)
	return result, nil
}

func runStatistics(ctx context.Context, deps *Deps, j *job.Job) (*StatisticsResult, error) {
	start := time.Now()
	units, reqs, err := j.Requests()
	if err != nil {
		return nil, err
	}
	logger := log.WithFields(log.Fields{"job": j.Name, "units": len(units), "aggregation": j.Aggregation})
	logger.Info("requesting statistics")

	responses, err := FetchStatistics(ctx, deps, reqs)
	if err != nil {
		return nil, err
	}

	table, err := stats.Normalize(units, responses)
	if err != nil {
		return nil, err
	}
	table.UnitColumn = j.UnitColumn

	run := store.NewRun(j.Name)
	csvPath := j.OutputPath(properties.DataPath("result", "statistics"))
	if err := table.SaveCSV(csvPath); err != nil {
		return nil, err
	}
	if deps.Sink != nil {
		if err := deps.Sink.SaveTable(ctx, run, table); err != nil {
			return nil, fmt.Errorf("failed to store run: %w", err)
		}
	}

	logger.WithFields(log.Fields{
		"run":     run.ID,
		"rows":    len(table.Rows),
		"columns": len(table.Columns),
		"path":    csvPath,
		"took":    time.Since(start).Round(time.Millisecond),
	}).Info("statistics saved")
	return &StatisticsResult{Run: run, Table: table, CSVPath: csvPath}, nil
}

// FetchStatistics issues reqs in parallel through the statistics cache. The i-th
// response answers the i-th request.
func FetchStatistics(ctx context.Context, deps *Deps, reqs []sentinel.StatisticalRequest) ([]*sentinel.StatisticsResponse, error) {
	statistics := deps.statisticsCache()
	opts := fetch.Options{Workers: deps.Config.Workers, Description: "Fetching statistics", Quiet: deps.Quiet}
	return fetch.All(ctx, reqs, opts, func(ctx context.Context, req sentinel.StatisticalRequest) (*sentinel.StatisticsResponse, error) {
		return statistics.GetOrLoad(cache.Key(req.Payload()), func() (*sentinel.StatisticsResponse, error) {
			return deps.Client.Statistics(ctx, req)
		})
	})
}
