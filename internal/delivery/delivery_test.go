package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/forest-guardian/copernicus-stats/internal/analysis"
	"github.com/forest-guardian/copernicus-stats/internal/cache"
	"github.com/forest-guardian/copernicus-stats/internal/job"
	"github.com/forest-guardian/copernicus-stats/internal/notification"
	"github.com/forest-guardian/copernicus-stats/internal/properties"
	"github.com/forest-guardian/copernicus-stats/internal/raster"
	"github.com/forest-guardian/copernicus-stats/internal/sentinel"
	"github.com/forest-guardian/copernicus-stats/internal/store"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSentinel struct {
	mu           sync.Mutex
	statsCalls   int
	processCalls int
	statistics   func(req sentinel.StatisticalRequest) (*sentinel.StatisticsResponse, error)
	process      func(req sentinel.ProcessRequest) ([]byte, error)
}

func (f *fakeSentinel) Statistics(_ context.Context, req sentinel.StatisticalRequest) (*sentinel.StatisticsResponse, error) {
	f.mu.Lock()
	f.statsCalls++
	f.mu.Unlock()
	return f.statistics(req)
}

func (f *fakeSentinel) Process(_ context.Context, req sentinel.ProcessRequest) ([]byte, error) {
	f.mu.Lock()
	f.processCalls++
	f.mu.Unlock()
	return f.process(req)
}

func (f *fakeSentinel) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statsCalls, f.processCalls
}

const jobYAML = `
name: capitals
from: 2021-01-01
to: 2021-03-01
aggregation: P1M
units:
  - name: Ljubljana
    point: [14.5058, 46.0569]
  - name: Zagreb
    bbox: [15.9, 45.7, 16.1, 45.9]
`

func statsResponse(t *testing.T, mean string, failSecond bool) *sentinel.StatisticsResponse {
	t.Helper()
	second := `{"interval":{"from":"2021-02-01T00:00:00Z","to":"2021-03-01T00:00:00Z"},
		"outputs":{"data":{"bands":{"B0":{"stats":{"min":0.1,"max":0.9,"mean":0.5,"stDev":0.25,"sampleCount":100,"noDataCount":0}}}}}}`
	if failSecond {
		second = `{"interval":{"from":"2021-02-01T00:00:00Z","to":"2021-03-01T00:00:00Z"},
			"error":{"type":"EXECUTION_ERROR"}}`
	}
	body := fmt.Sprintf(`{"data":[
		{"interval":{"from":"2021-01-01T00:00:00Z","to":"2021-02-01T00:00:00Z"},
		 "outputs":{"data":{"bands":{"B0":{"stats":{"min":0.1,"max":0.9,"mean":%s,"stDev":0.25,"sampleCount":100,"noDataCount":0}}}}}},
		%s], "status":"OK"}`, mean, second)
	resp, err := sentinel.DecodeStatistics([]byte(body))
	require.NoError(t, err)
	return resp
}

type recordedMessages struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordedMessages) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return ""
	}
	return r.messages[len(r.messages)-1]
}

func newTestDeps(t *testing.T, client Sentinel) (*Deps, *recordedMessages) {
	t.Helper()
	t.Setenv("ROOT_PATH", t.TempDir())

	recorded := &recordedMessages{}
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg notification.DiscordMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err == nil && len(msg.Embeds) > 0 {
			recorded.mu.Lock()
			recorded.messages = append(recorded.messages, msg.Embeds[0].Title+": "+msg.Embeds[0].Description)
			recorded.mu.Unlock()
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(webhook.Close)

	deps := &Deps{
		Config:   properties.Config{Workers: 2},
		Client:   client,
		Notifier: &notification.Discord{SuccessURL: webhook.URL, ErrorURL: webhook.URL},
		Quiet:    true,
	}
	return deps, recorded
}

func TestRunStatistics(t *testing.T) {
	client := &fakeSentinel{statistics: func(req sentinel.StatisticalRequest) (*sentinel.StatisticsResponse, error) {
		if req.Bounds.Extent().Min[0] > 15 {
			return statsResponse(t, "0.3", true), nil
		}
		return statsResponse(t, "0.4", false), nil
	}}
	deps, recorded := newTestDeps(t, client)
	deps.WithCache(cache.NewFileCache[*sentinel.StatisticsResponse](properties.DataPath("cache", "statistics")))

	db, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	defer db.Close()
	deps.Sink = db

	j, err := job.Parse([]byte(jobYAML))
	require.NoError(t, err)

	result, err := RunStatistics(context.Background(), deps, j)
	require.NoError(t, err)

	table := result.Table
	assert.Equal(t, []string{"Ljubljana", "Zagreb"}, table.Units())
	require.Len(t, table.Rows, 4)
	mean := table.Column("mean")
	assert.InDelta(t, 0.4, mean[0], 1e-12)
	assert.InDelta(t, 0.3, mean[2], 1e-12)
	assert.True(t, math.IsNaN(mean[3]), "failed interval keeps a NaN row")
	assert.FileExists(t, result.CSVPath)
	assert.Contains(t, recorded.last(), "capitals")

	runs, err := db.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, result.Run.ID, runs[0].ID)

	again, err := RunStatistics(context.Background(), deps, j)
	require.NoError(t, err)
	statsCalls, _ := client.calls()
	assert.Equal(t, 2, statsCalls, "second run is served from the cache")
	if diff := cmp.Diff(table, again.Table, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("cached run differs (-first +second):\n%s", diff)
	}
}

func TestRunStatistics_FailureIsReported(t *testing.T) {
	remote := &sentinel.RemoteError{StatusCode: http.StatusBadRequest, Body: "invalid geometry"}
	client := &fakeSentinel{statistics: func(req sentinel.StatisticalRequest) (*sentinel.StatisticsResponse, error) {
		if req.Bounds.Extent().Min[0] > 15 {
			return nil, remote
		}
		return statsResponse(t, "0.4", false), nil
	}}
	deps, recorded := newTestDeps(t, client)

	j, err := job.Parse([]byte(jobYAML))
	require.NoError(t, err)

	_, err = RunStatistics(context.Background(), deps, j)
	require.Error(t, err)
	var remoteErr *sentinel.RemoteError
	assert.True(t, errors.As(err, &remoteErr))
	assert.NoFileExists(t, j.OutputPath(properties.DataPath("result", "statistics")))
	assert.Contains(t, recorded.last(), "invalid geometry")
}

var imageTransform = [6]float64{14.5, 0.001, 0, 46.06, 0, -0.001}

// tiffBytes encodes the five bands of the "bands" evalscript as a GeoTIFF.
func tiffBytes(t *testing.T, green, red, nir, scl []float64) []byte {
	t.Helper()
	var grids []raster.Grid
	for _, values := range [][]float64{green, red, nir, scl, {1, 1, 1, 1}} {
		g, err := raster.NewGridFromRows([][]float64{values[:2], values[2:]}, imageTransform)
		require.NoError(t, err)
		grids = append(grids, g)
	}
	path := filepath.Join(t.TempDir(), "image.tif")
	require.NoError(t, raster.WriteGeoTIFF(path, grids...))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return content
}

var unit = sentinel.NamedGeometry{Name: "Tivoli Park", Bounds: sentinel.PointBuffer(orb.Point{14.5, 46.06}, 100)}

func TestRunIndexSeries(t *testing.T) {
	image := tiffBytes(t,
		[]float64{0.1, 0.1, 0.1, 0.1},
		[]float64{0.1, 0.1, 0.1, 0.1},
		[]float64{0.5, 0.5, 0.5, 0.5},
		[]float64{4, 4, 4, 9},
	)
	client := &fakeSentinel{process: func(req sentinel.ProcessRequest) ([]byte, error) {
		return image, nil
	}}
	deps, _ := newTestDeps(t, client)

	req := IndexRequest{
		Unit:       unit,
		Range:      sentinel.TimeRange{From: time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2021, 6, 3, 0, 0, 0, 0, time.UTC)},
		StepDays:   1,
		Index:      IndexNDVI,
		Resolution: 10,
	}
	series, err := RunIndexSeries(context.Background(), deps, req)
	require.NoError(t, err)
	require.Len(t, series.Frames, 3)
	assert.True(t, series.Frames[0].Date.Before(series.Frames[2].Date))
	assert.Equal(t, 3, series.Frames[0].Index.Valid(), "cloudy pixel is masked")
	assert.InDelta(t, 0.4/0.6, series.Frames[0].Index.At(0, 0), 1e-6)
	assert.FileExists(t, series.Frames[0].ImagePath)
	assert.FileExists(t, series.CSVPath)
	assert.FileExists(t, filepath.Join(series.Dir, "ndvi_mean.png"))
	assert.Equal(t, "tivoli-park", filepath.Base(series.Dir))

	require.Len(t, series.Table.Rows, 3)
	assert.Equal(t, []float64{1, 1, 1}, series.Table.Column("dense vegetation"))
	assert.Equal(t, []float64{3, 3, 3}, series.Table.Column("sampleCount"))

	_, err = RunIndexSeries(context.Background(), deps, req)
	require.NoError(t, err)
	_, processCalls := client.calls()
	assert.Equal(t, 3, processCalls, "saved images are reused")

	req.Resolution = 60
	_, err = RunIndexSeries(context.Background(), deps, req)
	require.NoError(t, err)
	_, processCalls = client.calls()
	assert.Equal(t, 6, processCalls, "a new resolution requests new images")
	req.Resolution = 10

	req.Index = "evi"
	_, err = RunIndexSeries(context.Background(), deps, req)
	assert.ErrorContains(t, err, "unknown index")
}

func TestRunForestLoss(t *testing.T) {
	before := tiffBytes(t,
		[]float64{0.05, 0.05, 0.05, 0.05},
		[]float64{0.05, 0.05, 0.05, 0.05},
		[]float64{0.5, 0.5, 0.5, 0.5},
		[]float64{4, 4, 4, 4},
	)
	after := tiffBytes(t,
		[]float64{0.05, 0.05, 0.05, 0.05},
		[]float64{0.2, 0.05, 0.05, 0.2},
		[]float64{0.25, 0.5, 0.5, 0.25},
		[]float64{4, 4, 4, 4},
	)
	beforeRange := sentinel.TimeRange{From: time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2020, 8, 31, 0, 0, 0, 0, time.UTC)}
	afterRange := sentinel.TimeRange{From: time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2021, 8, 31, 0, 0, 0, 0, time.UTC)}

	client := &fakeSentinel{process: func(req sentinel.ProcessRequest) ([]byte, error) {
		assert.Equal(t, "leastCC", req.Mosaicking)
		if req.TimeRange.From.Equal(beforeRange.From) {
			return before, nil
		}
		return after, nil
	}}
	deps, recorded := newTestDeps(t, client)

	reference, err := raster.NewGridFromRows([][]float64{{1, 0}, {0, 0}}, imageTransform)
	require.NoError(t, err)
	referencePath := filepath.Join(t.TempDir(), "reference.tif")
	require.NoError(t, raster.WriteGeoTIFF(referencePath, reference))

	result, err := RunForestLoss(context.Background(), deps, ForestLossRequest{
		Unit:          unit,
		Before:        beforeRange,
		After:         afterRange,
		Resolution:    10,
		ReferencePath: referencePath,
	})
	require.NoError(t, err)

	assert.Equal(t, 4, result.Loss.Forest)
	assert.Equal(t, 2, result.Loss.Lost)
	assert.Equal(t, []float64{1, 0, 0, 1}, result.Loss.Mask.Data)
	require.NotNil(t, result.Confusion)
	assert.Equal(t, analysis.Confusion{TruePositive: 1, FalsePositive: 1, TrueNegative: 2}, *result.Confusion)
	assert.FileExists(t, filepath.Join(result.Dir, "loss.png"))
	assert.FileExists(t, filepath.Join(result.Dir, "loss.geojson"))
	assert.FileExists(t, filepath.Join(result.Dir, "loss.tif"))
	assert.Contains(t, recorded.last(), "2 of 4 forest pixels lost")
}
