package delivery

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/forest-guardian/copernicus-stats/internal/analysis"
	"github.com/forest-guardian/copernicus-stats/internal/output"
	"github.com/forest-guardian/copernicus-stats/internal/properties"
	"github.com/forest-guardian/copernicus-stats/internal/raster"
	"github.com/forest-guardian/copernicus-stats/internal/sentinel"
	"github.com/forest-guardian/copernicus-stats/internal/stats"
	"github.com/forest-guardian/copernicus-stats/internal/utils"
	"github.com/gosimple/slug"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	IndexNDVI = "ndvi"
	IndexNDWI = "ndwi"
)

type IndexRequest struct {
	Unit             sentinel.NamedGeometry
	Range            sentinel.TimeRange
	StepDays         int
	Index            string
	Resolution       float64 // metres per pixel
	MaxCloudCoverage *float64
	Thresholds       analysis.Thresholds
}

type IndexFrame struct {
	Date      time.Time
	Index     raster.Grid
	Classes   analysis.ClassMap
	ImagePath string
}

type IndexSeries struct {
	Frames  []IndexFrame
	Table   *stats.Table
	CSVPath string
	Dir     string
}

// RunIndexSeries renders a vegetation or water index for the unit at every step of
// the range. Steps whose image is fully clouded or empty are skipped.
func RunIndexSeries(ctx context.Context, deps *Deps, req IndexRequest) (*IndexSeries, error) {
	series, err := runIndexSeries(ctx, deps, req)
	if err != nil {
		deps.notifyError(ctx, fmt.Errorf("%s series for %s: %w", req.Index, req.Unit.Name, err))
		return nil, err
	}
	deps.notifySuccess(ctx, "%s series for %s finished with %d images.", req.Index, req.Unit.Name, len(series.Frames))
	return series, nil
}

func runIndexSeries(ctx context.Context, deps *Deps, req IndexRequest) (*IndexSeries, error) {
	if req.Index != IndexNDVI && req.Index != IndexNDWI {
		return nil, fmt.Errorf("unknown index %q: expected %s or %s", req.Index, IndexNDVI, IndexNDWI)
	}
	if req.Thresholds == (analysis.Thresholds{}) {
		req.Thresholds = analysis.DefaultThresholds
	}

	days := req.Range.Days(req.StepDays)
	images, err := deps.images(ctx, imageQuery{
		unit:             req.Unit,
		resolution:       req.Resolution,
		maxCloudCoverage: req.MaxCloudCoverage,
		name:             func(r sentinel.TimeRange) string { return r.From.Format(dateLayout) },
	}, days)
	if err != nil {
		return nil, err
	}

	dir := properties.DataPath("result", "index", slug.Make(req.Unit.Name))
	frames := make(map[time.Time]IndexFrame)
	for i, bands := range images {
		date := days[i].From
		ndvi, ndwi, err := indices(bands)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", date.Format(dateLayout), err)
		}
		index := ndvi
		if req.Index == IndexNDWI {
			index = ndwi
		}
		if index.Valid() == 0 {
			log.WithField("date", date.Format(dateLayout)).Warn("no clear pixels, skipping")
			continue
		}

		classes, err := analysis.Classify(ndvi, ndwi, req.Thresholds)
		if err != nil {
			return nil, err
		}
		base := filepath.Join(dir, date.Format(dateLayout)+"_"+req.Index)
		if err := output.SaveGridPNG(index, -1, 1, base+".png"); err != nil {
			return nil, err
		}
		if err := output.SaveClassPNG(classes, base+"_classes.png"); err != nil {
			return nil, err
		}
		if err := raster.WriteGeoTIFF(base+".tif", index); err != nil {
			return nil, err
		}
		frames[date] = IndexFrame{Date: date, Index: index, Classes: classes, ImagePath: base + ".png"}
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no usable images for %s between %s and %s", req.Unit.Name,
			req.Range.From.Format(dateLayout), req.Range.To.Format(dateLayout))
	}

	series := &IndexSeries{Dir: dir}
	for _, date := range utils.SortedKeys(frames, true) {
		series.Frames = append(series.Frames, frames[date])
	}
	series.Table = frameTable(req.Unit.Name, series.Frames, req.StepDays)
	series.CSVPath = filepath.Join(dir, req.Index+".csv")
	if err := series.Table.SaveCSV(series.CSVPath); err != nil {
		return nil, err
	}
	if err := output.SaveSeriesPNG(series.Table, "mean", filepath.Join(dir, req.Index+"_mean.png")); err != nil {
		return nil, err
	}
	return series, nil
}

// frameTable summarizes each frame as one row: index statistics and class shares.
func frameTable(unit string, frames []IndexFrame, stepDays int) *stats.Table {
	columns := []string{"mean", "stDev", "min", "max", "sampleCount"}
	var classes []analysis.Class
	for _, c := range analysis.Classes() {
		if c != analysis.ClassNoData {
			classes = append(classes, c)
			columns = append(columns, c.String())
		}
	}
	table := &stats.Table{UnitColumn: stats.DefaultUnitColumn, Columns: columns}

	if stepDays < 1 {
		stepDays = 1
	}
	for _, f := range frames {
		valid := make([]float64, 0, len(f.Index.Data))
		for _, v := range f.Index.Data {
			if !math.IsNaN(v) {
				valid = append(valid, v)
			}
		}
		mean, std := stat.MeanStdDev(valid, nil)
		values := []float64{mean, std, floats.Min(valid), floats.Max(valid), float64(len(valid))}
		fractions := f.Classes.Fractions()
		for _, c := range classes {
			values = append(values, fractions[c])
		}
		table.Rows = append(table.Rows, stats.Row{
			Unit:   unit,
			From:   f.Date,
			To:     f.Date.AddDate(0, 0, stepDays),
			Values: values,
		})
	}
	return table
}
