package delivery

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/forest-guardian/copernicus-stats/internal/analysis"
	"github.com/forest-guardian/copernicus-stats/internal/output"
	"github.com/forest-guardian/copernicus-stats/internal/properties"
	"github.com/forest-guardian/copernicus-stats/internal/raster"
	"github.com/forest-guardian/copernicus-stats/internal/sentinel"
	"github.com/gosimple/slug"
	log "github.com/sirupsen/logrus"
)

type ForestLossRequest struct {
	Unit            sentinel.NamedGeometry
	Before          sentinel.TimeRange
	After           sentinel.TimeRange
	Resolution      float64 // metres per pixel
	ForestThreshold float64
	LossThreshold   float64
	// ReferencePath is an optional single-band GeoTIFF with 1 where loss was observed.
	ReferencePath string
}

type ForestLossResult struct {
	Loss      analysis.LossResult
	Before    raster.Grid
	After     raster.Grid
	Confusion *analysis.Confusion
	Dir       string
}

// RunForestLoss compares least-cloudy NDVI composites of two periods and marks
// forest pixels whose NDVI dropped. With a reference mask it also scores the result.
func RunForestLoss(ctx context.Context, deps *Deps, req ForestLossRequest) (*ForestLossResult, error) {
	result, err := runForestLoss(ctx, deps, req)
	if err != nil {
		deps.notifyError(ctx, fmt.Errorf("forest loss for %s: %w", req.Unit.Name, err))
		return nil, err
	}
	message := fmt.Sprintf("Forest loss for %s: %d of %d forest pixels lost (%.1f%%).",
		req.Unit.Name, result.Loss.Lost, result.Loss.Forest, 100*result.Loss.LostFraction())
	if result.Confusion != nil {
		message += fmt.Sprintf("\nAccuracy against reference: %.3f", result.Confusion.Accuracy())
	}
	deps.notifySuccess(ctx, "%s", message)
	return result, nil
}

func runForestLoss(ctx context.Context, deps *Deps, req ForestLossRequest) (*ForestLossResult, error) {
	if req.ForestThreshold == 0 {
		req.ForestThreshold = analysis.DefaultForestThreshold
	}
	if req.LossThreshold == 0 {
		req.LossThreshold = analysis.DefaultLossThreshold
	}

	images, err := deps.images(ctx, imageQuery{
		unit:       req.Unit,
		resolution: req.Resolution,
		mosaicking: "leastCC",
		name: func(r sentinel.TimeRange) string {
			return "composite_" + r.From.Format(dateLayout) + "_" + r.To.Format(dateLayout)
		},
	}, []sentinel.TimeRange{req.Before, req.After})
	if err != nil {
		return nil, err
	}

	before, _, err := indices(images[0])
	if err != nil {
		return nil, fmt.Errorf("before: %w", err)
	}
	after, _, err := indices(images[1])
	if err != nil {
		return nil, fmt.Errorf("after: %w", err)
	}

	loss, err := analysis.ForestLoss(before, after, req.ForestThreshold, req.LossThreshold)
	if err != nil {
		return nil, err
	}
	result := &ForestLossResult{
		Loss:   loss,
		Before: before,
		After:  after,
		Dir: properties.DataPath("result", "forest-loss", slug.Make(req.Unit.Name),
			req.Before.From.Format(dateLayout)+"_"+req.After.To.Format(dateLayout)),
	}

	if err := output.SaveLossPNG(after, loss.Mask, filepath.Join(result.Dir, "loss.png")); err != nil {
		return nil, err
	}
	if err := output.SaveMaskGeoJSON(loss.Mask, "forest loss", filepath.Join(result.Dir, "loss.geojson")); err != nil {
		return nil, err
	}
	if err := raster.WriteGeoTIFF(filepath.Join(result.Dir, "loss.tif"), loss.Mask, before, after); err != nil {
		return nil, err
	}

	if req.ReferencePath != "" {
		bands, err := raster.ReadBands(req.ReferencePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read reference: %w", err)
		}
		if len(bands) == 0 {
			return nil, fmt.Errorf("reference %s has no bands", req.ReferencePath)
		}
		confusion, err := analysis.Accuracy(loss.Mask, analysis.ResampleNearest(bands[0], loss.Mask))
		if err != nil {
			return nil, err
		}
		result.Confusion = &confusion
	}

	log.WithFields(log.Fields{
		"unit":   req.Unit.Name,
		"valid":  loss.Valid,
		"forest": loss.Forest,
		"lost":   loss.Lost,
		"dir":    result.Dir,
	}).Info("forest loss computed")
	return result, nil
}
