package analysis

import (
	"fmt"
	"math"

	"github.com/forest-guardian/copernicus-stats/internal/raster"
)

const (
	DefaultForestThreshold = 0.6
	DefaultLossThreshold   = 0.3
)

type LossResult struct {
	// Mask is 1 where forest was lost, 0 where it was not and NaN where either date is missing.
	Mask   raster.Grid
	Valid  int
	Forest int
	Lost   int
}

// LostFraction is the share of forest pixels that were lost.
func (r LossResult) LostFraction() float64 {
	if r.Forest == 0 {
		return 0
	}
	return float64(r.Lost) / float64(r.Forest)
}

// ForestLoss marks pixels that were forest before (NDVI >= forestThreshold) and
// whose NDVI dropped by at least lossThreshold.
func ForestLoss(before, after raster.Grid, forestThreshold, lossThreshold float64) (LossResult, error) {
	if !before.SameShape(after) {
		return LossResult{}, fmt.Errorf("image sizes differ: %dx%d and %dx%d", before.Width, before.Height, after.Width, after.Height)
	}
	result := LossResult{Mask: raster.NewGrid(before.Width, before.Height, before.GeoTransform)}
	for i := range before.Data {
		b, a := before.Data[i], after.Data[i]
		if math.IsNaN(b) || math.IsNaN(a) {
			continue
		}
		result.Valid++
		result.Mask.Data[i] = 0
		if b < forestThreshold {
			continue
		}
		result.Forest++
		if b-a >= lossThreshold {
			result.Lost++
			result.Mask.Data[i] = 1
		}
	}
	return result, nil
}
