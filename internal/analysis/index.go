// Package analysis derives indices, land-cover classes and change maps from rasters
// and summarizes statistics tables.
package analysis

import (
	"fmt"
	"math"

	"github.com/forest-guardian/copernicus-stats/internal/raster"
)

// NormalizedDifference computes (a-b)/(a+b) per pixel. A zero denominator or a
// missing input pixel gives NaN.
func NormalizedDifference(a, b raster.Grid) (raster.Grid, error) {
	if !a.SameShape(b) {
		return raster.Grid{}, fmt.Errorf("band sizes differ: %dx%d and %dx%d", a.Width, a.Height, b.Width, b.Height)
	}
	result := raster.NewGrid(a.Width, a.Height, a.GeoTransform)
	for i := range a.Data {
		denominator := a.Data[i] + b.Data[i]
		if denominator == 0 || math.IsNaN(denominator) {
			continue
		}
		result.Data[i] = (a.Data[i] - b.Data[i]) / denominator
	}
	return result, nil
}

// NDVI is (B08 - B04) / (B08 + B04).
func NDVI(nir, red raster.Grid) (raster.Grid, error) {
	return NormalizedDifference(nir, red)
}

// NDWI is (B03 - B08) / (B03 + B08).
func NDWI(green, nir raster.Grid) (raster.Grid, error) {
	return NormalizedDifference(green, nir)
}

// MaskInvalid sets pixels to NaN where mask is zero or missing.
func MaskInvalid(g, mask raster.Grid) (raster.Grid, error) {
	if !g.SameShape(mask) {
		return raster.Grid{}, fmt.Errorf("mask size %dx%d differs from %dx%d", mask.Width, mask.Height, g.Width, g.Height)
	}
	result := raster.NewGrid(g.Width, g.Height, g.GeoTransform)
	for i, v := range g.Data {
		if m := mask.Data[i]; m != 0 && !math.IsNaN(m) {
			result.Data[i] = v
		}
	}
	return result, nil
}
