// Package raster holds single-band grids decoded from GeoTIFF responses.
package raster

import (
	"errors"
	"fmt"
	"math"
)

// Grid is one raster band in row-major order. Missing pixels are NaN.
type Grid struct {
	Width        int
	Height       int
	Data         []float64
	GeoTransform [6]float64
}

func NewGrid(width, height int, geoTransform [6]float64) Grid {
	data := make([]float64, width*height)
	for i := range data {
		data[i] = math.NaN()
	}
	return Grid{Width: width, Height: height, Data: data, GeoTransform: geoTransform}
}

// NewGridFromRows builds a grid from rows of equal length.
func NewGridFromRows(rows [][]float64, geoTransform [6]float64) (Grid, error) {
	if len(rows) == 0 {
		return Grid{}, errors.New("grid has no rows")
	}
	width := len(rows[0])
	g := Grid{Width: width, Height: len(rows), Data: make([]float64, 0, width*len(rows)), GeoTransform: geoTransform}
	for y, row := range rows {
		if len(row) != width {
			return Grid{}, fmt.Errorf("row %d has %d values, expected %d", y, len(row), width)
		}
		g.Data = append(g.Data, row...)
	}
	return g, nil
}

func (g Grid) At(x, y int) float64 {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return math.NaN()
	}
	return g.Data[y*g.Width+x]
}

func (g Grid) Set(x, y int, v float64) {
	g.Data[y*g.Width+x] = v
}

func (g Grid) SameShape(other Grid) bool {
	return g.Width == other.Width && g.Height == other.Height
}

// Coords returns the longitude and latitude of the pixel centre.
func (g Grid) Coords(x, y int) (float64, float64) {
	gt := g.GeoTransform
	lon := gt[0] + gt[1]*(float64(x)+0.5) + gt[2]*(float64(y)+0.5)
	lat := gt[3] + gt[4]*(float64(x)+0.5) + gt[5]*(float64(y)+0.5)
	return lon, lat
}

// Pixel returns the column and row containing lon/lat for north-up grids.
func (g Grid) Pixel(lon, lat float64) (int, int, error) {
	gt := g.GeoTransform
	if gt[1] == 0 || gt[5] == 0 {
		return 0, 0, errors.New("grid has no geotransform")
	}
	col := int(math.Floor((lon - gt[0]) / gt[1]))
	row := int(math.Floor((lat - gt[3]) / gt[5]))
	if col < 0 || col >= g.Width || row < 0 || row >= g.Height {
		return 0, 0, fmt.Errorf("latitude %f and longitude %f are out of bounds for the grid", lat, lon)
	}
	return col, row, nil
}

// Valid counts the pixels that are not NaN.
func (g Grid) Valid() int {
	n := 0
	for _, v := range g.Data {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Range returns the min and max of the valid pixels, NaN when there are none.
func (g Grid) Range() (float64, float64) {
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range g.Data {
		if math.IsNaN(v) {
			continue
		}
		min = math.Min(min, v)
		max = math.Max(max, v)
	}
	if math.IsInf(min, 1) {
		return math.NaN(), math.NaN()
	}
	return min, max
}
