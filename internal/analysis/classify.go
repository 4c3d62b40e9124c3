package analysis

import (
	"fmt"
	"math"

	"github.com/forest-guardian/copernicus-stats/internal/raster"
)

type Class uint8

const (
	ClassNoData Class = iota
	ClassWater
	ClassDenseVegetation
	ClassSparseVegetation
	ClassBare
)

var classLabels = map[Class]string{
	ClassNoData:           "no data",
	ClassWater:            "water",
	ClassDenseVegetation:  "dense vegetation",
	ClassSparseVegetation: "sparse vegetation",
	ClassBare:             "bare",
}

func (c Class) String() string {
	if label, ok := classLabels[c]; ok {
		return label
	}
	return fmt.Sprintf("class %d", c)
}

// Classes lists every class in display order.
func Classes() []Class {
	return []Class{ClassWater, ClassDenseVegetation, ClassSparseVegetation, ClassBare, ClassNoData}
}

type Thresholds struct {
	Water            float64 // NDWI above this is water
	DenseVegetation  float64 // NDVI above this is dense vegetation
	SparseVegetation float64
}

var DefaultThresholds = Thresholds{
	Water:            0.2,
	DenseVegetation:  0.6,
	SparseVegetation: 0.2,
}

type ClassMap struct {
	Width        int
	Height       int
	Classes      []Class
	GeoTransform [6]float64
}

func (m ClassMap) At(x, y int) Class {
	return m.Classes[y*m.Width+x]
}

// Counts returns the number of pixels per class.
func (m ClassMap) Counts() map[Class]int {
	counts := make(map[Class]int)
	for _, c := range m.Classes {
		counts[c]++
	}
	return counts
}

// Fractions returns the share of valid pixels per class, ignoring no data.
func (m ClassMap) Fractions() map[Class]float64 {
	counts := m.Counts()
	valid := len(m.Classes) - counts[ClassNoData]
	fractions := make(map[Class]float64)
	if valid == 0 {
		return fractions
	}
	for c, n := range counts {
		if c == ClassNoData {
			continue
		}
		fractions[c] = float64(n) / float64(valid)
	}
	return fractions
}

// Classify thresholds NDVI and NDWI into land-cover classes. Water wins over vegetation.
func Classify(ndvi, ndwi raster.Grid, th Thresholds) (ClassMap, error) {
	if !ndvi.SameShape(ndwi) {
		return ClassMap{}, fmt.Errorf("index sizes differ: %dx%d and %dx%d", ndvi.Width, ndvi.Height, ndwi.Width, ndwi.Height)
	}
	m := ClassMap{
		Width:        ndvi.Width,
		Height:       ndvi.Height,
		Classes:      make([]Class, len(ndvi.Data)),
		GeoTransform: ndvi.GeoTransform,
	}
	for i := range ndvi.Data {
		m.Classes[i] = classify(ndvi.Data[i], ndwi.Data[i], th)
	}
	return m, nil
}

func classify(ndvi, ndwi float64, th Thresholds) Class {
	switch {
	case math.IsNaN(ndvi) || math.IsNaN(ndwi):
		return ClassNoData
	case ndwi > th.Water:
		return ClassWater
	case ndvi > th.DenseVegetation:
		return ClassDenseVegetation
	case ndvi > th.SparseVegetation:
		return ClassSparseVegetation
	default:
		return ClassBare
	}
}
