package output

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/forest-guardian/copernicus-stats/internal/analysis"
	"github.com/forest-guardian/copernicus-stats/internal/raster"
	"github.com/forest-guardian/copernicus-stats/internal/sentinel"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// SaveUnitsGeoJSON writes one feature per spatial unit carrying its summary, if any.
func SaveUnitsGeoJSON(units []sentinel.NamedGeometry, summaries []analysis.UnitSummary, path string) error {
	byUnit := make(map[string]analysis.UnitSummary, len(summaries))
	for _, s := range summaries {
		byUnit[s.Unit] = s
	}

	fc := geojson.NewFeatureCollection()
	for _, unit := range units {
		geometry := unit.Bounds.Geometry
		if geometry == nil {
			geometry = unit.Bounds.Extent().ToPolygon()
		}
		feature := geojson.NewFeature(geometry)
		feature.Properties["name"] = unit.Name
		if s, ok := byUnit[unit.Name]; ok {
			feature.Properties["count"] = s.Count
			feature.Properties["mean"] = jsonFloat(s.Mean)
			feature.Properties["std_dev"] = jsonFloat(s.StdDev)
			feature.Properties["min"] = jsonFloat(s.Min)
			feature.Properties["max"] = jsonFloat(s.Max)
		}
		if lat, lon, err := sentinel.Centroid(geometry); err == nil {
			feature.Properties["centroid"] = []float64{lon, lat}
		}
		fc.Append(feature)
	}
	return writeGeoJSON(fc, path)
}

// SaveMaskGeoJSON writes a point at the centre of every pixel equal to one.
func SaveMaskGeoJSON(mask raster.Grid, label, path string) error {
	fc := geojson.NewFeatureCollection()
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			if mask.At(x, y) != 1 {
				continue
			}
			lon, lat := mask.Coords(x, y)
			feature := geojson.NewFeature(orb.Point{lon, lat})
			feature.Properties["label"] = label
			feature.Properties["x"] = x
			feature.Properties["y"] = y
			fc.Append(feature)
		}
	}
	return writeGeoJSON(fc, path)
}

func writeGeoJSON(fc *geojson.FeatureCollection, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create GeoJSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(fc); err != nil {
		return fmt.Errorf("failed to encode GeoJSON: %w", err)
	}
	return nil
}

func jsonFloat(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
