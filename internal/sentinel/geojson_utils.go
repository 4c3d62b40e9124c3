package sentinel

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// CRS84 is the default coordinate reference system of request bounds.
const CRS84 = "http://www.opengis.net/def/crs/OGC/1.3/CRS84"

// Bounds is the area of interest of a request. Exactly one of Geometry or BBox is set.
type Bounds struct {
	Geometry orb.Geometry
	BBox     *orb.Bound
	CRS      string
}

// BBoxBounds returns bounds for a lon/lat bounding box.
func BBoxBounds(b orb.Bound) Bounds {
	return Bounds{BBox: &b, CRS: CRS84}
}

// GeometryBounds returns bounds for an arbitrary lon/lat geometry, such as a country polygon.
func GeometryBounds(g orb.Geometry) Bounds {
	return Bounds{Geometry: g, CRS: CRS84}
}

// PointBuffer returns the square bounding box extending meters around center.
func PointBuffer(center orb.Point, meters float64) Bounds {
	return BBoxBounds(geo.NewBoundAroundPoint(center, meters))
}

// Extent returns the bounding box of the bounds.
func (b Bounds) Extent() orb.Bound {
	if b.BBox != nil {
		return *b.BBox
	}
	if b.Geometry == nil {
		return orb.Bound{}
	}
	return b.Geometry.Bound()
}

func (b Bounds) payload() boundsPayload {
	p := boundsPayload{Properties: crsProperties{CRS: b.CRS}}
	if p.Properties.CRS == "" {
		p.Properties.CRS = CRS84
	}
	if b.BBox != nil {
		p.BBox = []float64{b.BBox.Min.X(), b.BBox.Min.Y(), b.BBox.Max.X(), b.BBox.Max.Y()}
	}
	if b.Geometry != nil {
		p.Geometry = geojson.NewGeometry(b.Geometry)
	}
	return p
}

// Centroid returns the latitude and longitude of the geometry's area centroid.
func Centroid(g orb.Geometry) (float64, float64, error) {
	centroid, area := planar.CentroidArea(g)
	if area <= 0 {
		if p, ok := g.(orb.Point); ok {
			return p.Y(), p.X(), nil
		}
		return 0, 0, errors.New("error getting centroid")
	}
	return centroid.Y(), centroid.X(), nil
}

// LoadFeatureCollection reads a GeoJSON feature collection from disk.
func LoadFeatureCollection(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read geojson %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse geojson %s: %w", path, err)
	}
	return fc, nil
}

// NamedGeometry is one spatial unit: a label and its area of interest.
type NamedGeometry struct {
	Name   string
	Bounds Bounds
}

// UnitsFromFeatures turns every feature carrying nameProperty into a spatial unit.
// When include is not empty only the listed names are kept, in the order of include.
func UnitsFromFeatures(fc *geojson.FeatureCollection, nameProperty string, include []string) ([]NamedGeometry, error) {
	byName := make(map[string]orb.Geometry)
	var order []string
	for _, feature := range fc.Features {
		name := feature.Properties.MustString(nameProperty, "")
		if name == "" || feature.Geometry == nil {
			continue
		}
		if _, dup := byName[name]; !dup {
			order = append(order, name)
		}
		byName[name] = feature.Geometry
	}

	if len(include) > 0 {
		order = include
	}

	units := make([]NamedGeometry, 0, len(order))
	for _, name := range order {
		g, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("geometry not found for %s=%q", nameProperty, name)
		}
		units = append(units, NamedGeometry{Name: name, Bounds: GeometryBounds(g)})
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("no features with property %q found", nameProperty)
	}
	return units, nil
}

// MarshalGeometry renders the bounds' geometry as GeoJSON, mostly for logging and debugging.
func (b Bounds) MarshalGeometry() ([]byte, error) {
	if b.Geometry != nil {
		return json.Marshal(geojson.NewGeometry(b.Geometry))
	}
	return json.Marshal(geojson.NewGeometry(b.Extent().ToPolygon()))
}
