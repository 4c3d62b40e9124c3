// Package job reads statistics job definitions from YAML.
package job

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forest-guardian/copernicus-stats/internal/sentinel"
	"github.com/forest-guardian/copernicus-stats/internal/stats"
	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"
)

const (
	defaultAggregation  = "P1M"
	defaultResolution   = 0.001
	defaultBufferMeters = 1000.0
	defaultEvalscript   = "ndvi-stats"
	dateLayout          = "2006-01-02"
)

type Job struct {
	Name             string         `yaml:"name"`
	Collection       string         `yaml:"collection"`
	Evalscript       string         `yaml:"evalscript"`
	From             string         `yaml:"from"`
	To               string         `yaml:"to"`
	Aggregation      string         `yaml:"aggregation"`
	Resolution       float64        `yaml:"resolution"` // degrees per pixel
	MaxCloudCoverage *float64       `yaml:"max_cloud_coverage"`
	Percentiles      []float64      `yaml:"percentiles"`
	UnitColumn       string         `yaml:"unit_column"`
	Units            []Unit         `yaml:"units"`
	Countries        *CountrySource `yaml:"countries"`
	Output           string         `yaml:"output"`

	dir string
}

// Unit is one spatial unit given inline, either as a point with a buffer or as a bbox.
type Unit struct {
	Name         string    `yaml:"name"`
	Point        []float64 `yaml:"point"` // lon, lat
	BufferMeters float64   `yaml:"buffer_meters"`
	BBox         []float64 `yaml:"bbox"` // min lon, min lat, max lon, max lat
}

// CountrySource takes spatial units from the features of a GeoJSON file.
type CountrySource struct {
	Path         string   `yaml:"path"`
	NameProperty string   `yaml:"name_property"`
	Include      []string `yaml:"include"`
}

func Load(path string) (*Job, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}
	j, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	j.dir = filepath.Dir(path)
	return j, nil
}

// Parse decodes and validates a job document and fills in defaults.
func Parse(raw []byte) (*Job, error) {
	var j Job
	if err := yaml.Unmarshal(raw, &j); err != nil {
		return nil, fmt.Errorf("failed to parse job: %w", err)
	}
	j.applyDefaults()
	if err := j.Validate(); err != nil {
		return nil, err
	}
	return &j, nil
}

func (j *Job) applyDefaults() {
	if j.Collection == "" {
		j.Collection = string(sentinel.Sentinel2L2A)
	}
	if j.Evalscript == "" {
		j.Evalscript = defaultEvalscript
	}
	if j.Aggregation == "" {
		j.Aggregation = defaultAggregation
	}
	if j.Resolution == 0 {
		j.Resolution = defaultResolution
	}
	if j.UnitColumn == "" {
		j.UnitColumn = stats.DefaultUnitColumn
	}
	if j.Countries != nil && j.Countries.NameProperty == "" {
		j.Countries.NameProperty = "NAME"
	}
	for i := range j.Units {
		if len(j.Units[i].Point) > 0 && j.Units[i].BufferMeters == 0 {
			j.Units[i].BufferMeters = defaultBufferMeters
		}
	}
}

// Validate checks the structure of the job. Geometries and time ranges are left
// for the remote service to judge.
func (j *Job) Validate() error {
	var errs []error
	if strings.TrimSpace(j.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if _, err := j.TimeRange(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(j.Aggregation) == "" {
		errs = append(errs, errors.New("aggregation is required"))
	}
	if len(j.Units) == 0 && j.Countries == nil {
		errs = append(errs, errors.New("at least one unit or a countries source is required"))
	}
	if j.Countries != nil && j.Countries.Path == "" {
		errs = append(errs, errors.New("countries.path is required"))
	}

	seen := make(map[string]struct{})
	for i, u := range j.Units {
		if u.Name == "" {
			errs = append(errs, fmt.Errorf("units[%d]: name is required", i))
		}
		if _, ok := seen[u.Name]; ok {
			errs = append(errs, fmt.Errorf("units[%d]: duplicate name %q", i, u.Name))
		}
		seen[u.Name] = struct{}{}

		hasPoint, hasBBox := len(u.Point) > 0, len(u.BBox) > 0
		switch {
		case hasPoint == hasBBox:
			errs = append(errs, fmt.Errorf("units[%d]: exactly one of point or bbox is required", i))
		case hasPoint && len(u.Point) != 2:
			errs = append(errs, fmt.Errorf("units[%d]: point needs lon and lat", i))
		case hasBBox && len(u.BBox) != 4:
			errs = append(errs, fmt.Errorf("units[%d]: bbox needs four values", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid job: %w", errors.Join(errs...))
	}
	return nil
}

func (j *Job) TimeRange() (sentinel.TimeRange, error) {
	from, err := parseDate(j.From)
	if err != nil {
		return sentinel.TimeRange{}, fmt.Errorf("from: %w", err)
	}
	to, err := parseDate(j.To)
	if err != nil {
		return sentinel.TimeRange{}, fmt.Errorf("to: %w", err)
	}
	return sentinel.TimeRange{From: from, To: to}, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

// SpatialUnits returns inline units first, then the selected country features.
// Every unit name must be unique since it labels the unit's rows.
func (j *Job) SpatialUnits() ([]sentinel.NamedGeometry, error) {
	units := make([]sentinel.NamedGeometry, 0, len(j.Units))
	for _, u := range j.Units {
		if len(u.Point) == 2 {
			units = append(units, sentinel.NamedGeometry{
				Name:   u.Name,
				Bounds: sentinel.PointBuffer(orb.Point{u.Point[0], u.Point[1]}, u.BufferMeters),
			})
			continue
		}
		units = append(units, sentinel.NamedGeometry{
			Name: u.Name,
			Bounds: sentinel.BBoxBounds(orb.Bound{
				Min: orb.Point{u.BBox[0], u.BBox[1]},
				Max: orb.Point{u.BBox[2], u.BBox[3]},
			}),
		})
	}

	if j.Countries != nil {
		fc, err := sentinel.LoadFeatureCollection(j.resolve(j.Countries.Path))
		if err != nil {
			return nil, err
		}
		countries, err := sentinel.UnitsFromFeatures(fc, j.Countries.NameProperty, j.Countries.Include)
		if err != nil {
			return nil, err
		}
		units = append(units, countries...)
	}

	seen := make(map[string]struct{}, len(units))
	for _, u := range units {
		if _, ok := seen[u.Name]; ok {
			return nil, fmt.Errorf("duplicate unit name %q", u.Name)
		}
		seen[u.Name] = struct{}{}
	}
	return units, nil
}

// Requests builds one statistical request per spatial unit, in unit order.
func (j *Job) Requests() ([]string, []sentinel.StatisticalRequest, error) {
	timeRange, err := j.TimeRange()
	if err != nil {
		return nil, nil, err
	}
	evalscript, err := sentinel.ResolveEvalscript(j.resolveScript())
	if err != nil {
		return nil, nil, err
	}
	units, err := j.SpatialUnits()
	if err != nil {
		return nil, nil, err
	}

	names := make([]string, len(units))
	reqs := make([]sentinel.StatisticalRequest, len(units))
	for i, u := range units {
		names[i] = u.Name
		reqs[i] = sentinel.StatisticalRequest{
			Bounds:              u.Bounds,
			TimeRange:           timeRange,
			AggregationInterval: j.Aggregation,
			ResX:                j.Resolution,
			ResY:                j.Resolution,
			Collection:          sentinel.Collection(j.Collection),
			Evalscript:          evalscript,
			MaxCloudCoverage:    j.MaxCloudCoverage,
			Percentiles:         j.Percentiles,
		}
	}
	return names, reqs, nil
}

// OutputPath is where the normalized table is written.
func (j *Job) OutputPath(resultDir string) string {
	if j.Output != "" {
		return j.resolve(j.Output)
	}
	return filepath.Join(resultDir, j.Name+".csv")
}

func (j *Job) resolve(path string) string {
	if filepath.IsAbs(path) || j.dir == "" {
		return path
	}
	return filepath.Join(j.dir, path)
}

func (j *Job) resolveScript() string {
	if strings.HasSuffix(j.Evalscript, ".js") {
		return j.resolve(j.Evalscript)
	}
	return j.Evalscript
}
