package job

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/forest-guardian/copernicus-stats/internal/sentinel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const capitalsJob = `
name: capitals
from: 2020-01-01
to: 2021-01-01
aggregation: P1M
max_cloud_coverage: 30
units:
  - name: Ljubljana
    point: [14.5058, 46.0569]
  - name: Zagreb
    point: [15.9819, 45.8150]
    buffer_meters: 2000
  - name: Vienna box
    bbox: [16.2, 48.1, 16.5, 48.3]
`

const countriesGeoJSON = `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"NAME":"Slovenia"},"geometry":{"type":"Polygon","coordinates":[[[13,45],[16,45],[16,47],[13,47],[13,45]]]}},
{"type":"Feature","properties":{"NAME":"Croatia"},"geometry":{"type":"Polygon","coordinates":[[[14,42],[19,42],[19,46],[14,46],[14,42]]]}}
]}`

func TestParse_Defaults(t *testing.T) {
	j, err := Parse([]byte(capitalsJob))
	require.NoError(t, err)

	assert.Equal(t, "sentinel-2-l2a", j.Collection)
	assert.Equal(t, "ndvi-stats", j.Evalscript)
	assert.Equal(t, defaultResolution, j.Resolution)
	assert.Equal(t, "unit", j.UnitColumn)
	assert.Equal(t, defaultBufferMeters, j.Units[0].BufferMeters)
	assert.Equal(t, 2000.0, j.Units[1].BufferMeters)
	require.NotNil(t, j.MaxCloudCoverage)
	assert.Equal(t, 30.0, *j.MaxCloudCoverage)

	r, err := j.TimeRange()
	require.NoError(t, err)
	assert.Equal(t, 2020, r.From.Year())
	assert.Equal(t, 2021, r.To.Year())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"missing name", "from: 2020-01-01\nto: 2020-02-01\nunits: [{name: a, point: [1, 2]}]", "name is required"},
		{"bad date", "name: x\nfrom: yesterday\nto: 2020-02-01\nunits: [{name: a, point: [1, 2]}]", "invalid date"},
		{"no units", "name: x\nfrom: 2020-01-01\nto: 2020-02-01", "at least one unit"},
		{"both geometries", "name: x\nfrom: 2020-01-01\nto: 2020-02-01\nunits: [{name: a, point: [1, 2], bbox: [0, 0, 1, 1]}]", "exactly one"},
		{"short bbox", "name: x\nfrom: 2020-01-01\nto: 2020-02-01\nunits: [{name: a, bbox: [0, 0, 1]}]", "four values"},
		{"duplicate", "name: x\nfrom: 2020-01-01\nto: 2020-02-01\nunits: [{name: a, point: [1, 2]}, {name: a, point: [1, 2]}]", "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_AggregationIsPassedThrough(t *testing.T) {
	j, err := Parse([]byte("name: x\nfrom: 2020-01-01\nto: 2020-02-01\naggregation: P1DT12H\nunits: [{name: a, point: [1, 2]}]"))
	require.NoError(t, err)

	_, reqs, err := j.Requests()
	require.NoError(t, err)
	assert.Equal(t, "P1DT12H", reqs[0].AggregationInterval)
}

func TestRequests(t *testing.T) {
	j, err := Parse([]byte(capitalsJob))
	require.NoError(t, err)

	names, reqs, err := j.Requests()
	require.NoError(t, err)
	assert.Equal(t, []string{"Ljubljana", "Zagreb", "Vienna box"}, names)
	require.Len(t, reqs, 3)

	for _, req := range reqs {
		assert.Equal(t, "P1M", req.AggregationInterval)
		assert.Equal(t, sentinel.Sentinel2L2A, req.Collection)
		assert.Contains(t, req.Evalscript, "dataMask")
	}
	assert.NotNil(t, reqs[0].Bounds.BBox)
	assert.InDelta(t, 16.2, reqs[2].Bounds.Extent().Min.X(), 1e-9)

	zagreb := reqs[1].Bounds.Extent()
	ljubljana := reqs[0].Bounds.Extent()
	assert.Greater(t, zagreb.Max.X()-zagreb.Min.X(), ljubljana.Max.X()-ljubljana.Min.X())
}

func TestLoad_CountriesRelativeToJobFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "countries.geojson"), []byte(countriesGeoJSON), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "job.yaml"), []byte(`
name: balkans
from: 2021-01-01
to: 2021-12-31
countries:
  path: countries.geojson
  include: [Croatia, Slovenia]
`), 0644))

	j, err := Load(filepath.Join(dir, "job.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "NAME", j.Countries.NameProperty)

	units, err := j.SpatialUnits()
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "Croatia", units[0].Name)
	assert.NotNil(t, units[0].Bounds.Geometry)

	assert.Equal(t, filepath.Join("/tmp/result", "balkans.csv"), j.OutputPath("/tmp/result"))
	j.Output = "out/balkans.csv"
	assert.Equal(t, filepath.Join(dir, "out", "balkans.csv"), j.OutputPath("/tmp/result"))
}

func TestSpatialUnits_NameClashWithCountry(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "countries.geojson"), []byte(countriesGeoJSON), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "job.yaml"), []byte(`
name: clash
from: 2021-01-01
to: 2021-12-31
units:
  - name: Slovenia
    point: [14.5, 46.0]
countries:
  path: countries.geojson
`), 0644))

	j, err := Load(filepath.Join(dir, "job.yaml"))
	require.NoError(t, err)

	_, err = j.SpatialUnits()
	assert.ErrorContains(t, err, `duplicate unit name "Slovenia"`)
	_, _, err = j.Requests()
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
