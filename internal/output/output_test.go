package output

import (
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/forest-guardian/copernicus-stats/internal/analysis"
	"github.com/forest-guardian/copernicus-stats/internal/raster"
	"github.com/forest-guardian/copernicus-stats/internal/sentinel"
	"github.com/forest-guardian/copernicus-stats/internal/stats"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seriesTable() *stats.Table {
	var rows []stats.Row
	for _, unit := range []string{"Ljubljana", "Zagreb"} {
		for m := 1; m <= 4; m++ {
			from := time.Date(2021, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
			v := 0.1 * float64(m)
			if unit == "Zagreb" && m == 2 {
				v = math.NaN()
			}
			rows = append(rows, stats.Row{Unit: unit, From: from, To: from.AddDate(0, 1, 0), Values: []float64{v}})
		}
	}
	return &stats.Table{UnitColumn: "unit", Columns: []string{"mean"}, Rows: rows}
}

var transform = [6]float64{14, 0.5, 0, 46, 0, -0.5}

func TestSaveSeries(t *testing.T) {
	dir := t.TempDir()
	table := seriesTable()

	pngPath := filepath.Join(dir, "plots", "mean.png")
	require.NoError(t, SaveSeriesPNG(table, "mean", pngPath))
	assertPNG(t, pngPath)

	htmlPath := filepath.Join(dir, "plots", "mean.html")
	require.NoError(t, SaveSeriesHTML(table, "mean", htmlPath))
	html, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Ljubljana")
	assert.Contains(t, string(html), "2021-04-01")

	assert.Error(t, SaveSeriesPNG(table, "max", pngPath))
	assert.Error(t, SaveSeriesHTML(table, "max", htmlPath))
}

func TestSaveRasterImages(t *testing.T) {
	dir := t.TempDir()
	g, err := raster.NewGridFromRows([][]float64{{0.1, 0.9}, {math.NaN(), 0.5}}, transform)
	require.NoError(t, err)

	path := filepath.Join(dir, "ndvi.png")
	require.NoError(t, SaveGridPNG(g, -1, 1, path, orb.Point{14.25, 45.75}))
	img := assertPNG(t, path)
	_, _, _, alpha := img.At(0, 1).RGBA()
	assert.Zero(t, alpha, "missing pixels stay transparent")

	assert.Error(t, SaveGridPNG(g, -1, 1, path, orb.Point{0, 0}))

	classes, err := analysis.Classify(g, raster.NewGrid(2, 2, transform), analysis.DefaultThresholds)
	require.NoError(t, err)
	require.NoError(t, SaveClassPNG(classes, filepath.Join(dir, "classes.png")))
	assertPNG(t, filepath.Join(dir, "classes.png"))

	mask, err := raster.NewGridFromRows([][]float64{{1, 0}, {math.NaN(), 0}}, transform)
	require.NoError(t, err)
	require.NoError(t, SaveLossPNG(g, mask, filepath.Join(dir, "loss.png")))
	loss := assertPNG(t, filepath.Join(dir, "loss.png"))
	r, gr, b, _ := loss.At(0, 0).RGBA()
	assert.Equal(t, uint32(220), r>>8)
	assert.Equal(t, uint32(30), gr>>8)
	assert.Equal(t, uint32(30), b>>8)

	assert.Error(t, SaveLossPNG(g, raster.NewGrid(1, 1, transform), filepath.Join(dir, "bad.png")))
}

func TestValueToColor(t *testing.T) {
	assert.Equal(t, uint8(255), valueToColor(0).B)
	assert.Equal(t, uint8(255), valueToColor(0.5).G)
	assert.Equal(t, uint8(255), valueToColor(1).R)
	assert.Equal(t, 0.0, normalize(-5, 0, 1))
	assert.Equal(t, 1.0, normalize(5, 0, 1))
	assert.Equal(t, 0.0, normalize(1, 1, 1))
}

func TestSaveGeoJSON(t *testing.T) {
	dir := t.TempDir()
	units := []sentinel.NamedGeometry{
		{Name: "Ljubljana", Bounds: sentinel.PointBuffer(orb.Point{14.5, 46.05}, 1000)},
		{Name: "Square", Bounds: sentinel.GeometryBounds(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}})},
	}
	summaries := []analysis.UnitSummary{{Unit: "Square", Count: 0, Mean: math.NaN()}}

	path := filepath.Join(dir, "units.geojson")
	require.NoError(t, SaveUnitsGeoJSON(units, summaries, path))

	fc := readFeatureCollection(t, path)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "Ljubljana", fc.Features[0].Properties["name"])
	assert.NotContains(t, fc.Features[0].Properties, "mean")
	assert.Contains(t, fc.Features[1].Properties, "mean")
	assert.Nil(t, fc.Features[1].Properties["mean"])
	assert.Equal(t, []any{0.5, 0.5}, fc.Features[1].Properties["centroid"])

	mask, err := raster.NewGridFromRows([][]float64{{1, 0}, {0, 1}}, transform)
	require.NoError(t, err)
	maskPath := filepath.Join(dir, "loss.geojson")
	require.NoError(t, SaveMaskGeoJSON(mask, "forest loss", maskPath))

	points := readFeatureCollection(t, maskPath)
	require.Len(t, points.Features, 2)
	assert.Equal(t, orb.Point{14.25, 45.75}, points.Features[0].Geometry)
	assert.Equal(t, "forest loss", points.Features[1].Properties["label"])
}

func assertPNG(t *testing.T, path string) image.Image {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	img, err := png.Decode(file)
	require.NoError(t, err)
	return img
}

func readFeatureCollection(t *testing.T, path string) *geojson.FeatureCollection {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(string(raw)), "{"))
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	require.NoError(t, err)
	return fc
}
