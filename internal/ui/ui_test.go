package ui

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/forest-guardian/copernicus-stats/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func console(input string) (*Console, *bytes.Buffer) {
	var out bytes.Buffer
	return NewConsole(strings.NewReader(input), &out), &out
}

func TestConsoleReaders(t *testing.T) {
	c, _ := console("7\n12\n2021-05-03\n\n2.5\n")

	n, err := c.ReadInt("n: ", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = c.ReadInt("n: ", 1, 10)
	assert.ErrorContains(t, err, "between 1 and 10")

	date, err := c.ReadDate("date: ")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 5, 3, 0, 0, 0, 0, time.UTC), date)

	v, err := c.ReadFloat("v: ", 1000)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, v)
	v, err = c.ReadFloat("v: ", 1000)
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)
}

func TestReadUnit(t *testing.T) {
	c, _ := console("14.5,46.05\n500\n")
	unit, err := c.ReadUnit()
	require.NoError(t, err)
	assert.Equal(t, "14.5000_46.0500", unit.Name)
	require.NotNil(t, unit.Bounds.BBox)
	assert.True(t, unit.Bounds.BBox.Contains(unit.Bounds.Extent().Center()))

	dir := t.TempDir()
	path := filepath.Join(dir, "parks.geojson")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"name":"Tivoli"},"geometry":{"type":"Polygon","coordinates":[[[14.49,46.05],[14.5,46.05],[14.5,46.06],[14.49,46.05]]]}}]}`), 0644))
	c, _ = console(path + ":Tivoli\n\n")
	unit, err = c.ReadUnit()
	require.NoError(t, err)
	assert.Equal(t, "Tivoli", unit.Name)
	assert.NotNil(t, unit.Bounds.Geometry)

	c, _ = console("north\n")
	_, err = c.ReadUnit()
	assert.ErrorContains(t, err, "lon,lat")
}

func TestMenu_LocalActions(t *testing.T) {
	dir := t.TempDir()
	jan := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	table := &stats.Table{
		UnitColumn: "unit",
		Columns:    []string{"mean"},
		Rows: []stats.Row{
			{Unit: "a", From: jan, To: jan.AddDate(0, 1, 0), Values: []float64{0.3}},
			{Unit: "a", From: jan.AddDate(0, 1, 0), To: jan.AddDate(0, 2, 0), Values: []float64{0.4}},
		},
	}
	csvPath := filepath.Join(dir, "job.csv")
	require.NoError(t, table.SaveCSV(csvPath))

	c, out := console("5\n4\n" + csvPath + "\nmean\n1\n9\n7\n")
	require.NoError(t, NewMenu(c, nil).Show(context.Background()))

	text := out.String()
	assert.Contains(t, text, "ndvi-stats")
	assert.Contains(t, text, "Plots saved")
	assert.Contains(t, text, "COPERNICUS_CLIENT_ID", "remote actions need credentials")
	assert.Contains(t, text, "between 1 and 7")
	assert.Contains(t, text, "Exiting...")
	assert.FileExists(t, filepath.Join(dir, "job_mean.png"))
	assert.FileExists(t, filepath.Join(dir, "job_mean.html"))
}

func TestMenu_StopsAtEndOfInput(t *testing.T) {
	c, _ := console("")
	assert.NoError(t, NewMenu(c, nil).Show(context.Background()))
}
