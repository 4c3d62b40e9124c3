package stats

import (
	"math"
	"strings"
	"time"
)

const DefaultUnitColumn = "unit"

// Row is one (spatial unit, time bucket) record. Values align with Table.Columns.
type Row struct {
	Unit   string
	From   time.Time
	To     time.Time
	Values []float64
}

// Table is a time-indexed sample set for one or more spatial units.
type Table struct {
	UnitColumn string
	Columns    []string
	Rows       []Row
}

// Sample is the typed view of a single-band statistics row.
type Sample struct {
	From        time.Time `csv:"from"`
	To          time.Time `csv:"to"`
	Unit        string    `csv:"unit"`
	Mean        float64   `csv:"mean"`
	Min         float64   `csv:"min"`
	Max         float64   `csv:"max"`
	StDev       float64   `csv:"stDev"`
	SampleCount float64   `csv:"sampleCount"`
	NoDataCount float64   `csv:"noDataCount"`
}

// Index returns the position of the named column, falling back to the first
// column whose dotted name ends with it. It returns -1 when nothing matches.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	for i, c := range t.Columns {
		if strings.HasSuffix(c, "."+name) {
			return i
		}
	}
	return -1
}

// Column returns one value per row for the named column, NaN when the column is absent.
func (t *Table) Column(name string) []float64 {
	idx := t.Index(name)
	values := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = valueAt(row, idx)
	}
	return values
}

// Units lists spatial units in the order they first appear.
func (t *Table) Units() []string {
	var units []string
	seen := make(map[string]struct{})
	for _, row := range t.Rows {
		if _, ok := seen[row.Unit]; !ok {
			seen[row.Unit] = struct{}{}
			units = append(units, row.Unit)
		}
	}
	return units
}

// RowsFor returns the rows of one unit in table order.
func (t *Table) RowsFor(unit string) []Row {
	var rows []Row
	for _, row := range t.Rows {
		if row.Unit == unit {
			rows = append(rows, row)
		}
	}
	return rows
}

// Samples maps every row onto the typed single-band view.
func (t *Table) Samples() []Sample {
	mean, min, max := t.Index("mean"), t.Index("min"), t.Index("max")
	stDev, sampleCount, noDataCount := t.Index("stDev"), t.Index("sampleCount"), t.Index("noDataCount")

	samples := make([]Sample, len(t.Rows))
	for i, row := range t.Rows {
		samples[i] = Sample{
			From:        row.From,
			To:          row.To,
			Unit:        row.Unit,
			Mean:        valueAt(row, mean),
			Min:         valueAt(row, min),
			Max:         valueAt(row, max),
			StDev:       valueAt(row, stDev),
			SampleCount: valueAt(row, sampleCount),
			NoDataCount: valueAt(row, noDataCount),
		}
	}
	return samples
}

func valueAt(row Row, idx int) float64 {
	if idx < 0 || idx >= len(row.Values) {
		return math.NaN()
	}
	return row.Values[idx]
}
