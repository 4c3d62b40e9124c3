package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
)

const (
	fromHeader = "from"
	toHeader   = "to"
)

// WriteCSV writes the table with from, to and unit columns first.
func (t *Table) WriteCSV(w io.Writer) error {
	writer := gocsv.NewSafeCSVWriter(csv.NewWriter(w))

	unitColumn := t.UnitColumn
	if unitColumn == "" {
		unitColumn = DefaultUnitColumn
	}
	header := append([]string{fromHeader, toHeader, unitColumn}, t.Columns...)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(header))
	for _, row := range t.Rows {
		record[0] = formatTime(row.From)
		record[1] = formatTime(row.To)
		record[2] = row.Unit
		for i := range t.Columns {
			record[3+i] = strconv.FormatFloat(valueAt(row, i), 'g', -1, 64)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadCSV parses a table written by WriteCSV. Values that do not parse become NaN.
func ReadCSV(r io.Reader) (*Table, error) {
	records, err := gocsv.DefaultCSVReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv has no header")
	}
	header := records[0]
	if len(header) < 3 || header[0] != fromHeader || header[1] != toHeader {
		return nil, fmt.Errorf("unexpected csv header %v", header)
	}

	table := &Table{
		UnitColumn: header[2],
		Columns:    append([]string{}, header[3:]...),
		Rows:       make([]Row, 0, len(records)-1),
	}
	for n, record := range records[1:] {
		if len(record) != len(header) {
			return nil, fmt.Errorf("line %d has %d fields, expected %d", n+2, len(record), len(header))
		}
		from, err := parseCSVTime(record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+2, err)
		}
		to, err := parseCSVTime(record[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+2, err)
		}
		row := Row{Unit: record[2], From: from, To: to, Values: make([]float64, len(table.Columns))}
		for i, v := range record[3:] {
			row.Values[i] = parseFloat(v)
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// SaveCSV writes the table to path, creating parent directories.
func (t *Table) SaveCSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()
	return t.WriteCSV(file)
}

func LoadCSV(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()
	return ReadCSV(file)
}

func WriteSamplesCSV(w io.Writer, samples []Sample) error {
	if err := gocsv.Marshal(&samples, w); err != nil {
		return fmt.Errorf("failed to marshal samples: %w", err)
	}
	return nil
}

func ReadSamplesCSV(r io.Reader) ([]Sample, error) {
	var samples []Sample
	if err := gocsv.Unmarshal(r, &samples); err != nil {
		return nil, fmt.Errorf("failed to unmarshal samples: %w", err)
	}
	return samples, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseCSVTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// IsMissing reports whether a statistic is absent.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}
