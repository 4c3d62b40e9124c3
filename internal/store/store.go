// Package store persists normalized tables in long format, one row per
// (unit, bucket, statistic), in SQLite or PostgreSQL.
package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/forest-guardian/copernicus-stats/internal/stats"
	"github.com/google/uuid"
)

//go:embed migrations
var migrations embed.FS

var ErrRunNotFound = errors.New("run not found")

type Run struct {
	ID         string    `json:"id"`
	Job        string    `json:"job"`
	CreatedAt  time.Time `json:"created_at"`
	UnitColumn string    `json:"unit_column"`
	Units      int       `json:"units"`
	Rows       int       `json:"rows"`
}

func NewRun(job string) Run {
	return Run{ID: uuid.NewString(), Job: job, CreatedAt: time.Now().UTC()}
}

// Point is one bucket of a series. Value is nil where the statistic was missing.
type Point struct {
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
	Value *float64  `json:"value"`
}

type Sink interface {
	SaveTable(ctx context.Context, run Run, table *stats.Table) error
}

type Reader interface {
	Runs(ctx context.Context) ([]Run, error)
	Units(ctx context.Context, runID string) ([]string, error)
	Statistics(ctx context.Context, runID string) ([]string, error)
	Series(ctx context.Context, runID, unit, statistic string) ([]Point, error)
	LoadTable(ctx context.Context, runID string) (*stats.Table, error)
}

type Store interface {
	Sink
	Reader
	Close() error
}

// Open picks the backend from the DSN scheme: sqlite://path or postgres://...
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return OpenSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported store dsn %q: expected sqlite:// or postgres://", dsn)
	}
}

// unitColumn is the header a table labels its units with.
func unitColumn(table *stats.Table) string {
	if table.UnitColumn == "" {
		return stats.DefaultUnitColumn
	}
	return table.UnitColumn
}

// sample is one long-format record.
type sample struct {
	Seq         int
	Unit        string
	UnitOrder   int
	From, To    time.Time
	Statistic   string
	ColumnOrder int
	Value       *float64
}

func longFormat(table *stats.Table) []sample {
	unitOrder := make(map[string]int)
	for i, u := range table.Units() {
		unitOrder[u] = i
	}
	samples := make([]sample, 0, len(table.Rows)*len(table.Columns))
	for seq, row := range table.Rows {
		for col, name := range table.Columns {
			var value *float64
			if col < len(row.Values) && !math.IsNaN(row.Values[col]) && !math.IsInf(row.Values[col], 0) {
				v := row.Values[col]
				value = &v
			}
			samples = append(samples, sample{
				Seq:         seq,
				Unit:        row.Unit,
				UnitOrder:   unitOrder[row.Unit],
				From:        row.From,
				To:          row.To,
				Statistic:   name,
				ColumnOrder: col,
				Value:       value,
			})
		}
	}
	return samples
}

// wideFormat rebuilds a table from records ordered by sequence.
func wideFormat(unitColumn string, samples []sample) *stats.Table {
	columns := make(map[int]string)
	for _, s := range samples {
		columns[s.ColumnOrder] = s.Statistic
	}
	orders := make([]int, 0, len(columns))
	for o := range columns {
		orders = append(orders, o)
	}
	sort.Ints(orders)
	position := make(map[int]int, len(orders))
	table := &stats.Table{UnitColumn: unitColumn}
	for i, o := range orders {
		position[o] = i
		table.Columns = append(table.Columns, columns[o])
	}

	bySeq := make(map[int]int)
	for _, s := range samples {
		idx, ok := bySeq[s.Seq]
		if !ok {
			values := make([]float64, len(table.Columns))
			for i := range values {
				values[i] = math.NaN()
			}
			table.Rows = append(table.Rows, stats.Row{Unit: s.Unit, From: s.From, To: s.To, Values: values})
			idx = len(table.Rows) - 1
			bySeq[s.Seq] = idx
		}
		if s.Value != nil {
			table.Rows[idx].Values[position[s.ColumnOrder]] = *s.Value
		}
	}
	return table
}
