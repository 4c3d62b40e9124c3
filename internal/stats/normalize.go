// Package stats turns Statistical API responses into flat time-indexed tables.
package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/forest-guardian/copernicus-stats/internal/sentinel"
)

const (
	intervalKey = "interval"
	errorKey    = "error"
	// keySep joins path segments into map keys. Keys from the service may contain
	// dots (percentiles are keyed "50.0") but never control characters.
	keySep = "\x1f"
)

// Field is one leaf of a flattened document. Path holds the keys from the root
// to the leaf, unsplit.
type Field struct {
	Path  []string
	Value any
}

// Name joins the path with dots for display.
func (f Field) Name() string {
	return strings.Join(f.Path, ".")
}

// Flatten walks nested objects and returns their leaves.
// Keys are visited in sorted order at every level. Arrays are leaves.
func Flatten(doc map[string]any) []Field {
	var fields []Field
	flatten(nil, doc, &fields)
	return fields
}

func flatten(prefix []string, doc map[string]any, fields *[]Field) {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := append(slices.Clone(prefix), k)
		if nested, ok := doc[k].(map[string]any); ok && len(nested) > 0 {
			flatten(path, nested, fields)
			continue
		}
		*fields = append(*fields, Field{Path: path, Value: doc[k]})
	}
}

// Coerce converts a statistic value to float64. Anything that is not a number
// or a numeric string becomes NaN.
func Coerce(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		return parseFloat(n.String())
	case string:
		return parseFloat(n)
	default:
		return math.NaN()
	}
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// Abbreviate names each path by its final segment. Paths sharing a final segment
// get the shortest dotted suffix that tells them apart.
func Abbreviate(segments [][]string) []string {
	depth := make([]int, len(segments))
	for i := range depth {
		depth[i] = 1
	}

	names := make([]string, len(segments))
	for {
		groups := make(map[string][]int)
		for i, segs := range segments {
			suffix := segs[len(segs)-depth[i]:]
			names[i] = strings.Join(suffix, ".")
			key := strings.Join(suffix, keySep)
			groups[key] = append(groups[key], i)
		}

		changed := false
		for _, members := range groups {
			if len(members) < 2 {
				continue
			}
			for _, i := range members {
				if depth[i] < len(segments[i]) {
					depth[i]++
					changed = true
				}
			}
		}
		if !changed {
			return names
		}
	}
}

// Normalize flattens the i-th response and tags its rows with units[i], then
// concatenates all units in input order. Intervals the service could not compute
// keep their row with NaN statistics.
func Normalize(units []string, responses []*sentinel.StatisticsResponse) (*Table, error) {
	if len(units) != len(responses) {
		return nil, fmt.Errorf("got %d responses for %d spatial units", len(responses), len(units))
	}

	type record struct {
		unit     string
		from, to time.Time
		values   map[string]float64
	}

	var (
		records []record
		paths   [][]string
		keys    []string
		seen    = make(map[string]struct{})
	)
	for i, resp := range responses {
		if resp == nil {
			return nil, fmt.Errorf("missing response for spatial unit %q", units[i])
		}
		for _, interval := range resp.Data {
			rec := record{unit: units[i], values: make(map[string]float64)}
			for _, field := range Flatten(interval) {
				if len(field.Path) == 0 {
					continue
				}
				switch {
				case slices.Equal(field.Path, []string{intervalKey, "from"}):
					rec.from = parseTime(field.Value)
				case slices.Equal(field.Path, []string{intervalKey, "to"}):
					rec.to = parseTime(field.Value)
				case field.Path[0] == errorKey:
				default:
					key := strings.Join(field.Path, keySep)
					if _, ok := seen[key]; !ok {
						seen[key] = struct{}{}
						paths = append(paths, field.Path)
						keys = append(keys, key)
					}
					rec.values[key] = Coerce(field.Value)
				}
			}
			records = append(records, rec)
		}
	}

	table := &Table{
		UnitColumn: DefaultUnitColumn,
		Columns:    Abbreviate(paths),
		Rows:       make([]Row, 0, len(records)),
	}
	for _, rec := range records {
		row := Row{Unit: rec.unit, From: rec.from, To: rec.to, Values: make([]float64, len(paths))}
		for j, key := range keys {
			v, ok := rec.values[key]
			if !ok {
				v = math.NaN()
			}
			row.Values[j] = v
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func parseTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
