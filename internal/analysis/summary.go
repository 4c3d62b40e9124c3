package analysis

import (
	"math"
	"sort"
	"time"

	"github.com/forest-guardian/copernicus-stats/internal/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type UnitSummary struct {
	Unit   string  `json:"unit" csv:"unit"`
	Count  int     `json:"count" csv:"count"`
	Mean   float64 `json:"mean" csv:"mean"`
	StdDev float64 `json:"std_dev" csv:"std_dev"`
	Min    float64 `json:"min" csv:"min"`
	Max    float64 `json:"max" csv:"max"`
}

// Summarize aggregates one column per spatial unit, skipping NaN values.
// Units without any valid value get NaN statistics.
func Summarize(table *stats.Table, column string) []UnitSummary {
	idx := table.Index(column)
	summaries := make([]UnitSummary, 0)
	for _, unit := range table.Units() {
		values := validValues(table.RowsFor(unit), idx)
		summary := UnitSummary{Unit: unit, Count: len(values)}
		if len(values) == 0 {
			summary.Mean, summary.StdDev, summary.Min, summary.Max = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		} else {
			summary.Mean, summary.StdDev = stat.MeanStdDev(values, nil)
			summary.Min, summary.Max = floats.Min(values), floats.Max(values)
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

type MonthlyMean struct {
	Unit  string     `json:"unit" csv:"unit"`
	Month time.Month `json:"month" csv:"month"`
	Mean  float64    `json:"mean" csv:"mean"`
	Count int        `json:"count" csv:"count"`
}

// Climatology averages one column per unit and calendar month of the bucket start.
func Climatology(table *stats.Table, column string) []MonthlyMean {
	idx := table.Index(column)
	var result []MonthlyMean
	for _, unit := range table.Units() {
		byMonth := make(map[time.Month][]float64)
		for _, row := range table.RowsFor(unit) {
			if idx < 0 || math.IsNaN(row.Values[idx]) || row.From.IsZero() {
				continue
			}
			byMonth[row.From.Month()] = append(byMonth[row.From.Month()], row.Values[idx])
		}
		months := make([]time.Month, 0, len(byMonth))
		for m := range byMonth {
			months = append(months, m)
		}
		sort.Slice(months, func(i, j int) bool { return months[i] < months[j] })
		for _, m := range months {
			result = append(result, MonthlyMean{Unit: unit, Month: m, Mean: stat.Mean(byMonth[m], nil), Count: len(byMonth[m])})
		}
	}
	return result
}

type UnitTrend struct {
	Unit         string  `json:"unit"`
	SlopePerYear float64 `json:"slope_per_year"`
	Intercept    float64 `json:"intercept"`
	RSquared     float64 `json:"r_squared"`
}

// Trend fits a least-squares line through one column per unit against time in years.
// Units with fewer than two valid values are skipped.
func Trend(table *stats.Table, column string) []UnitTrend {
	idx := table.Index(column)
	var result []UnitTrend
	for _, unit := range table.Units() {
		var xs, ys []float64
		for _, row := range table.RowsFor(unit) {
			if idx < 0 || math.IsNaN(row.Values[idx]) || row.From.IsZero() {
				continue
			}
			xs = append(xs, decimalYear(row.From))
			ys = append(ys, row.Values[idx])
		}
		if len(xs) < 2 {
			continue
		}
		alpha, beta := stat.LinearRegression(xs, ys, nil, false)
		result = append(result, UnitTrend{
			Unit:         unit,
			SlopePerYear: beta,
			Intercept:    alpha,
			RSquared:     stat.RSquared(xs, ys, nil, alpha, beta),
		})
	}
	return result
}

func decimalYear(t time.Time) float64 {
	start := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)
	return float64(t.Year()) + t.Sub(start).Hours()/end.Sub(start).Hours()
}

func validValues(rows []stats.Row, idx int) []float64 {
	if idx < 0 {
		return nil
	}
	values := make([]float64, 0, len(rows))
	for _, row := range rows {
		if v := row.Values[idx]; !math.IsNaN(v) {
			values = append(values, v)
		}
	}
	return values
}
