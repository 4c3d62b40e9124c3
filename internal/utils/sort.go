package utils

import (
	"slices"
	"time"
)

// SortedDates returns a sorted copy of dates.
func SortedDates(dates []time.Time, asc bool) []time.Time {
	sorted := slices.Clone(dates)
	slices.SortFunc(sorted, func(a, b time.Time) int {
		if asc {
			return a.Compare(b)
		}
		return b.Compare(a)
	})
	return sorted
}

// SortedKeys returns the dates keying m in order.
func SortedKeys[T any](m map[time.Time]T, asc bool) []time.Time {
	keys := make([]time.Time, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return SortedDates(keys, asc)
}
