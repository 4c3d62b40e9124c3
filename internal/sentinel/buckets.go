package sentinel

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var durationPattern = regexp.MustCompile(`^P(\d+)([DWMY])$`)

// Step is a calendar step parsed from a simple ISO-8601 duration.
type Step struct {
	Years, Months, Days int
}

// ParseStep parses P<n>D, P<n>W, P<n>M and P<n>Y durations.
func ParseStep(iso string) (Step, error) {
	m := durationPattern.FindStringSubmatch(iso)
	if m == nil {
		return Step{}, fmt.Errorf("unsupported aggregation interval %q", iso)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n == 0 {
		return Step{}, fmt.Errorf("unsupported aggregation interval %q", iso)
	}
	switch m[2] {
	case "D":
		return Step{Days: n}, nil
	case "W":
		return Step{Days: 7 * n}, nil
	case "M":
		return Step{Months: n}, nil
	default:
		return Step{Years: n}, nil
	}
}

func (s Step) add(t time.Time) time.Time {
	return t.AddDate(s.Years, s.Months, s.Days)
}

// Buckets splits the range into contiguous, non-overlapping buckets of the given
// ISO-8601 interval. The last bucket is kept only when it fits entirely in the range,
// which is how the Statistical API treats a trailing partial interval by default.
func (r TimeRange) Buckets(interval string) ([]TimeRange, error) {
	step, err := ParseStep(interval)
	if err != nil {
		return nil, err
	}
	var buckets []TimeRange
	for start := r.From; start.Before(r.To); {
		end := step.add(start)
		if end.After(r.To) {
			break
		}
		buckets = append(buckets, TimeRange{From: start, To: end})
		start = end
	}
	return buckets, nil
}

// Days splits the range into steps of n days, each bucket covering one day starting at the step.
func (r TimeRange) Days(n int) []TimeRange {
	if n < 1 {
		n = 1
	}
	var days []TimeRange
	for current := r.From; !current.After(r.To); current = current.AddDate(0, 0, n) {
		days = append(days, TimeRange{
			From: current,
			To:   current.Add(time.Hour*23 + time.Minute*59 + time.Second*59),
		})
	}
	return days
}
