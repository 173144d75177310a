// Package availability computes open booking slots from business hours and
// the day's occupied intervals.
package availability

import "time"

// Interval is a half-open [Start, End) time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Slots returns the bookable intervals of length duration inside window,
// stepped by step, skipping anything that overlaps a busy interval or starts
// before now. All times must share a location.
func Slots(window Interval, duration, step time.Duration, busy []Interval, now time.Time) []Interval {
	if duration <= 0 || step <= 0 || !window.End.After(window.Start) {
		return nil
	}

	var out []Interval
	for start := window.Start; !start.Add(duration).After(window.End); start = start.Add(step) {
		if start.Before(now) {
			continue
		}
		candidate := Interval{Start: start, End: start.Add(duration)}
		if anyOverlap(candidate, busy) {
			continue
		}
		out = append(out, candidate)
	}
	return out
}

func anyOverlap(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if candidate.overlaps(b) {
			return true
		}
	}
	return false
}
