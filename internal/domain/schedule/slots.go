package schedule

import (
	"iter"
	"slices"
)

// DefaultGranularity is the spacing between candidate start times in minutes.
const DefaultGranularity = 30

// Generate yields candidate start times from iv.Open every granularity minutes,
// keeping only starts whose slot of durationMinutes ends at or before iv.Close.
// The sequence is a pure function of its inputs and can be ranged over any
// number of times.
func Generate(iv Interval, durationMinutes, granularityMinutes int) iter.Seq[Clock] {
	return func(yield func(Clock) bool) {
		if iv.IsClosed() || durationMinutes <= 0 || granularityMinutes <= 0 {
			return
		}
		for start := iv.Open; start.Add(durationMinutes) <= iv.Close; start = start.Add(granularityMinutes) {
			if !yield(start) {
				return
			}
		}
	}
}

// Slots collects Generate into a slice.
func Slots(iv Interval, durationMinutes, granularityMinutes int) []Clock {
	return slices.Collect(Generate(iv, durationMinutes, granularityMinutes))
}
