package model

import "time"

// Interval is the half-open time range [Start, Start+Duration).
type Interval struct {
	Start    time.Time
	Duration time.Duration
}

// End returns the first instant that is no longer part of the interval.
func (i Interval) End() time.Time { return i.Start.Add(i.Duration) }

// Overlaps reports whether i and o share at least one instant.
func (i Interval) Overlaps(o Interval) bool { return Overlaps(i, o) }

// Overlaps is the half-open intersection test a.start < b.end && b.start < a.end.
// It is symmetric, and intervals that only touch (a.End() == b.Start) do not
// overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End()) && b.Start.Before(a.End())
}
