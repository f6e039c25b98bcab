package model

import "time"

// DayRule decides which business day a timestamp belongs to. Taps before
// Boundary (an offset from local midnight) count towards the previous day.
type DayRule struct {
	Location *time.Location
	Boundary time.Duration
}

// Loc is the time zone business days are counted in.
func (r DayRule) Loc() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// BusinessDay returns local midnight of the business day containing ts.
func (r DayRule) BusinessDay(ts time.Time) time.Time {
	local := ts.In(r.Loc()).Add(-r.Boundary)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.Loc())
}

// SameDay reports whether a and b fall on the same business day.
func (r DayRule) SameDay(a, b time.Time) bool {
	return r.BusinessDay(a).Equal(r.BusinessDay(b))
}

// DayStart returns the instant a business day begins.
func (r DayRule) DayStart(day time.Time) time.Time {
	d := day.In(r.Loc())
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, r.Loc()).Add(r.Boundary)
}
