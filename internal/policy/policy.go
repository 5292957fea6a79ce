package policy

import (
	"time"
)

// Policy holds the timing rules used to judge attendance events. It is an
// immutable value: callers pass it explicitly so tenants and tests can run
// with their own windows.
type Policy struct {
	CheckInWindow     time.Duration // how early before start a check-in is accepted
	GracePeriod       time.Duration // how long after start a check-in is still Late rather than rejected
	LateCheckoutGrace time.Duration // how long after end a session still resolves for an event
	LabThreshold      time.Duration // sessions at least this long get the VeryLate window
	ShortSessionSlack time.Duration
	LongSessionSlack  time.Duration
	IrregularReentry  time.Duration // two check-ins closer than this mark the day Irregular
	MaxDailyDuration  time.Duration // cap on scheduled time per class per weekday
	Location          *time.Location
	Holidays          []time.Time
}

// Default returns the rules the campus shipped with.
func Default() Policy {
	return Policy{
		CheckInWindow:     30 * time.Minute,
		GracePeriod:       15 * time.Minute,
		LateCheckoutGrace: 15 * time.Minute,
		LabThreshold:      3 * time.Hour,
		ShortSessionSlack: 15 * time.Minute,
		LongSessionSlack:  45 * time.Minute,
		IrregularReentry:  15 * time.Minute,
		MaxDailyDuration:  8 * time.Hour,
		Location:          time.UTC,
	}
}

// Loc returns the policy timezone, UTC when unset.
func (p Policy) Loc() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// DayOf normalizes t to local midnight in the policy timezone.
func (p Policy) DayOf(t time.Time) time.Time {
	t = t.In(p.Loc())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, p.Loc())
}

// IsHoliday reports whether the calendar date of day is a configured holiday.
func (p Policy) IsHoliday(day time.Time) bool {
	day = day.In(p.Loc())
	for _, h := range p.Holidays {
		h = h.In(p.Loc())
		if h.Year() == day.Year() && h.YearDay() == day.YearDay() {
			return true
		}
	}
	return false
}

// IsLong reports whether a session of length d is treated as a lab.
func (p Policy) IsLong(d time.Duration) bool {
	return p.LabThreshold > 0 && d >= p.LabThreshold
}
