package policy

import "time"

// Status is the punctuality of a single check-in.
type Status string

const (
	StatusOnTime        Status = "OnTime"
	StatusEarly         Status = "Early" // accepted on decode; Classify never returns it
	StatusLate          Status = "Late"
	StatusVeryLate      Status = "VeryLate"
	StatusTooEarly      Status = "TooEarly"
	StatusOutsideWindow Status = "OutsideWindow"
)

// Rejected reports whether a check-in with this status must not be recorded.
func (s Status) Rejected() bool {
	return s == StatusTooEarly || s == StatusOutsideWindow
}

// IsLate reports whether the check-in happened after the session start.
func (s Status) IsLate() bool {
	return s == StatusLate || s == StatusVeryLate
}

// Reason is the human readable explanation for a rejected status.
func (s Status) Reason() string {
	switch s {
	case StatusTooEarly:
		return "too early"
	case StatusOutsideWindow:
		return "after permitted window"
	}
	return ""
}

// Classify maps a check-in time onto a status for the session [start, end).
// Rules are evaluated in order and the first match wins.
func Classify(start, end, at time.Time, p Policy) Status {
	if at.Before(start.Add(-p.CheckInWindow)) {
		return StatusTooEarly
	}
	if !at.After(start) {
		return StatusOnTime
	}

	graceEnd := start.Add(p.GracePeriod)
	if !at.After(graceEnd) {
		return StatusLate
	}

	length := end.Sub(start)
	if p.IsLong(length) && !at.After(graceEnd.Add(length/2)) {
		return StatusVeryLate
	}
	return StatusOutsideWindow
}

// CheckoutStatus is the outcome of leaving a session.
type CheckoutStatus string

const (
	CheckoutCompleted CheckoutStatus = "Completed"
	CheckoutLeftEarly CheckoutStatus = "LeftEarly"
	CheckoutTooEarly  CheckoutStatus = "TooEarly"
)

// Rejected reports whether the checkout must not be recorded.
func (s CheckoutStatus) Rejected() bool { return s == CheckoutTooEarly }

// MinimumAttendance is the shortest stay that still counts for the session.
func MinimumAttendance(start, end time.Time, p Policy) time.Duration {
	length := end.Sub(start)
	slack := p.ShortSessionSlack
	if p.IsLong(length) {
		slack = p.LongSessionSlack
	}
	if min := length - slack; min > 0 {
		return min
	}
	return 0
}

// ClassifyCheckout judges a checkout against the matching check-in.
func ClassifyCheckout(checkIn, checkOut, start, end time.Time, p Policy) CheckoutStatus {
	if checkOut.Sub(checkIn) < MinimumAttendance(start, end, p) {
		return CheckoutTooEarly
	}
	if checkOut.Before(end) {
		return CheckoutLeftEarly
	}
	return CheckoutCompleted
}
