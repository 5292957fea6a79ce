package attendance

import (
	"sort"
	"time"

	"campusattend/internal/policy"
)

// DayStatus is the overall status of a student's day.
type DayStatus string

const (
	DayPresent   DayStatus = "Present"
	DayLate      DayStatus = "Late"
	DayLeftEarly DayStatus = "LeftEarly"
	DayIrregular DayStatus = "Irregular"
	DayAbsent    DayStatus = "Absent"
)

// Key identifies one attendance record.
type Key struct {
	StudentID string
	Date      time.Time // local midnight in the policy timezone
}

func (k Key) String() string {
	return k.StudentID + "|" + k.Date.Format("2006-01-02")
}

// CheckIn is a student entering a session.
type CheckIn struct {
	SessionID string        `json:"sessionId"`
	Time      time.Time     `json:"time"`
	Status    policy.Status `json:"status"`
	Notes     string        `json:"notes,omitempty"`
}

// CheckOut is a student leaving a session they checked into.
type CheckOut struct {
	SessionID          string                `json:"sessionId"`
	Time               time.Time             `json:"time"`
	ClassDurationHours float64               `json:"classDurationHours"`
	SessionStatus      policy.CheckoutStatus `json:"sessionStatus"`
}

// Absence is written by the reconciler for a session nobody checked into.
type Absence struct {
	SessionID string    `json:"sessionId"`
	Time      time.Time `json:"time"`
}

// Record is the attendance of one student on one calendar date.
type Record struct {
	ID                       string     `json:"id"`
	StudentID                string     `json:"studentId"`
	Date                     time.Time  `json:"date"`
	CheckIns                 []CheckIn  `json:"checkIns"`
	CheckOuts                []CheckOut `json:"checkOuts"`
	Absences                 []Absence  `json:"absences"`
	Status                   DayStatus  `json:"status"`
	ExceptionalCircumstances bool       `json:"exceptionalCircumstances"`
	ExceptionDurationHours   float64    `json:"exceptionDurationHours"`
	UpdatedAt                time.Time  `json:"updatedAt"`
}

func newRecord(id string, key Key) Record {
	return Record{
		ID:        id,
		StudentID: key.StudentID,
		Date:      key.Date,
		CheckIns:  []CheckIn{},
		CheckOuts: []CheckOut{},
		Absences:  []Absence{},
		Status:    DayAbsent,
	}
}

func (r Record) clone() Record {
	r.CheckIns = append([]CheckIn{}, r.CheckIns...)
	r.CheckOuts = append([]CheckOut{}, r.CheckOuts...)
	r.Absences = append([]Absence{}, r.Absences...)
	return r
}

// CheckInFor returns the check-in for a session, if any.
func (r Record) CheckInFor(sessionID string) (CheckIn, bool) {
	for _, ci := range r.CheckIns {
		if ci.SessionID == sessionID {
			return ci, true
		}
	}
	return CheckIn{}, false
}

// CheckOutFor returns the check-out for a session, if any.
func (r Record) CheckOutFor(sessionID string) (CheckOut, bool) {
	for _, co := range r.CheckOuts {
		if co.SessionID == sessionID {
			return co, true
		}
	}
	return CheckOut{}, false
}

// HasAbsence reports whether an absence is recorded for the session.
func (r Record) HasAbsence(sessionID string) bool {
	for _, a := range r.Absences {
		if a.SessionID == sessionID {
			return true
		}
	}
	return false
}

// OpenCheckIns lists check-ins without a matching check-out, latest first.
func (r Record) OpenCheckIns() []CheckIn {
	var open []CheckIn
	for _, ci := range r.CheckIns {
		if _, closed := r.CheckOutFor(ci.SessionID); !closed {
			open = append(open, ci)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].Time.After(open[j].Time) })
	return open
}

// addCheckIn appends ci. A check-in supersedes an absence the reconciler
// already wrote for the same session; superseded reports whether one was
// dropped.
func (r *Record) addCheckIn(ci CheckIn) (superseded bool, err error) {
	if _, dup := r.CheckInFor(ci.SessionID); dup {
		return false, newError(KindDuplicateCheckIn, "already checked in to session %s", ci.SessionID)
	}
	r.CheckIns = append(r.CheckIns, ci)
	if !r.HasAbsence(ci.SessionID) {
		return false, nil
	}
	kept := make([]Absence, 0, len(r.Absences)-1)
	for _, a := range r.Absences {
		if a.SessionID != ci.SessionID {
			kept = append(kept, a)
		}
	}
	r.Absences = kept
	return true, nil
}

// addCheckOut validates and appends co. classify judges the stay given the
// matching check-in time.
func (r *Record) addCheckOut(co CheckOut, classify func(checkIn time.Time) policy.CheckoutStatus) (CheckOut, error) {
	ci, ok := r.CheckInFor(co.SessionID)
	if !ok {
		return CheckOut{}, newError(KindNoOpenSession, "no prior check-in for session %s", co.SessionID)
	}
	if _, dup := r.CheckOutFor(co.SessionID); dup {
		return CheckOut{}, newError(KindDuplicateCheckOut, "already checked out")
	}
	if co.Time.Before(ci.Time) {
		return CheckOut{}, newError(KindBadRequest, "check-out precedes check-in")
	}

	status := classify(ci.Time)
	if status.Rejected() {
		return CheckOut{}, newError(KindCheckoutTooEarly, "minimum attendance for session %s not met", co.SessionID)
	}
	co.SessionStatus = status
	co.ClassDurationHours = co.Time.Sub(ci.Time).Hours()
	r.CheckOuts = append(r.CheckOuts, co)
	return co, nil
}

// addAbsence appends a only when the session has neither a check-in nor an
// absence yet.
func (r *Record) addAbsence(a Absence) bool {
	if _, in := r.CheckInFor(a.SessionID); in || r.HasAbsence(a.SessionID) {
		return false
	}
	r.Absences = append(r.Absences, a)
	return true
}

func (r *Record) setException(hours float64) {
	r.ExceptionalCircumstances = hours > 0
	r.ExceptionDurationHours = hours
}

// DeriveStatus reduces a record to its day status. Precedence, highest
// first: Irregular, LeftEarly, Late, Present, Absent. A positive exception
// duration overrides everything to Present.
func DeriveStatus(r Record, p policy.Policy) DayStatus {
	if r.ExceptionalCircumstances && r.ExceptionDurationHours > 0 {
		return DayPresent
	}
	if len(r.CheckIns) == 0 {
		return DayAbsent
	}

	times := make([]time.Time, 0, len(r.CheckIns))
	for _, ci := range r.CheckIns {
		times = append(times, ci.Time)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i := 1; i < len(times); i++ {
		if times[i].Sub(times[i-1]) < p.IrregularReentry {
			return DayIrregular
		}
	}

	for _, co := range r.CheckOuts {
		if co.SessionStatus == policy.CheckoutLeftEarly {
			return DayLeftEarly
		}
	}
	for _, ci := range r.CheckIns {
		if ci.Status.IsLate() {
			return DayLate
		}
	}
	return DayPresent
}
