package attendance

import (
	"context"
	"errors"
	"time"

	"campusattend/internal/roster"
	"campusattend/internal/schedule"
)

// Summary aggregates one student's records over a date range.
type Summary struct {
	StudentID     string    `json:"studentId"`
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	SessionDays   int       `json:"totalSessionDays"`
	RecordedDays  int       `json:"recordedDays"`
	PresentDays   int       `json:"presentDays"`
	LateDays      int       `json:"lateDays"`
	LeftEarlyDays int       `json:"leftEarlyDays"`
	IrregularDays int       `json:"irregularDays"`
	AbsentDays    int       `json:"absentDays"`
	Percentage    float64   `json:"percentage"`
	Records       []Record  `json:"records,omitempty"`
}

// Percent returns present/total*100, and 0 when there is nothing to divide by.
func Percent(present, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(present) / float64(total) * 100
}

// Monthly summarizes a student's attendance for a calendar month.
func (s *Service) Monthly(ctx context.Context, studentID string, month time.Month, year int) (Summary, error) {
	if month < time.January || month > time.December || year < 1 {
		return Summary{}, newError(KindBadRequest, "invalid month %d/%d", month, year)
	}
	from := time.Date(year, month, 1, 0, 0, 0, 0, s.policy.Loc())
	to := from.AddDate(0, 1, -1)
	return s.studentSummary(ctx, studentID, from, to, true)
}

// Semester summarizes a student's attendance between from and to. When
// either bound is nil both come from the timetable covering today.
func (s *Service) Semester(ctx context.Context, studentID string, from, to *time.Time) (Summary, error) {
	if from != nil && to != nil {
		return s.studentSummary(ctx, studentID, s.policy.DayOf(*from), s.policy.DayOf(*to), true)
	}
	student, err := s.student(ctx, studentID)
	if err != nil {
		return Summary{}, err
	}
	start, end, err := s.deps.Schedule.SemesterFor(student.ClassID, s.now())
	if errors.Is(err, schedule.ErrNotFound) {
		return Summary{}, newError(KindNotFound, "no semester covers the current date")
	}
	if err != nil {
		return Summary{}, scheduleError(err)
	}
	return s.summarize(ctx, student, start, end, true)
}

// ClassSummary summarizes every student of a class over [from, to].
func (s *Service) ClassSummary(ctx context.Context, classID string, from, to time.Time) ([]Summary, error) {
	if classID == "" {
		return nil, newError(KindBadRequest, "classId required")
	}
	from, to = s.policy.DayOf(from), s.policy.DayOf(to)
	if to.Before(from) {
		return nil, newError(KindBadRequest, "endDate precedes startDate")
	}

	lctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	students, err := s.deps.Roster.ListByClass(lctx, classID)
	if err != nil {
		return nil, unavailable(err)
	}
	out := make([]Summary, 0, len(students))
	for _, st := range students {
		sum, err := s.summarize(ctx, st, from, to, false)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

func (s *Service) studentSummary(ctx context.Context, studentID string, from, to time.Time, withRecords bool) (Summary, error) {
	if to.Before(from) {
		return Summary{}, newError(KindBadRequest, "end precedes start")
	}
	student, err := s.student(ctx, studentID)
	if err != nil {
		return Summary{}, err
	}
	return s.summarize(ctx, student, from, to, withRecords)
}

// summarize reduces records into a Summary. Present days count only records
// whose status is Present on a scheduled session day.
func (s *Service) summarize(ctx context.Context, st roster.Student, from, to time.Time, withRecords bool) (Summary, error) {
	sessionDays, err := s.deps.Schedule.SessionDays(st.ClassID, from, to)
	if err != nil {
		return Summary{}, scheduleError(err)
	}

	lctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	records, err := s.deps.Ledger.ListRecords(lctx, st.ID, from, to)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return Summary{}, e
		}
		return Summary{}, unavailable(err)
	}

	sum := Summary{StudentID: st.ID, From: from, To: to, SessionDays: sessionDays, RecordedDays: len(records)}
	for _, rec := range records {
		switch rec.Status {
		case DayPresent:
			if n, err := s.deps.Schedule.SessionDays(st.ClassID, rec.Date, rec.Date); err == nil && n > 0 {
				sum.PresentDays++
			}
		case DayLate:
			sum.LateDays++
		case DayLeftEarly:
			sum.LeftEarlyDays++
		case DayIrregular:
			sum.IrregularDays++
		case DayAbsent:
			sum.AbsentDays++
		}
	}
	sum.Percentage = Percent(sum.PresentDays, sum.SessionDays)
	if withRecords {
		sum.Records = records
	}
	return sum, nil
}
