package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"campusattend/internal/credential"
	"campusattend/internal/keylock"
	"campusattend/internal/metrics"
	"campusattend/internal/policy"
	"campusattend/internal/roster"
	"campusattend/internal/schedule"
)

// Roster resolves students.
type Roster interface {
	GetStudent(ctx context.Context, studentID string) (roster.Student, error)
	ListByClass(ctx context.Context, classID string) ([]roster.Student, error)
}

// Verifier checks presented credentials.
type Verifier interface {
	Validate(ctx context.Context, studentID string, c credential.Credential) (bool, error)
}

// Schedule resolves sessions; *schedule.Provider satisfies it.
type Schedule interface {
	FindSession(classID string, t time.Time) (schedule.Occurrence, error)
	NextSession(classID string, t time.Time) (schedule.Occurrence, error)
	Lookup(sessionID string, day time.Time) (schedule.Occurrence, error)
	SessionDays(classID string, from, to time.Time) (int, error)
	SemesterFor(classID string, t time.Time) (time.Time, time.Time, error)
}

// Transition describes a successful state change, handed to a Notifier.
type Transition struct {
	Type        string    `json:"type"`
	StudentID   string    `json:"studentId"`
	SessionID   string    `json:"sessionId,omitempty"`
	Date        string    `json:"date"`
	EventStatus string    `json:"eventStatus,omitempty"`
	DayStatus   DayStatus `json:"dayStatus"`
	At          time.Time `json:"at"`
}

const (
	TransitionCheckIn   = "check_in"
	TransitionCheckOut  = "check_out"
	TransitionAbsence   = "absence"
	TransitionException = "exception"
)

// Notifier receives transitions. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, t Transition)
}

// Deps are the collaborators of Service.
type Deps struct {
	Roster   Roster
	Verifier Verifier
	Schedule Schedule
	Ledger   Ledger
	Locker   keylock.Locker
	Notifier Notifier // optional
}

// Event is a raw check-in or check-out from a terminal.
type Event struct {
	StudentID  string
	Credential credential.Credential
	Time       time.Time // zero means now
}

// Service runs the check-in and check-out state machines.
type Service struct {
	deps         Deps
	policy       policy.Policy
	storeTimeout time.Duration
	now          func() time.Time
}

// NewService creates a service. storeTimeout bounds every lookup, lock
// acquisition and ledger mutation.
func NewService(deps Deps, p policy.Policy, storeTimeout time.Duration) *Service {
	if storeTimeout <= 0 {
		storeTimeout = 3 * time.Second
	}
	if deps.Locker == nil {
		deps.Locker = keylock.NewInProcess()
	}
	return &Service{deps: deps, policy: p, storeTimeout: storeTimeout, now: time.Now}
}

// Policy returns the policy the service judges events with.
func (s *Service) Policy() policy.Policy { return s.policy }

// CheckIn validates the event, resolves and classifies the session and
// appends the check-in.
func (s *Service) CheckIn(ctx context.Context, evt Event) (rec Record, err error) {
	start := time.Now()
	defer func() { s.observe(TransitionCheckIn, start, err) }()

	student, at, err := s.admit(ctx, evt)
	if err != nil {
		return Record{}, err
	}

	occ, err := s.deps.Schedule.FindSession(student.ClassID, at)
	if errors.Is(err, schedule.ErrNotFound) {
		// judge an early arrival against the upcoming session
		if next, nextErr := s.deps.Schedule.NextSession(student.ClassID, at); nextErr == nil {
			occ, err = next, nil
		}
	}
	if err != nil {
		return Record{}, scheduleError(err)
	}
	status := policy.Classify(occ.Start, occ.End, at, s.policy)
	if status.Rejected() {
		return Record{}, newError(KindOutsideWindow, "%s", status.Reason())
	}

	key := Key{StudentID: student.ID, Date: occ.Date}
	ci := CheckIn{SessionID: occ.Session.ID, Time: at, Status: status}
	rec, err = s.withLock(ctx, key, func(ctx context.Context) (Record, error) {
		return s.deps.Ledger.AppendCheckIn(ctx, key, ci)
	})
	if err != nil {
		return Record{}, err
	}

	metrics.Events.WithLabelValues(TransitionCheckIn, string(status)).Inc()
	s.notify(ctx, Transition{Type: TransitionCheckIn, StudentID: student.ID, SessionID: ci.SessionID,
		Date: dateString(key.Date), EventStatus: string(status), DayStatus: rec.Status, At: at})
	return rec, nil
}

// CheckOut closes the student's open session.
func (s *Service) CheckOut(ctx context.Context, evt Event) (rec Record, err error) {
	start := time.Now()
	defer func() { s.observe(TransitionCheckOut, start, err) }()

	student, at, err := s.admit(ctx, evt)
	if err != nil {
		return Record{}, err
	}

	occ, findErr := s.deps.Schedule.FindSession(student.ClassID, at)
	if findErr != nil && !errors.Is(findErr, schedule.ErrNotFound) {
		return Record{}, scheduleError(findErr)
	}
	resolved := findErr == nil

	key := Key{StudentID: student.ID, Date: s.policy.DayOf(at)}
	if resolved {
		key.Date = occ.Date
	}

	var closed CheckOut
	rec, err = s.withLock(ctx, key, func(ctx context.Context) (Record, error) {
		current, err := s.deps.Ledger.Get(ctx, key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return Record{}, newError(KindNoOpenSession, "no check-in recorded")
			}
			return Record{}, err
		}

		ci, err := pickOpen(current, occ.Session.ID, resolved)
		if err != nil {
			return Record{}, err
		}
		sess, err := s.deps.Schedule.Lookup(ci.SessionID, key.Date)
		if err != nil {
			return Record{}, scheduleError(err)
		}
		classify := func(checkIn time.Time) policy.CheckoutStatus {
			return policy.ClassifyCheckout(checkIn, at, sess.Start, sess.End, s.policy)
		}
		updated, err := s.deps.Ledger.AppendCheckOut(ctx, key, CheckOut{SessionID: ci.SessionID, Time: at}, classify)
		if err == nil {
			closed, _ = updated.CheckOutFor(ci.SessionID)
		}
		return updated, err
	})
	if err != nil {
		return Record{}, err
	}

	metrics.Events.WithLabelValues(TransitionCheckOut, string(closed.SessionStatus)).Inc()
	s.notify(ctx, Transition{Type: TransitionCheckOut, StudentID: student.ID, SessionID: closed.SessionID,
		Date: dateString(key.Date), EventStatus: string(closed.SessionStatus), DayStatus: rec.Status, At: at})
	return rec, nil
}

// pickOpen chooses the check-in a check-out closes: the one for the session
// applicable now when it is open, otherwise the latest open one.
func pickOpen(rec Record, sessionID string, resolved bool) (CheckIn, error) {
	open := rec.OpenCheckIns()
	if resolved {
		for _, ci := range open {
			if ci.SessionID == sessionID {
				return ci, nil
			}
		}
	}
	if len(open) > 0 {
		return open[0], nil
	}
	if len(rec.CheckIns) == 0 {
		return CheckIn{}, newError(KindNoOpenSession, "no check-in recorded")
	}
	if resolved {
		if _, ok := rec.CheckInFor(sessionID); !ok {
			return CheckIn{}, newError(KindNoOpenSession, "no check-in for session %s", sessionID)
		}
	}
	return CheckIn{}, newError(KindDuplicateCheckOut, "already checked out")
}

// SetException records exceptional circumstances for a student's day.
func (s *Service) SetException(ctx context.Context, studentID string, date time.Time, hours float64) (Record, error) {
	if hours < 0 {
		return Record{}, newError(KindBadRequest, "exception duration must not be negative")
	}
	student, err := s.student(ctx, studentID)
	if err != nil {
		return Record{}, err
	}
	key := Key{StudentID: student.ID, Date: s.policy.DayOf(date)}
	rec, err := s.withLock(ctx, key, func(ctx context.Context) (Record, error) {
		return s.deps.Ledger.SetException(ctx, key, hours)
	})
	if err != nil {
		return Record{}, err
	}
	s.notify(ctx, Transition{Type: TransitionException, StudentID: student.ID, Date: dateString(key.Date),
		DayStatus: rec.Status, At: s.now().UTC()})
	return rec, nil
}

// admit runs the common validation steps of an event.
func (s *Service) admit(ctx context.Context, evt Event) (roster.Student, time.Time, error) {
	if evt.StudentID == "" {
		return roster.Student{}, time.Time{}, newError(KindBadRequest, "studentId required")
	}
	at := evt.Time
	if at.IsZero() {
		at = s.now()
	}

	student, err := s.student(ctx, evt.StudentID)
	if err != nil {
		return roster.Student{}, time.Time{}, err
	}
	if !student.Approved() {
		return roster.Student{}, time.Time{}, newError(KindNotApproved, "student enrollment is not approved")
	}

	lctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	ok, err := s.deps.Verifier.Validate(lctx, student.ID, evt.Credential)
	if err != nil {
		return roster.Student{}, time.Time{}, unavailable(err)
	}
	if !ok {
		return roster.Student{}, time.Time{}, newError(KindInvalidCredential, "invalid credential")
	}
	return student, at, nil
}

func (s *Service) student(ctx context.Context, studentID string) (roster.Student, error) {
	lctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	student, err := s.deps.Roster.GetStudent(lctx, studentID)
	if errors.Is(err, roster.ErrNotFound) {
		return roster.Student{}, newError(KindNotFound, "student not found")
	}
	if err != nil {
		return roster.Student{}, unavailable(err)
	}
	return student, nil
}

// withLock serializes fn on key. fn runs detached from the caller's
// cancellation so an accepted mutation completes or fails as a whole.
func (s *Service) withLock(ctx context.Context, key Key, fn func(ctx context.Context) (Record, error)) (Record, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	unlock, err := s.deps.Locker.Lock(lockCtx, key.String())
	cancel()
	if err != nil {
		return Record{}, unavailable(fmt.Errorf("lock %s: %w", key, err))
	}
	defer unlock()

	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()
	rec, err := fn(mctx)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return Record{}, e
		}
		return Record{}, unavailable(err)
	}
	return rec, nil
}

func (s *Service) notify(ctx context.Context, t Transition) {
	if s.deps.Notifier == nil {
		return
	}
	s.deps.Notifier.Notify(context.WithoutCancel(ctx), t)
}

func (s *Service) observe(typ string, start time.Time, err error) {
	metrics.EventDuration.WithLabelValues(typ).Observe(time.Since(start).Seconds())
	if err == nil {
		return
	}
	kind := KindOf(err)
	metrics.Rejections.WithLabelValues(typ, string(kind)).Inc()
	if kind == KindStoreUnavailable || kind == KindInternal {
		log.Printf("%s failed: %v", typ, err)
	}
}

func scheduleError(err error) error {
	switch {
	case errors.Is(err, schedule.ErrNotFound):
		return newError(KindNoSessionScheduled, "no class scheduled at this time")
	case errors.Is(err, schedule.ErrNotLoaded):
		return unavailable(err)
	}
	return &Error{Kind: KindInternal, Reason: "schedule lookup failed", Err: err}
}

func dateString(d time.Time) string { return d.Format("2006-01-02") }
