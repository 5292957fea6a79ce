package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"campusattend/internal/policy"
)

// ErrNotFound signals that no class is scheduled for the query.
var ErrNotFound = errors.New("no class scheduled at this time")

type entry struct {
	session   Session
	weekday   time.Weekday
	timetable *Timetable
}

// Index is a read-only view over a set of timetables. It is safe for
// concurrent use and is replaced wholesale on reload.
type Index struct {
	policy  policy.Policy
	byClass map[string][]entry
	byID    map[string]entry
	classes []string
}

// NewIndex validates the timetables and builds an index over them.
func NewIndex(timetables []Timetable, p policy.Policy) (*Index, error) {
	ix := &Index{
		policy:  p,
		byClass: make(map[string][]entry),
		byID:    make(map[string]entry),
	}

	daily := make([]map[time.Weekday]time.Duration, len(timetables))
	for i := range timetables {
		tt := &timetables[i]
		if tt.ClassID == "" {
			return nil, fmt.Errorf("timetable %s: class id required", tt.ID)
		}
		daily[i] = make(map[time.Weekday]time.Duration)
		for _, s := range tt.Sessions {
			wd, ok := s.Day.Weekday()
			if !ok {
				return nil, fmt.Errorf("session %s: unknown day %q", s.ID, s.Day)
			}
			if s.End <= s.Start {
				return nil, fmt.Errorf("session %s: end %s must be after start %s", s.ID, s.End, s.Start)
			}
			if _, dup := ix.byID[s.ID]; dup {
				return nil, fmt.Errorf("session %s: duplicate id", s.ID)
			}
			daily[i][wd] += s.Duration()

			s.ClassID = tt.ClassID
			e := entry{session: s, weekday: wd, timetable: tt}
			ix.byID[s.ID] = e
			ix.byClass[tt.ClassID] = append(ix.byClass[tt.ClassID], e)
		}
		if _, seen := ix.byClass[tt.ClassID]; !seen {
			ix.byClass[tt.ClassID] = nil
		}
	}

	if err := checkDailyCap(timetables, daily, p.MaxDailyDuration); err != nil {
		return nil, err
	}

	for classID, entries := range ix.byClass {
		sort.Slice(entries, func(i, j int) bool { return entries[i].session.Start < entries[j].session.Start })
		ix.classes = append(ix.classes, classID)
	}
	sort.Strings(ix.classes)
	return ix, nil
}

// checkDailyCap sums a class's sessions per weekday across every timetable
// whose date range overlaps, so split timetables cannot exceed the cap
// together.
func checkDailyCap(timetables []Timetable, daily []map[time.Weekday]time.Duration, limit time.Duration) error {
	if limit <= 0 {
		return nil
	}
	for i, tt := range timetables {
		for wd := range daily[i] {
			var total time.Duration
			for j, other := range timetables {
				if other.ClassID == tt.ClassID && tt.overlaps(other) {
					total += daily[j][wd]
				}
			}
			if total > limit {
				return fmt.Errorf("timetable %s: %s sessions of class %s exceed daily cap of %s",
					tt.ID, DayFor(wd), tt.ClassID, limit)
			}
		}
	}
	return nil
}

// Classes lists every class that has a timetable.
func (ix *Index) Classes() []string {
	return append([]string(nil), ix.classes...)
}

func (ix *Index) occurs(e entry, day time.Time) bool {
	return day.Weekday() == e.weekday && e.timetable.covers(day) && !ix.policy.IsHoliday(day)
}

func (ix *Index) materialize(e entry, day time.Time) Occurrence {
	return Occurrence{
		Session: e.session,
		Date:    day,
		Start:   e.session.Start.On(day),
		End:     e.session.End.On(day),
	}
}

// OccurrencesOn lists the class sessions held on the calendar date of day,
// ordered by start time.
func (ix *Index) OccurrencesOn(classID string, day time.Time) []Occurrence {
	day = ix.policy.DayOf(day)
	var out []Occurrence
	for _, e := range ix.byClass[classID] {
		if ix.occurs(e, day) {
			out = append(out, ix.materialize(e, day))
		}
	}
	return out
}

// FindSession returns the session applicable to an event at t. A session is
// applicable while t lies in [start-checkInWindow, end+lateCheckoutGrace].
// When several apply, sessions still running win over finished ones, then
// the closest start wins.
func (ix *Index) FindSession(classID string, t time.Time) (Occurrence, error) {
	var (
		best      Occurrence
		found     bool
		bestEnded bool
		bestDist  time.Duration
	)

	day := ix.policy.DayOf(t)
	for _, d := range []time.Time{day.AddDate(0, 0, -1), day, day.AddDate(0, 0, 1)} {
		for _, o := range ix.OccurrencesOn(classID, d) {
			if t.Before(o.Start.Add(-ix.policy.CheckInWindow)) || t.After(o.End.Add(ix.policy.LateCheckoutGrace)) {
				continue
			}
			ended := t.After(o.End)
			dist := absDuration(t.Sub(o.Start))
			if !found || (bestEnded && !ended) || (ended == bestEnded && dist < bestDist) {
				best, found, bestEnded, bestDist = o, true, ended, dist
			}
		}
	}
	if !found {
		return Occurrence{}, ErrNotFound
	}
	return best, nil
}

// NextSession returns the first session later on the same date that has not
// opened for check-in yet at t.
func (ix *Index) NextSession(classID string, t time.Time) (Occurrence, error) {
	for _, o := range ix.OccurrencesOn(classID, t) {
		if o.Start.After(t) {
			return o, nil
		}
	}
	return Occurrence{}, ErrNotFound
}

// FindSessionWindow returns the class session on weekday day overlapping the
// clock range [from, to], preferring the one starting closest to from.
func (ix *Index) FindSessionWindow(classID string, day time.Weekday, from, to Clock) (Session, error) {
	var (
		best     Session
		found    bool
		bestDist Clock
	)
	for _, e := range ix.byClass[classID] {
		if e.weekday != day || e.session.End < from || e.session.Start > to {
			continue
		}
		dist := e.session.Start - from
		if dist < 0 {
			dist = -dist
		}
		if !found || dist < bestDist {
			best, found, bestDist = e.session, true, dist
		}
	}
	if !found {
		return Session{}, ErrNotFound
	}
	return best, nil
}

// Lookup materializes a session by id on the calendar date of day.
func (ix *Index) Lookup(sessionID string, day time.Time) (Occurrence, error) {
	e, ok := ix.byID[sessionID]
	if !ok {
		return Occurrence{}, ErrNotFound
	}
	day = ix.policy.DayOf(day)
	if !ix.occurs(e, day) {
		return Occurrence{}, ErrNotFound
	}
	return ix.materialize(e, day), nil
}

// Ended lists, across all classes, the sessions on the date of day that are
// over at now.
func (ix *Index) Ended(day, now time.Time) []Occurrence {
	var out []Occurrence
	for _, classID := range ix.classes {
		for _, o := range ix.OccurrencesOn(classID, day) {
			if o.Ended(now) {
				out = append(out, o)
			}
		}
	}
	return out
}

// SessionDays counts the distinct dates in [from, to] on which the class
// has at least one session.
func (ix *Index) SessionDays(classID string, from, to time.Time) int {
	first, last := ix.policy.DayOf(from), ix.policy.DayOf(to)
	n := 0
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		if len(ix.OccurrencesOn(classID, d)) > 0 {
			n++
		}
	}
	return n
}

// SemesterFor returns the bounds of the class timetable covering t.
func (ix *Index) SemesterFor(classID string, t time.Time) (time.Time, time.Time, bool) {
	day := ix.policy.DayOf(t)
	for _, e := range ix.byClass[classID] {
		tt := e.timetable
		if tt.StartDate == nil || tt.EndDate == nil || !tt.covers(day) {
			continue
		}
		return ix.localDate(*tt.StartDate), ix.localDate(*tt.EndDate), true
	}
	return time.Time{}, time.Time{}, false
}

// localDate keeps the calendar date of a stored date, whatever its zone.
func (ix *Index) localDate(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, ix.policy.Loc())
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
