package schedule

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"campusattend/internal/policy"
)

// ErrNotLoaded is returned until the first successful Refresh.
var ErrNotLoaded = errors.New("schedule not loaded")

// Source supplies timetables maintained by schedule administration.
type Source interface {
	Timetables(ctx context.Context) ([]Timetable, error)
}

// StaticSource serves a fixed set of timetables.
type StaticSource []Timetable

// Timetables returns a copy of the fixed set.
func (s StaticSource) Timetables(context.Context) ([]Timetable, error) {
	return append([]Timetable(nil), s...), nil
}

// Provider keeps the current Index and swaps it atomically on Refresh, so
// readers never observe a half-built index.
type Provider struct {
	source  Source
	policy  policy.Policy
	current atomic.Pointer[Index]
}

// NewProvider creates a provider; call Refresh before serving.
func NewProvider(source Source, p policy.Policy) *Provider {
	return &Provider{source: source, policy: p}
}

// Refresh rebuilds the index from the source. The previous index stays in
// place when loading or validation fails.
func (p *Provider) Refresh(ctx context.Context) error {
	timetables, err := p.source.Timetables(ctx)
	if err != nil {
		return fmt.Errorf("load timetables: %w", err)
	}
	ix, err := NewIndex(timetables, p.policy)
	if err != nil {
		return fmt.Errorf("build schedule index: %w", err)
	}
	p.current.Store(ix)
	log.Printf("schedule refreshed: %d timetables, %d classes", len(timetables), len(ix.classes))
	return nil
}

func (p *Provider) index() (*Index, error) {
	ix := p.current.Load()
	if ix == nil {
		return nil, ErrNotLoaded
	}
	return ix, nil
}

// FindSession resolves the session applicable to an event at t.
func (p *Provider) FindSession(classID string, t time.Time) (Occurrence, error) {
	ix, err := p.index()
	if err != nil {
		return Occurrence{}, err
	}
	return ix.FindSession(classID, t)
}

// NextSession returns the next session later the same day.
func (p *Provider) NextSession(classID string, t time.Time) (Occurrence, error) {
	ix, err := p.index()
	if err != nil {
		return Occurrence{}, err
	}
	return ix.NextSession(classID, t)
}

// FindSessionWindow resolves a session by weekday and clock range.
func (p *Provider) FindSessionWindow(classID string, day time.Weekday, from, to Clock) (Session, error) {
	ix, err := p.index()
	if err != nil {
		return Session{}, err
	}
	return ix.FindSessionWindow(classID, day, from, to)
}

// Lookup materializes a session by id on a date.
func (p *Provider) Lookup(sessionID string, day time.Time) (Occurrence, error) {
	ix, err := p.index()
	if err != nil {
		return Occurrence{}, err
	}
	return ix.Lookup(sessionID, day)
}

// Ended lists sessions on day that are over at now.
func (p *Provider) Ended(day, now time.Time) ([]Occurrence, error) {
	ix, err := p.index()
	if err != nil {
		return nil, err
	}
	return ix.Ended(day, now), nil
}

// SessionDays counts the class session days in [from, to].
func (p *Provider) SessionDays(classID string, from, to time.Time) (int, error) {
	ix, err := p.index()
	if err != nil {
		return 0, err
	}
	return ix.SessionDays(classID, from, to), nil
}

// SemesterFor returns the semester bounds covering t for the class.
func (p *Provider) SemesterFor(classID string, t time.Time) (time.Time, time.Time, error) {
	ix, err := p.index()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	from, to, ok := ix.SemesterFor(classID, t)
	if !ok {
		return time.Time{}, time.Time{}, ErrNotFound
	}
	return from, to, nil
}
