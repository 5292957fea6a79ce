package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"campusattend/internal/policy"
)

// Ledger owns attendance records. Every mutation is applied atomically and
// recomputes the day status in the same step; a failed mutation leaves the
// record unchanged. Callers serialize mutations per Key.
type Ledger interface {
	GetOrCreate(ctx context.Context, key Key) (Record, error)
	// Get returns ErrNotFound when no record exists.
	Get(ctx context.Context, key Key) (Record, error)
	AppendCheckIn(ctx context.Context, key Key, ci CheckIn) (Record, error)
	AppendCheckOut(ctx context.Context, key Key, co CheckOut, classify func(checkIn time.Time) policy.CheckoutStatus) (Record, error)
	// AppendAbsence reports false when the session already has a check-in
	// or an absence.
	AppendAbsence(ctx context.Context, key Key, a Absence) (Record, bool, error)
	RecomputeDailyStatus(ctx context.Context, key Key) (Record, error)
	SetException(ctx context.Context, key Key, hours float64) (Record, error)
	// ListRecords returns a student's records with dates in [from, to], oldest first.
	ListRecords(ctx context.Context, studentID string, from, to time.Time) ([]Record, error)
}

// MemoryLedger keeps records in process memory.
type MemoryLedger struct {
	policy  policy.Policy
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// NewMemoryLedger creates an empty ledger deriving statuses with p.
func NewMemoryLedger(p policy.Policy) *MemoryLedger {
	return &MemoryLedger{policy: p, records: make(map[string]Record), now: time.Now}
}

func (l *MemoryLedger) GetOrCreate(ctx context.Context, key Key) (Record, error) {
	return l.mutate(ctx, key, func(*Record) error { return nil })
}

func (l *MemoryLedger) Get(ctx context.Context, key Key) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[key.String()]
	if !ok {
		return Record{}, newError(KindNotFound, "no attendance record for %s", key)
	}
	return rec.clone(), nil
}

func (l *MemoryLedger) AppendCheckIn(ctx context.Context, key Key, ci CheckIn) (Record, error) {
	return l.mutate(ctx, key, func(r *Record) error {
		_, err := r.addCheckIn(ci)
		return err
	})
}

func (l *MemoryLedger) AppendCheckOut(ctx context.Context, key Key, co CheckOut, classify func(time.Time) policy.CheckoutStatus) (Record, error) {
	return l.mutate(ctx, key, func(r *Record) error {
		_, err := r.addCheckOut(co, classify)
		return err
	})
}

func (l *MemoryLedger) AppendAbsence(ctx context.Context, key Key, a Absence) (Record, bool, error) {
	var added bool
	rec, err := l.mutate(ctx, key, func(r *Record) error {
		added = r.addAbsence(a)
		return nil
	})
	return rec, added, err
}

func (l *MemoryLedger) RecomputeDailyStatus(ctx context.Context, key Key) (Record, error) {
	return l.mutate(ctx, key, func(*Record) error { return nil })
}

func (l *MemoryLedger) SetException(ctx context.Context, key Key, hours float64) (Record, error) {
	return l.mutate(ctx, key, func(r *Record) error {
		r.setException(hours)
		return nil
	})
}

func (l *MemoryLedger) ListRecords(ctx context.Context, studentID string, from, to time.Time) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Record
	for _, rec := range l.records {
		if rec.StudentID != studentID || rec.Date.Before(from) || rec.Date.After(to) {
			continue
		}
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// mutate applies fn to a copy of the record and stores it only on success.
func (l *MemoryLedger) mutate(ctx context.Context, key Key, fn func(*Record) error) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key.String()]
	if ok {
		rec = rec.clone()
	} else {
		rec = newRecord(uuid.NewString(), key)
	}
	if err := fn(&rec); err != nil {
		return Record{}, err
	}
	rec.Status = DeriveStatus(rec, l.policy)
	rec.UpdatedAt = l.now().UTC()
	l.records[key.String()] = rec
	return rec.clone(), nil
}
