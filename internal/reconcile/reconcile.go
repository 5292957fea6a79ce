package reconcile

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"campusattend/internal/attendance"
	"campusattend/internal/keylock"
	"campusattend/internal/metrics"
	"campusattend/internal/policy"
	"campusattend/internal/roster"
	"campusattend/internal/schedule"
)

// Schedule lists finished sessions; *schedule.Provider satisfies it.
type Schedule interface {
	Ended(day, now time.Time) ([]schedule.Occurrence, error)
}

// Deps are the collaborators of a Reconciler.
type Deps struct {
	Schedule Schedule
	Roster   attendance.Roster
	Ledger   attendance.Ledger
	Locker   keylock.Locker
	Notifier attendance.Notifier // optional
}

// Report summarizes one sweep.
type Report struct {
	Sessions int // ended sessions considered
	Students int // approved students considered
	Marked   int // absences written
	Skipped  int // already checked in or already marked
	Failed   int // student/session pairs that errored
}

// Reconciler marks students absent from sessions they never checked into.
type Reconciler struct {
	deps    Deps
	policy  policy.Policy
	spec     string
	timeout  time.Duration
	lookback int
	now      func() time.Time
}

// New creates a reconciler running on the cron spec (e.g. "*/30 * * * *").
func New(deps Deps, p policy.Policy, spec string, timeout time.Duration) *Reconciler {
	if deps.Locker == nil {
		deps.Locker = keylock.NewInProcess()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Reconciler{deps: deps, policy: p, spec: spec, timeout: timeout, lookback: 1, now: time.Now}
}

// WithLookback makes each sweep revisit the previous days as well, so
// sessions ending after the last run of a day, or during downtime, are
// still marked. Negative values are treated as zero.
func (r *Reconciler) WithLookback(days int) *Reconciler {
	r.lookback = max(days, 0)
	return r
}

// SweepOnce marks absences for every ended session of today and of the
// lookback days before it. It is idempotent and continues past per-student
// failures.
func (r *Reconciler) SweepOnce(ctx context.Context) (Report, error) {
	var rep Report
	now := r.now()
	today := r.policy.DayOf(now)
	var ended []schedule.Occurrence
	for back := r.lookback; back >= 0; back-- {
		occs, err := r.deps.Schedule.Ended(today.AddDate(0, 0, -back), now)
		if err != nil {
			metrics.Sweeps.WithLabelValues("error").Inc()
			return rep, fmt.Errorf("list ended sessions: %w", err)
		}
		ended = append(ended, occs...)
	}
	rep.Sessions = len(ended)

	byClass := make(map[string][]schedule.Occurrence)
	var classes []string
	for _, occ := range ended {
		if _, seen := byClass[occ.Session.ClassID]; !seen {
			classes = append(classes, occ.Session.ClassID)
		}
		byClass[occ.Session.ClassID] = append(byClass[occ.Session.ClassID], occ)
	}

	for _, classID := range classes {
		if err := ctx.Err(); err != nil {
			metrics.Sweeps.WithLabelValues("interrupted").Inc()
			return rep, err
		}
		students, err := r.listClass(ctx, classID)
		if err != nil {
			log.Printf("reconcile: list class %s: %v", classID, err)
			rep.Failed += len(byClass[classID])
			metrics.SweepFailures.WithLabelValues("true").Inc()
			continue
		}
		for _, st := range students {
			if !st.Approved() {
				continue
			}
			rep.Students++
			for _, occ := range byClass[classID] {
				added, err := r.mark(ctx, st.ID, occ, now)
				switch {
				case err != nil:
					rep.Failed++
					retryable := attendance.Retryable(err)
					metrics.SweepFailures.WithLabelValues(strconv.FormatBool(retryable)).Inc()
					log.Printf("reconcile: student %s session %s (retryable=%v): %v", st.ID, occ.Session.ID, retryable, err)
				case added:
					rep.Marked++
				default:
					rep.Skipped++
				}
			}
		}
	}

	metrics.Absences.Add(float64(rep.Marked))
	metrics.Sweeps.WithLabelValues("ok").Inc()
	return rep, nil
}

func (r *Reconciler) listClass(ctx context.Context, classID string) ([]roster.Student, error) {
	lctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.deps.Roster.ListByClass(lctx, classID)
}

func (r *Reconciler) mark(ctx context.Context, studentID string, occ schedule.Occurrence, now time.Time) (bool, error) {
	key := attendance.Key{StudentID: studentID, Date: occ.Date}

	lockCtx, cancel := context.WithTimeout(ctx, r.timeout)
	unlock, err := r.deps.Locker.Lock(lockCtx, key.String())
	cancel()
	if err != nil {
		return false, &attendance.Error{Kind: attendance.KindStoreUnavailable, Reason: "lock busy", Err: err}
	}
	defer unlock()

	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	rec, added, err := r.deps.Ledger.AppendAbsence(mctx, key, attendance.Absence{SessionID: occ.Session.ID, Time: now})
	if err != nil {
		return false, err
	}
	if added && r.deps.Notifier != nil {
		r.deps.Notifier.Notify(mctx, attendance.Transition{
			Type: attendance.TransitionAbsence, StudentID: studentID, SessionID: occ.Session.ID,
			Date: occ.Date.Format("2006-01-02"), DayStatus: rec.Status, At: now,
		})
	}
	return added, nil
}

// Run sweeps once immediately, then on the cron schedule until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	sweep := func() {
		rep, err := r.SweepOnce(ctx)
		if err != nil {
			log.Printf("reconcile sweep failed: %v", err)
			return
		}
		log.Printf("reconcile sweep: sessions=%d students=%d marked=%d skipped=%d failed=%d",
			rep.Sessions, rep.Students, rep.Marked, rep.Skipped, rep.Failed)
	}

	c := cron.New(
		cron.WithLocation(r.policy.Loc()),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	if _, err := c.AddFunc(r.spec, sweep); err != nil {
		return fmt.Errorf("reconcile schedule %q: %w", r.spec, err)
	}

	sweep()
	c.Start()
	log.Printf("reconciler started schedule=%q", r.spec)
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
