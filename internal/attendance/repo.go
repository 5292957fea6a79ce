package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"campusattend/internal/policy"
)

const uniqueViolation = "23505"

// PostgresLedger persists records in Postgres. Each mutation runs in one
// transaction holding a row lock on the record.
type PostgresLedger struct {
	db     *sql.DB
	policy policy.Policy
	now    func() time.Time
}

// NewPostgresLedger creates a ledger deriving statuses with p.
func NewPostgresLedger(db *sql.DB, p policy.Policy) *PostgresLedger {
	return &PostgresLedger{db: db, policy: p, now: time.Now}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type writeFn func(ctx context.Context, tx *sql.Tx, rec *Record) error

func (l *PostgresLedger) GetOrCreate(ctx context.Context, key Key) (Record, error) {
	return l.mutate(ctx, key, func(context.Context, *sql.Tx, *Record) error { return nil })
}

func (l *PostgresLedger) Get(ctx context.Context, key Key) (Record, error) {
	rec, err := l.load(ctx, l.db, key, false)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, newError(KindNotFound, "no attendance record for %s", key)
	}
	if err != nil {
		return Record{}, unavailable(err)
	}
	return rec, nil
}

// AppendCheckIn records a check-in.
func (l *PostgresLedger) AppendCheckIn(ctx context.Context, key Key, ci CheckIn) (Record, error) {
	return l.mutate(ctx, key, func(ctx context.Context, tx *sql.Tx, rec *Record) error {
		superseded, err := rec.addCheckIn(ci)
		if err != nil {
			return err
		}
		if superseded {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM attendance_absences WHERE record_id = $1 AND session_id = $2`,
				rec.ID, ci.SessionID); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO attendance_checkins (record_id, session_id, checked_in_at, status, notes)
			VALUES ($1, $2, $3, $4, $5)
		`, rec.ID, ci.SessionID, ci.Time, string(ci.Status), ci.Notes)
		return err
	})
}

// AppendCheckOut records a check-out after validating it against the check-in.
func (l *PostgresLedger) AppendCheckOut(ctx context.Context, key Key, co CheckOut, classify func(time.Time) policy.CheckoutStatus) (Record, error) {
	return l.mutate(ctx, key, func(ctx context.Context, tx *sql.Tx, rec *Record) error {
		stored, err := rec.addCheckOut(co, classify)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO attendance_checkouts (record_id, session_id, checked_out_at, duration_hours, session_status)
			VALUES ($1, $2, $3, $4, $5)
		`, rec.ID, stored.SessionID, stored.Time, stored.ClassDurationHours, string(stored.SessionStatus))
		return err
	})
}

// AppendAbsence records an absence unless one or a check-in already exists.
func (l *PostgresLedger) AppendAbsence(ctx context.Context, key Key, a Absence) (Record, bool, error) {
	var added bool
	rec, err := l.mutate(ctx, key, func(ctx context.Context, tx *sql.Tx, rec *Record) error {
		if added = rec.addAbsence(a); !added {
			return nil
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attendance_absences (record_id, session_id, detected_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (record_id, session_id) DO NOTHING
		`, rec.ID, a.SessionID, a.Time)
		return err
	})
	return rec, added, err
}

func (l *PostgresLedger) RecomputeDailyStatus(ctx context.Context, key Key) (Record, error) {
	return l.mutate(ctx, key, func(context.Context, *sql.Tx, *Record) error { return nil })
}

// SetException stores the exceptional-circumstance duration.
func (l *PostgresLedger) SetException(ctx context.Context, key Key, hours float64) (Record, error) {
	return l.mutate(ctx, key, func(_ context.Context, _ *sql.Tx, rec *Record) error {
		rec.setException(hours)
		return nil
	})
}

// ListRecords returns the student's records in [from, to] with their events.
func (l *PostgresLedger) ListRecords(ctx context.Context, studentID string, from, to time.Time) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, day, status, exceptional, exception_hours, updated_at
		FROM attendance_records
		WHERE student_id = $1 AND day BETWEEN $2 AND $3
		ORDER BY day
	`, studentID, from, to)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var (
		records []Record
		pos     = map[string]int{}
	)
	for rows.Next() {
		var (
			id, status  string
			day         time.Time
			exceptional bool
			hours       float64
			updated     time.Time
		)
		if err := rows.Scan(&id, &day, &status, &exceptional, &hours, &updated); err != nil {
			return nil, unavailable(err)
		}
		rec := newRecord(id, Key{StudentID: studentID, Date: l.localDay(day)})
		rec.Status = DayStatus(status)
		rec.ExceptionalCircumstances = exceptional
		rec.ExceptionDurationHours = hours
		rec.UpdatedAt = updated
		pos[id] = len(records)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	scope := `JOIN attendance_records r ON r.id = e.record_id WHERE r.student_id = $1 AND r.day BETWEEN $2 AND $3`
	err = l.eachRow(ctx, l.db, `SELECT e.record_id, e.session_id, e.checked_in_at, e.status, e.notes FROM attendance_checkins e `+scope+` ORDER BY e.checked_in_at`,
		[]any{studentID, from, to}, func(rows *sql.Rows) error {
			var (
				recordID string
				ci       CheckIn
			)
			if err := rows.Scan(&recordID, &ci.SessionID, &ci.Time, &ci.Status, &ci.Notes); err != nil {
				return err
			}
			if i, ok := pos[recordID]; ok {
				records[i].CheckIns = append(records[i].CheckIns, ci)
			}
			return nil
		})
	if err != nil {
		return nil, unavailable(err)
	}
	err = l.eachRow(ctx, l.db, `SELECT e.record_id, e.session_id, e.checked_out_at, e.duration_hours, e.session_status FROM attendance_checkouts e `+scope+` ORDER BY e.checked_out_at`,
		[]any{studentID, from, to}, func(rows *sql.Rows) error {
			var (
				recordID string
				co       CheckOut
			)
			if err := rows.Scan(&recordID, &co.SessionID, &co.Time, &co.ClassDurationHours, &co.SessionStatus); err != nil {
				return err
			}
			if i, ok := pos[recordID]; ok {
				records[i].CheckOuts = append(records[i].CheckOuts, co)
			}
			return nil
		})
	if err != nil {
		return nil, unavailable(err)
	}
	err = l.eachRow(ctx, l.db, `SELECT e.record_id, e.session_id, e.detected_at FROM attendance_absences e `+scope+` ORDER BY e.detected_at`,
		[]any{studentID, from, to}, func(rows *sql.Rows) error {
			var (
				recordID string
				a        Absence
			)
			if err := rows.Scan(&recordID, &a.SessionID, &a.Time); err != nil {
				return err
			}
			if i, ok := pos[recordID]; ok {
				records[i].Absences = append(records[i].Absences, a)
			}
			return nil
		})
	if err != nil {
		return nil, unavailable(err)
	}
	return records, nil
}

// mutate locks (creating if needed) the record row, applies fn and writes
// the derived status, all in one transaction.
func (l *PostgresLedger) mutate(ctx context.Context, key Key, fn writeFn) (Record, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO attendance_records (id, student_id, day, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id, day) DO NOTHING
	`, uuid.NewString(), key.StudentID, key.Date, string(DayAbsent)); err != nil {
		return Record{}, unavailable(err)
	}

	rec, err := l.load(ctx, tx, key, true)
	if err != nil {
		return Record{}, unavailable(err)
	}
	if err := fn(ctx, tx, &rec); err != nil {
		return Record{}, mapWriteError(err)
	}

	rec.Status = DeriveStatus(rec, l.policy)
	rec.UpdatedAt = l.now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE attendance_records
		SET status = $2, exceptional = $3, exception_hours = $4, updated_at = $5
		WHERE id = $1
	`, rec.ID, string(rec.Status), rec.ExceptionalCircumstances, rec.ExceptionDurationHours, rec.UpdatedAt); err != nil {
		return Record{}, unavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, unavailable(err)
	}
	return rec, nil
}

func (l *PostgresLedger) load(ctx context.Context, q queryer, key Key, forUpdate bool) (Record, error) {
	query := `
		SELECT id, status, exceptional, exception_hours, updated_at
		FROM attendance_records
		WHERE student_id = $1 AND day = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rec := newRecord("", key)
	if err := q.QueryRowContext(ctx, query, key.StudentID, key.Date).
		Scan(&rec.ID, &rec.Status, &rec.ExceptionalCircumstances, &rec.ExceptionDurationHours, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}

	err := l.eachRow(ctx, q, `SELECT session_id, checked_in_at, status, notes FROM attendance_checkins WHERE record_id = $1 ORDER BY checked_in_at`,
		[]any{rec.ID}, func(rows *sql.Rows) error {
			var ci CheckIn
			if err := rows.Scan(&ci.SessionID, &ci.Time, &ci.Status, &ci.Notes); err != nil {
				return err
			}
			rec.CheckIns = append(rec.CheckIns, ci)
			return nil
		})
	if err != nil {
		return Record{}, err
	}
	err = l.eachRow(ctx, q, `SELECT session_id, checked_out_at, duration_hours, session_status FROM attendance_checkouts WHERE record_id = $1 ORDER BY checked_out_at`,
		[]any{rec.ID}, func(rows *sql.Rows) error {
			var co CheckOut
			if err := rows.Scan(&co.SessionID, &co.Time, &co.ClassDurationHours, &co.SessionStatus); err != nil {
				return err
			}
			rec.CheckOuts = append(rec.CheckOuts, co)
			return nil
		})
	if err != nil {
		return Record{}, err
	}
	err = l.eachRow(ctx, q, `SELECT session_id, detected_at FROM attendance_absences WHERE record_id = $1 ORDER BY detected_at`,
		[]any{rec.ID}, func(rows *sql.Rows) error {
			var a Absence
			if err := rows.Scan(&a.SessionID, &a.Time); err != nil {
				return err
			}
			rec.Absences = append(rec.Absences, a)
			return nil
		})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (l *PostgresLedger) eachRow(ctx context.Context, q queryer, query string, args []any, fn func(*sql.Rows) error) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// localDay moves a DATE column value onto midnight in the policy timezone.
func (l *PostgresLedger) localDay(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, l.policy.Loc())
}

// mapWriteError keeps business errors and turns unique violations into
// duplicates; anything else is an infrastructure failure.
func mapWriteError(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.TableName {
		case "attendance_checkins":
			return &Error{Kind: KindDuplicateCheckIn, Reason: "already checked in", Err: err}
		case "attendance_checkouts":
			return &Error{Kind: KindDuplicateCheckOut, Reason: "already checked out", Err: err}
		}
	}
	return unavailable(err)
}
