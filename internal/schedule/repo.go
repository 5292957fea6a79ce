package schedule

import (
	"context"
	"database/sql"
	"time"
)

// Repository reads timetables from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Timetables loads every timetable with its sessions.
func (r *Repository) Timetables(ctx context.Context) ([]Timetable, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.class_id, t.semester, t.year, t.start_date, t.end_date,
		       s.id, s.day, s.start_minute, s.end_minute, s.subject, s.instructor, s.subject_type
		FROM timetables t
		LEFT JOIN class_sessions s ON s.timetable_id = t.id
		ORDER BY t.id, s.start_minute
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out []Timetable
		pos = map[string]int{}
	)
	for rows.Next() {
		var (
			tt                    Timetable
			startDate, endDate    sql.NullTime
			sessID, day           sql.NullString
			startMin, endMin      sql.NullInt64
			subject, instr, sType sql.NullString
		)
		if err := rows.Scan(&tt.ID, &tt.ClassID, &tt.Semester, &tt.Year, &startDate, &endDate,
			&sessID, &day, &startMin, &endMin, &subject, &instr, &sType); err != nil {
			return nil, err
		}

		i, ok := pos[tt.ID]
		if !ok {
			tt.StartDate = nullDate(startDate)
			tt.EndDate = nullDate(endDate)
			out = append(out, tt)
			i = len(out) - 1
			pos[tt.ID] = i
		}
		if !sessID.Valid {
			continue
		}
		out[i].Sessions = append(out[i].Sessions, Session{
			ID:         sessID.String,
			ClassID:    out[i].ClassID,
			Day:        Day(day.String),
			Start:      Clock(startMin.Int64),
			End:        Clock(endMin.Int64),
			Subject:    subject.String,
			Instructor: instr.String,
			Type:       SubjectType(sType.String),
		})
	}
	return out, rows.Err()
}

func nullDate(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// UpsertTimetable writes tt and replaces its sessions in one transaction.
func (r *Repository) UpsertTimetable(ctx context.Context, tt Timetable) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO timetables (id, class_id, semester, year, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			class_id = EXCLUDED.class_id,
			semester = EXCLUDED.semester,
			year = EXCLUDED.year,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date
	`, tt.ID, tt.ClassID, tt.Semester, tt.Year, dateArg(tt.StartDate), dateArg(tt.EndDate)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM class_sessions WHERE timetable_id = $1`, tt.ID); err != nil {
		return err
	}
	for _, s := range tt.Sessions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO class_sessions (id, timetable_id, day, start_minute, end_minute, subject, instructor, subject_type)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, s.ID, tt.ID, string(s.Day), int(s.Start), int(s.End), s.Subject, s.Instructor, string(s.Type)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func dateArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
