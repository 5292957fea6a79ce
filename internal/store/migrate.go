package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id                TEXT PRIMARY KEY,
		class_id          TEXT NOT NULL,
		enrollment_status TEXT NOT NULL DEFAULT 'pending',
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS students_class_idx ON students (class_id)`,
	`CREATE TABLE IF NOT EXISTS nfc_tags (
		student_id TEXT PRIMARY KEY REFERENCES students (id) ON DELETE CASCADE,
		tag_id     TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS biometric_templates (
		student_id TEXT PRIMARY KEY REFERENCES students (id) ON DELETE CASCADE,
		template   BYTEA NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS timetables (
		id         TEXT PRIMARY KEY,
		class_id   TEXT NOT NULL,
		semester   INT NOT NULL DEFAULT 0,
		year       INT NOT NULL DEFAULT 0,
		start_date DATE,
		end_date   DATE
	)`,
	`CREATE TABLE IF NOT EXISTS class_sessions (
		id           TEXT PRIMARY KEY,
		timetable_id TEXT NOT NULL REFERENCES timetables (id) ON DELETE CASCADE,
		day          TEXT NOT NULL,
		start_minute INT NOT NULL,
		end_minute   INT NOT NULL CHECK (end_minute > start_minute),
		subject      TEXT NOT NULL DEFAULT '',
		instructor   TEXT NOT NULL DEFAULT '',
		subject_type TEXT NOT NULL DEFAULT 'LECTURE'
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id              TEXT PRIMARY KEY,
		student_id      TEXT NOT NULL,
		day             DATE NOT NULL,
		status          TEXT NOT NULL,
		exceptional     BOOLEAN NOT NULL DEFAULT FALSE,
		exception_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (student_id, day)
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_checkins (
		record_id     TEXT NOT NULL REFERENCES attendance_records (id) ON DELETE CASCADE,
		session_id    TEXT NOT NULL,
		checked_in_at TIMESTAMPTZ NOT NULL,
		status        TEXT NOT NULL,
		notes         TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (record_id, session_id)
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_checkouts (
		record_id      TEXT NOT NULL REFERENCES attendance_records (id) ON DELETE CASCADE,
		session_id     TEXT NOT NULL,
		checked_out_at TIMESTAMPTZ NOT NULL,
		duration_hours DOUBLE PRECISION NOT NULL,
		session_status TEXT NOT NULL,
		PRIMARY KEY (record_id, session_id)
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_absences (
		record_id   TEXT NOT NULL REFERENCES attendance_records (id) ON DELETE CASCADE,
		session_id  TEXT NOT NULL,
		detected_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (record_id, session_id)
	)`,
}

// Migrate creates the tables the repositories expect.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}
