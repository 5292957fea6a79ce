package roster

import (
	"context"
	"database/sql"
	"errors"
)

// Repository reads students and their credentials from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetStudent returns a single student by id.
func (r *Repository) GetStudent(ctx context.Context, studentID string) (Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, class_id, enrollment_status
		FROM students WHERE id = $1
	`, studentID)
	var s Student
	if err := row.Scan(&s.ID, &s.ClassID, &s.EnrollmentStatus); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, ErrNotFound
		}
		return Student{}, err
	}
	return s, nil
}

// ListByClass returns every student enrolled in a class.
func (r *Repository) ListByClass(ctx context.Context, classID string) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, class_id, enrollment_status
		FROM students WHERE class_id = $1
		ORDER BY id
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.ClassID, &s.EnrollmentStatus); err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// GetNFCTag returns the registered tag, or "" when the student has none.
func (r *Repository) GetNFCTag(ctx context.Context, studentID string) (string, error) {
	var tag string
	err := r.db.QueryRowContext(ctx, `SELECT tag_id FROM nfc_tags WHERE student_id = $1`, studentID).Scan(&tag)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return tag, err
}

// GetBiometricTemplate returns the stored template, or nil when none is enrolled.
func (r *Repository) GetBiometricTemplate(ctx context.Context, studentID string) ([]byte, error) {
	var tmpl []byte
	err := r.db.QueryRowContext(ctx, `SELECT template FROM biometric_templates WHERE student_id = $1`, studentID).Scan(&tmpl)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return tmpl, err
}

// UpsertStudent creates or updates a student.
func (r *Repository) UpsertStudent(ctx context.Context, s Student) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (id, class_id, enrollment_status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			class_id = EXCLUDED.class_id,
			enrollment_status = EXCLUDED.enrollment_status,
			updated_at = NOW()
	`, s.ID, s.ClassID, s.EnrollmentStatus)
	return err
}

// UpsertNFCTag registers or replaces a student's tag.
func (r *Repository) UpsertNFCTag(ctx context.Context, studentID, tagID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO nfc_tags (student_id, tag_id)
		VALUES ($1, $2)
		ON CONFLICT (student_id) DO UPDATE SET tag_id = EXCLUDED.tag_id
	`, studentID, tagID)
	return err
}

// UpsertBiometricTemplate stores a (possibly sealed) template.
func (r *Repository) UpsertBiometricTemplate(ctx context.Context, studentID string, template []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO biometric_templates (student_id, template)
		VALUES ($1, $2)
		ON CONFLICT (student_id) DO UPDATE SET template = EXCLUDED.template
	`, studentID, template)
	return err
}
