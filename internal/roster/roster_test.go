package roster

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Put(Student{ID: "s2", ClassID: "cse-a", EnrollmentStatus: StatusApproved})
	m.Put(Student{ID: "s1", ClassID: "cse-a", EnrollmentStatus: StatusPending})
	m.Put(Student{ID: "s3", ClassID: "ece-b", EnrollmentStatus: StatusApproved})
	m.SetNFCTag("s1", "tag-1")

	s, err := m.GetStudent(ctx, "s2")
	require.NoError(t, err)
	assert.True(t, s.Approved())

	_, err = m.GetStudent(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := m.ListByClass(ctx, "cse-a")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s1", list[0].ID)

	tag, err := m.GetNFCTag(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "tag-1", tag)

	tmpl, err := m.GetBiometricTemplate(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, tmpl)
}

func TestRepository_GetStudent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	mock.ExpectQuery("SELECT id, class_id, enrollment_status").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "class_id", "enrollment_status"}).AddRow("s1", "cse-a", "approved"))
	s, err := repo.GetStudent(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, s.EnrollmentStatus)

	mock.ExpectQuery("SELECT id, class_id, enrollment_status").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetStudent(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Credentials(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	mock.ExpectQuery("SELECT tag_id FROM nfc_tags").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"tag_id"}).AddRow("04:A2:19"))
	mock.ExpectQuery("SELECT template FROM biometric_templates").
		WithArgs("s1").
		WillReturnError(sql.ErrNoRows)

	tag, err := repo.GetNFCTag(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "04:A2:19", tag)

	tmpl, err := repo.GetBiometricTemplate(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, tmpl)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Upserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO students").
		WithArgs("s1", "cse-a", StatusApproved).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO nfc_tags").
		WithArgs("s1", "04:A2:19").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO biometric_templates").
		WithArgs("s1", []byte("sealed")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpsertStudent(ctx, Student{ID: "s1", ClassID: "cse-a", EnrollmentStatus: StatusApproved}))
	require.NoError(t, repo.UpsertNFCTag(ctx, "s1", "04:A2:19"))
	require.NoError(t, repo.UpsertBiometricTemplate(ctx, "s1", []byte("sealed")))
	assert.NoError(t, mock.ExpectationsWereMet())
}
