package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_RollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS students").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err = Migrate(context.Background(), db)
	assert.ErrorContains(t, err, "migrate step 2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedis_NilIsUnhealthy(t *testing.T) {
	var r *Redis
	assert.False(t, r.Healthy(context.Background()))
	assert.False(t, (*DB)(nil).Healthy(context.Background()))
	assert.NoError(t, (*DB)(nil).Close())
	assert.NoError(t, r.Close())
}
