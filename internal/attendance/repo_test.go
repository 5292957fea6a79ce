package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/policy"
)

var recordCols = []string{"id", "status", "exceptional", "exception_hours", "updated_at"}

func expectLockedRecord(mock sqlmock.Sqlmock, checkins *sqlmock.Rows) {
	expectLockedRecordWith(mock, checkins, sqlmock.NewRows([]string{"session_id", "detected_at"}))
}

func expectLockedRecordWith(mock sqlmock.Sqlmock, checkins, absences *sqlmock.Rows) {
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO attendance_records").
		WithArgs(sqlmock.AnyArg(), "s1", sqlmock.AnyArg(), "Absent").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("s1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(recordCols).AddRow("rec-1", "Absent", false, 0.0, time.Time{}))
	mock.ExpectQuery("FROM attendance_checkins WHERE record_id").WithArgs("rec-1").WillReturnRows(checkins)
	mock.ExpectQuery("FROM attendance_checkouts WHERE record_id").WithArgs("rec-1").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "checked_out_at", "duration_hours", "session_status"}))
	mock.ExpectQuery("FROM attendance_absences WHERE record_id").WithArgs("rec-1").
		WillReturnRows(absences)
}

func checkinRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"session_id", "checked_in_at", "status", "notes"})
}

func TestPostgresLedger_AppendCheckIn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPostgresLedger(db, policy.Default())
	key := Key{StudentID: "s1", Date: at(0, 0)}

	expectLockedRecord(mock, checkinRows())
	mock.ExpectExec("INSERT INTO attendance_checkins").
		WithArgs("rec-1", "math", sqlmock.AnyArg(), "Late", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE attendance_records").
		WithArgs("rec-1", "Late", false, 0.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := l.AppendCheckIn(context.Background(), key, CheckIn{SessionID: "math", Time: at(9, 5), Status: policy.StatusLate})
	require.NoError(t, err)
	assert.Equal(t, "rec-1", rec.ID)
	assert.Equal(t, DayLate, rec.Status)
	assert.Len(t, rec.CheckIns, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_CheckInDeletesAbsence(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPostgresLedger(db, policy.Default())
	key := Key{StudentID: "s1", Date: at(0, 0)}

	expectLockedRecordWith(mock, checkinRows(),
		sqlmock.NewRows([]string{"session_id", "detected_at"}).AddRow("quiz", at(9, 10)))
	mock.ExpectExec("DELETE FROM attendance_absences").
		WithArgs("rec-1", "quiz").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO attendance_checkins").
		WithArgs("rec-1", "quiz", sqlmock.AnyArg(), "Late", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE attendance_records").
		WithArgs("rec-1", "Late", false, 0.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := l.AppendCheckIn(context.Background(), key, CheckIn{SessionID: "quiz", Time: at(9, 12), Status: policy.StatusLate})
	require.NoError(t, err)
	assert.Empty(t, rec.Absences)
	assert.Len(t, rec.CheckIns, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_DuplicateRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPostgresLedger(db, policy.Default())
	key := Key{StudentID: "s1", Date: at(0, 0)}

	expectLockedRecord(mock, checkinRows().AddRow("math", at(8, 55), "OnTime", ""))
	mock.ExpectRollback()

	_, err = l.AppendCheckIn(context.Background(), key, CheckIn{SessionID: "math", Time: at(9, 0), Status: policy.StatusOnTime})
	assert.ErrorIs(t, err, ErrDuplicateCheckIn)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_UniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPostgresLedger(db, policy.Default())
	key := Key{StudentID: "s1", Date: at(0, 0)}

	expectLockedRecord(mock, checkinRows())
	mock.ExpectExec("INSERT INTO attendance_checkins").
		WillReturnError(&pgconn.PgError{Code: "23505", TableName: "attendance_checkins"})
	mock.ExpectRollback()

	_, err = l.AppendCheckIn(context.Background(), key, CheckIn{SessionID: "math", Time: at(9, 0), Status: policy.StatusOnTime})
	assert.Equal(t, KindDuplicateCheckIn, KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_StoreErrorsAreRetryable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPostgresLedger(db, policy.Default())
	mock.ExpectBegin().WillReturnError(errors.New("connection reset"))

	_, err = l.AppendCheckIn(context.Background(), Key{StudentID: "s1", Date: at(0, 0)}, CheckIn{SessionID: "math"})
	assert.True(t, Retryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_AppendAbsenceSkipsCheckedIn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPostgresLedger(db, policy.Default())
	key := Key{StudentID: "s1", Date: at(0, 0)}

	expectLockedRecord(mock, checkinRows().AddRow("math", at(8, 55), "OnTime", ""))
	mock.ExpectExec("UPDATE attendance_records").
		WithArgs("rec-1", "Present", false, 0.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, added, err := l.AppendAbsence(context.Background(), key, Absence{SessionID: "math", Time: at(10, 30)})
	require.NoError(t, err)
	assert.False(t, added)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_ListRecords(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPostgresLedger(db, policy.Default())
	from, to := at(0, 0), at(0, 0).AddDate(0, 0, 6)

	mock.ExpectQuery("SELECT id, day, status").
		WithArgs("s1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"id", "day", "status", "exceptional", "exception_hours", "updated_at"}).
			AddRow("rec-1", at(0, 0), "Late", false, 0.0, at(9, 5)).
			AddRow("rec-2", at(0, 0).AddDate(0, 0, 2), "Absent", false, 0.0, at(12, 0)))
	mock.ExpectQuery("FROM attendance_checkins e JOIN").
		WillReturnRows(sqlmock.NewRows([]string{"record_id", "session_id", "checked_in_at", "status", "notes"}).
			AddRow("rec-1", "math", at(9, 5), "Late", ""))
	mock.ExpectQuery("FROM attendance_checkouts e JOIN").
		WillReturnRows(sqlmock.NewRows([]string{"record_id", "session_id", "checked_out_at", "duration_hours", "session_status"}))
	mock.ExpectQuery("FROM attendance_absences e JOIN").
		WillReturnRows(sqlmock.NewRows([]string{"record_id", "session_id", "detected_at"}).
			AddRow("rec-2", "chem", at(10, 30)))

	recs, err := l.ListRecords(context.Background(), "s1", from, to)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, DayLate, recs[0].Status)
	assert.Len(t, recs[0].CheckIns, 1)
	assert.Equal(t, policy.StatusLate, recs[0].CheckIns[0].Status)
	assert.Len(t, recs[1].Absences, 1)
	assert.Equal(t, "s1", recs[1].StudentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
