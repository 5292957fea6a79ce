package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/policy"
)

func at(hour, min int) time.Time {
	return time.Date(2024, time.September, 2, hour, min, 0, 0, time.UTC)
}

func TestDeriveStatus(t *testing.T) {
	p := policy.Default()

	testCases := []struct {
		name string
		rec  Record
		want DayStatus
	}{
		{"no events", Record{}, DayAbsent},
		{"absences only", Record{Absences: []Absence{{SessionID: "math"}}}, DayAbsent},
		{"on time", Record{CheckIns: []CheckIn{{SessionID: "math", Time: at(8, 55), Status: policy.StatusOnTime}}}, DayPresent},
		{"late", Record{CheckIns: []CheckIn{{SessionID: "math", Time: at(9, 5), Status: policy.StatusLate}}}, DayLate},
		{"very late counts as late", Record{CheckIns: []CheckIn{{SessionID: "lab", Time: at(13, 30), Status: policy.StatusVeryLate}}}, DayLate},
		{
			"left early beats late",
			Record{
				CheckIns:  []CheckIn{{SessionID: "math", Time: at(9, 5), Status: policy.StatusLate}},
				CheckOuts: []CheckOut{{SessionID: "math", Time: at(9, 50), SessionStatus: policy.CheckoutLeftEarly}},
			},
			DayLeftEarly,
		},
		{
			"irregular beats everything",
			Record{
				CheckIns: []CheckIn{
					{SessionID: "math", Time: at(9, 55), Status: policy.StatusOnTime},
					{SessionID: "phys", Time: at(10, 5), Status: policy.StatusLate},
				},
				CheckOuts: []CheckOut{{SessionID: "math", Time: at(9, 58), SessionStatus: policy.CheckoutLeftEarly}},
			},
			DayIrregular,
		},
		{
			"positive exception overrides",
			Record{Absences: []Absence{{SessionID: "math"}}, ExceptionalCircumstances: true, ExceptionDurationHours: 2},
			DayPresent,
		},
		{
			"zero exception does not override",
			Record{Absences: []Absence{{SessionID: "math"}}, ExceptionalCircumstances: true},
			DayAbsent,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveStatus(tc.rec, p))
		})
	}
}

func TestRecord_CheckOutRules(t *testing.T) {
	rec := newRecord("r1", Key{StudentID: "s1", Date: at(0, 0)})
	completed := func(time.Time) policy.CheckoutStatus { return policy.CheckoutCompleted }

	_, err := rec.addCheckOut(CheckOut{SessionID: "math", Time: at(10, 0)}, completed)
	assert.ErrorIs(t, err, ErrNoOpenSession)

	_, err = rec.addCheckIn(CheckIn{SessionID: "math", Time: at(8, 55), Status: policy.StatusOnTime})
	require.NoError(t, err)
	_, err = rec.addCheckIn(CheckIn{SessionID: "math", Time: at(8, 57)})
	assert.ErrorIs(t, err, ErrDuplicateCheckIn)

	tooEarly := func(time.Time) policy.CheckoutStatus { return policy.CheckoutTooEarly }
	_, err = rec.addCheckOut(CheckOut{SessionID: "math", Time: at(9, 5)}, tooEarly)
	assert.ErrorIs(t, err, ErrCheckoutTooEarly)
	assert.Empty(t, rec.CheckOuts)

	co, err := rec.addCheckOut(CheckOut{SessionID: "math", Time: at(10, 25)}, completed)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, co.ClassDurationHours, 1e-9)

	_, err = rec.addCheckOut(CheckOut{SessionID: "math", Time: at(10, 30)}, completed)
	assert.ErrorIs(t, err, ErrDuplicateCheckOut)
}

func TestRecord_AddAbsenceIsIdempotent(t *testing.T) {
	rec := newRecord("r1", Key{StudentID: "s1", Date: at(0, 0)})
	assert.True(t, rec.addAbsence(Absence{SessionID: "math", Time: at(10, 30)}))
	assert.False(t, rec.addAbsence(Absence{SessionID: "math", Time: at(11, 0)}))
	_, err := rec.addCheckIn(CheckIn{SessionID: "phys", Time: at(9, 55)})
	require.NoError(t, err)
	assert.False(t, rec.addAbsence(Absence{SessionID: "phys", Time: at(11, 30)}))
	assert.Len(t, rec.Absences, 1)
}

func TestRecord_CheckInSupersedesAbsence(t *testing.T) {
	rec := newRecord("r1", Key{StudentID: "s1", Date: at(0, 0)})
	require.True(t, rec.addAbsence(Absence{SessionID: "quiz", Time: at(9, 10)}))
	require.True(t, rec.addAbsence(Absence{SessionID: "phys", Time: at(11, 0)}))

	superseded, err := rec.addCheckIn(CheckIn{SessionID: "quiz", Time: at(9, 12), Status: policy.StatusLate})
	require.NoError(t, err)
	assert.True(t, superseded)
	require.Len(t, rec.Absences, 1)
	assert.Equal(t, "phys", rec.Absences[0].SessionID)
	assert.False(t, rec.HasAbsence("quiz"))

	superseded, err = rec.addCheckIn(CheckIn{SessionID: "lab", Time: at(13, 0)})
	require.NoError(t, err)
	assert.False(t, superseded)
}

func TestMemoryLedger_FailedMutationLeavesRecord(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(policy.Default())
	key := Key{StudentID: "s1", Date: at(0, 0)}

	rec, err := l.GetOrCreate(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, DayAbsent, rec.Status)
	id := rec.ID

	_, err = l.AppendCheckIn(ctx, key, CheckIn{SessionID: "math", Time: at(9, 5), Status: policy.StatusLate})
	require.NoError(t, err)
	_, err = l.AppendCheckIn(ctx, key, CheckIn{SessionID: "math", Time: at(9, 6), Status: policy.StatusLate})
	assert.ErrorIs(t, err, ErrDuplicateCheckIn)

	rec, err = l.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Len(t, rec.CheckIns, 1)
	assert.Equal(t, DayLate, rec.Status)

	rec, err = l.SetException(ctx, key, 3)
	require.NoError(t, err)
	assert.Equal(t, DayPresent, rec.Status)

	_, err = l.Get(ctx, Key{StudentID: "s2", Date: at(0, 0)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryLedger_ListRecords(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(policy.Default())
	for _, d := range []int{2, 3, 9} {
		_, err := l.GetOrCreate(ctx, Key{StudentID: "s1", Date: time.Date(2024, time.September, d, 0, 0, 0, 0, time.UTC)})
		require.NoError(t, err)
	}
	_, err := l.GetOrCreate(ctx, Key{StudentID: "s2", Date: at(0, 0)})
	require.NoError(t, err)

	recs, err := l.ListRecords(ctx, "s1", at(0, 0), time.Date(2024, time.September, 8, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, recs[0].Date.Before(recs[1].Date))
}

func TestErrorHelpers(t *testing.T) {
	assert.Equal(t, KindStoreUnavailable, KindOf(unavailable(context.DeadlineExceeded)))
	assert.True(t, Retryable(unavailable(context.DeadlineExceeded)))
	assert.False(t, Retryable(newError(KindDuplicateCheckIn, "x")))
	assert.Equal(t, KindInternal, KindOf(assert.AnError))
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, "too early", ReasonOf(newError(KindOutsideWindow, "too early")))
	assert.ErrorIs(t, unavailable(context.DeadlineExceeded), context.DeadlineExceeded)
}
