package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sept(day, hour, min int) time.Time {
	return time.Date(2024, time.September, day, hour, min, 0, 0, time.UTC)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, Percent(0, 0))
	assert.Equal(t, 0.0, Percent(3, 0))
	assert.InDelta(t, 50.0, Percent(1, 2), 1e-9)
}

func TestMonthly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, ts := range []time.Time{sept(2, 8, 50), sept(4, 8, 55), sept(9, 9, 5)} {
		_, err := f.svc.CheckIn(ctx, nfc("s1", ts))
		require.NoError(t, err)
	}

	sum, err := f.svc.Monthly(ctx, "s1", time.September, 2024)
	require.NoError(t, err)
	// five mondays and four wednesdays
	assert.Equal(t, 9, sum.SessionDays)
	assert.Equal(t, 3, sum.RecordedDays)
	assert.Equal(t, 2, sum.PresentDays)
	assert.Equal(t, 1, sum.LateDays)
	assert.InDelta(t, 2.0/9.0*100, sum.Percentage, 1e-9)
	assert.Len(t, sum.Records, 3)
}

func TestMonthly_NoSessionDays(t *testing.T) {
	f := newFixture(t)

	sum, err := f.svc.Monthly(context.Background(), "s1", time.January, 2024)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.SessionDays)
	assert.Equal(t, 0.0, sum.Percentage)

	_, err = f.svc.Monthly(context.Background(), "s1", 13, 2024)
	assert.Equal(t, KindBadRequest, KindOf(err))

	_, err = f.svc.Monthly(context.Background(), "nobody", time.January, 2024)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestSemester(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CheckIn(ctx, nfc("s2", sept(2, 8, 50)))
	require.NoError(t, err)

	sum, err := f.svc.Semester(ctx, "s2", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC), sum.From)
	assert.Equal(t, time.Date(2024, time.December, 20, 0, 0, 0, 0, time.UTC), sum.To)
	assert.Equal(t, 1, sum.PresentDays)
	assert.Greater(t, sum.SessionDays, 30)

	from, to := sept(1, 0, 0), sept(7, 0, 0)
	sum, err = f.svc.Semester(ctx, "s2", &from, &to)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.SessionDays)
	assert.InDelta(t, 50.0, sum.Percentage, 1e-9)

	f.svc.now = func() time.Time { return time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC) }
	_, err = f.svc.Semester(ctx, "s2", nil, nil)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestClassSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CheckIn(ctx, nfc("s1", sept(2, 8, 50)))
	require.NoError(t, err)
	_, err = f.svc.CheckIn(ctx, nfc("s2", sept(2, 9, 5)))
	require.NoError(t, err)

	sums, err := f.svc.ClassSummary(ctx, "cse-a", sept(1, 0, 0), sept(7, 0, 0))
	require.NoError(t, err)
	require.Len(t, sums, 4)

	byID := map[string]Summary{}
	for _, s := range sums {
		byID[s.StudentID] = s
		assert.Nil(t, s.Records)
	}
	assert.Equal(t, 1, byID["s1"].PresentDays)
	assert.Equal(t, 1, byID["s2"].LateDays)
	assert.Equal(t, 0, byID["s3"].RecordedDays)

	_, err = f.svc.ClassSummary(ctx, "cse-a", sept(7, 0, 0), sept(1, 0, 0))
	assert.Equal(t, KindBadRequest, KindOf(err))
}
