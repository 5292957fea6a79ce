package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "memory", cfg.LedgerBackend)
	assert.Equal(t, "*/30 * * * *", cfg.ReconcileSchedule)
	assert.Equal(t, 1, cfg.ReconcileLookbackDays)
	assert.Equal(t, 3*time.Second, cfg.StoreTimeout)

	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, p.CheckInWindow)
	assert.Equal(t, 15*time.Minute, p.GracePeriod)
	assert.Equal(t, time.UTC, p.Loc())
	assert.Empty(t, p.Holidays)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GRACE_PERIOD", "10m")
	t.Setenv("CHECKIN_WINDOW", "not-a-duration")
	t.Setenv("POLICY_TIMEZONE", "Asia/Kolkata")
	t.Setenv("HOLIDAYS", "2024-10-02, ,2024-12-25")
	t.Setenv("REQUIRE_TERMINAL_AUTH", "true")
	t.Setenv("NOTIFY_WORKERS", "x")
	t.Setenv("RATE_LIMIT_PER_SEC", "2.5")

	cfg := Load()
	assert.True(t, cfg.RequireTerminalAuth)
	assert.Equal(t, 2, cfg.NotifyWorkers)
	assert.Equal(t, 2.5, cfg.RateLimitPerSec)
	assert.Equal(t, []string{"2024-10-02", "2024-12-25"}, cfg.Holidays)

	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, p.GracePeriod)
	assert.Equal(t, 30*time.Minute, p.CheckInWindow, "invalid values fall back")
	assert.Equal(t, "Asia/Kolkata", p.Loc().String())
	require.Len(t, p.Holidays, 2)
	assert.True(t, p.IsHoliday(time.Date(2024, time.December, 25, 12, 0, 0, 0, p.Loc())))
}

func TestPolicy_Errors(t *testing.T) {
	_, err := App{Timezone: "Mars/Olympus"}.Policy()
	assert.Error(t, err)

	_, err = App{Timezone: "UTC", Holidays: []string{"25/12/2024"}}.Policy()
	assert.ErrorContains(t, err, "HOLIDAYS")
}

func TestBiometricKey(t *testing.T) {
	key, err := App{}.BiometricKey()
	require.NoError(t, err)
	assert.Nil(t, key)

	key, err = App{BiometricKeyHex: "00ff"}.BiometricKey()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff}, key)

	_, err = App{BiometricKeyHex: "zz"}.BiometricKey()
	assert.Error(t, err)
}
