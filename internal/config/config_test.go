package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seasonmail/internal/types"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "local")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Environment)
	assert.Equal(t, DefaultTimezone, cfg.Timezone)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 6, cfg.Scheduler.DailyHour)
	assert.Equal(t, 20*time.Minute, cfg.Scheduler.RetryInterval)
	assert.Equal(t, 3, cfg.Scheduler.MaxRetries)
	assert.Equal(t, 50, cfg.Scheduler.RetryBatch)
	assert.Equal(t, "Season Reminders", cfg.Email.FromName)
}

func TestLoad_InvalidEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production-ish")

	_, err := Load()
	require.Error(t, err)

	var app *types.AppError
	require.True(t, errors.As(err, &app))
	assert.Equal(t, types.ErrCodeConfigInvalid, app.Code)
}

func TestLoad_InvalidTimezone(t *testing.T) {
	t.Setenv("PLATFORM_TIMEZONE", "Mars/Olympus_Mons")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeConfigInvalid, types.CodeOf(err))
}

func TestLoad_ExcludedSessions(t *testing.T) {
	t.Setenv("REMINDER_EXCLUDED_SESSIONS", "sess_legacy,sess_demo")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"sess_legacy", "sess_demo"}, cfg.Scheduler.ExcludedSessionIDs)
}

func TestCheckSendConfig(t *testing.T) {
	cfg := &Config{}
	cfg.Database.URL = "postgres://localhost/enroll"
	cfg.Email.FromAddress = "reminders@example.org"
	assert.NoError(t, cfg.CheckSendConfig())

	cfg.Email.FromAddress = ""
	err := cfg.CheckSendConfig()
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeConfigMissing, types.CodeOf(err))

	cfg.Database.URL = ""
	assert.Error(t, cfg.CheckSendConfig())
}

func TestLocation(t *testing.T) {
	cfg := &Config{Timezone: "America/New_York"}
	assert.Equal(t, "America/New_York", cfg.Location().String())
}
