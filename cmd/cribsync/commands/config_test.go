package commands

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "https://schools.mybrightwheel.com", config.Brightwheel.BaseUrl)
	require.Equal(t, 7, config.Sync.DaysBack)
	require.Equal(t, 50, config.Sync.BatchSize)
	require.Equal(t, 4, config.Sync.Workers)
	require.Equal(t, 3, config.Sync.RetryMaxAttempts)
	require.Equal(t, 1.0, config.Sync.RetryDelaySeconds)
	require.False(t, config.Sync.DryRun)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("BRIGHTWHEEL_USERNAME", "parent@example.com")
	t.Setenv("BRIGHTWHEEL_SESSION_COOKIE", "cookie-from-env")
	t.Setenv("NARA_EMAIL", "parent@example.com")
	t.Setenv("SYNC_DAYS_BACK", "30")
	t.Setenv("RETRY_DELAY_SECONDS", "0.5")
	t.Setenv("DRY_RUN", "true")

	config, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "parent@example.com", config.Brightwheel.Username)
	require.Equal(t, "cookie-from-env", config.Brightwheel.SessionCookie)
	require.Equal(t, 30, config.Sync.DaysBack)
	require.Equal(t, 0.5, config.Sync.RetryDelaySeconds)
	require.True(t, config.Sync.DryRun)
}

func TestLoadConfigIgnoresMalformedEnv(t *testing.T) {
	t.Setenv("SYNC_DAYS_BACK", "not-a-number")

	config, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 7, config.Sync.DaysBack)
}
