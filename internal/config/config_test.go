package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/flotilla")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, int64(1048576), cfg.Server.MaxBodyBytes)
	assert.Equal(t, time.Minute, cfg.Monitor.Interval())
	assert.Equal(t, 5*time.Minute, cfg.Monitor.ClaimedTimeout())
	assert.Equal(t, 10*time.Minute, cfg.Monitor.ProcessingTimeout())
	assert.Equal(t, 2*time.Minute, cfg.Monitor.BotDownThreshold())
	assert.Equal(t, 100, cfg.Monitor.MaxRecoveriesPerRun)
	assert.Equal(t, 10*time.Minute, cfg.Populator.Interval())
	assert.Equal(t, 5, cfg.Populator.BatchSize)
	assert.Equal(t, 10000, cfg.Populator.MaxPending)
	assert.Equal(t, 7*24*time.Hour, cfg.Cleanup.Retention())
	assert.Equal(t, 6*time.Hour, cfg.Cleanup.Interval())
	assert.Equal(t, "file", cfg.Datalake.Backend)
	assert.False(t, cfg.OTelEnabled)
}

func TestLoadRequiresDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.ErrorIs(t, err, ErrDSNRequired)
}

func TestLoadRejectsBadDatalakeBackend(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/flotilla")
	t.Setenv("DATALAKE_BACKEND", "s3")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATALAKE_BACKEND")
}

func TestLoadGCSBackendNeedsBucket(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/flotilla")
	t.Setenv("DATALAKE_BACKEND", "gcs")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("DATALAKE_BUCKET", "flotilla-results")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gcs", cfg.Datalake.Backend)
}

func TestMonitorConfigValidation(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/flotilla")
	t.Setenv("CLAIMED_JOB_TIMEOUT_SECONDS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLAIMED_JOB_TIMEOUT_SECONDS")
}

func TestBotConfigDefaults(t *testing.T) {
	cfg, err := LoadBotConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.ServerURL)
	assert.Equal(t, 2*time.Second, cfg.PollInterval())
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval())
}
