package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/backupvault/core/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MODE", "REDIS_HOST", "REDIS_PORT", "REDIS_USERNAME", "REDIS_PASSWORD",
		"DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASSWORD",
		"ENCRYPTION_SECRET", "TEMP_BACKUP_DIR", "BACKUP_DIR",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadRequiresEncryptionSecret(t *testing.T) {
	clearEnv(t)
	_, err := config.Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENCRYPTION_SECRET", "test-secret-at-least-32-characters-long")
	t.Setenv("MODE", "bogus")
	_, err := config.Load()
	require.Error(t, err)
}

func TestLoadDefaultsAndModeHelpers(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENCRYPTION_SECRET", "test-secret-at-least-32-characters-long")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, config.ModeBoth, cfg.Mode)
	require.True(t, cfg.RunsAPI())
	require.True(t, cfg.RunsWorkers())
	require.Equal(t, "localhost", cfg.RedisHost)
	require.Equal(t, "6379", cfg.RedisPort)
	require.Equal(t, "backupvault", cfg.DBName)
}

func TestLoadWorkerOnlyMode(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENCRYPTION_SECRET", "test-secret-at-least-32-characters-long")
	t.Setenv("MODE", string(config.ModeWorkerOnly))

	cfg, err := config.Load()
	require.NoError(t, err)
	require.False(t, cfg.RunsAPI())
	require.True(t, cfg.RunsWorkers())
}

func TestLoadAPIOnlyMode(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENCRYPTION_SECRET", "test-secret-at-least-32-characters-long")
	t.Setenv("MODE", string(config.ModeAPIOnly))

	cfg, err := config.Load()
	require.NoError(t, err)
	require.True(t, cfg.RunsAPI())
	require.False(t, cfg.RunsWorkers())
}
