// Package config reads the environment variables spec §6 names into a typed
// Config, following the teacher's envOrDefault-from-env-with-flag-override
// shape (server/cmd/server/main.go) lifted into its own package so
// cmd/backupvaultd and the test suite share one place that knows the names.
package config

import (
	"fmt"
	"os"
)

// Mode selects which subsystems a process instance runs.
type Mode string

const (
	ModeAPIOnly    Mode = "api-only"
	ModeWorkerOnly Mode = "worker-only"
	ModeBoth       Mode = "" // unset => both
)

// Config is the backup execution core's environment-derived configuration
// (spec §6).
type Config struct {
	Mode Mode

	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string

	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string

	EncryptionSecret string

	TempBackupDir string
	BackupDir     string
}

// Load reads Config from the process environment. ENCRYPTION_SECRET is
// required; every other field falls back to a development-friendly default.
func Load() (Config, error) {
	cfg := Config{
		Mode: Mode(os.Getenv("MODE")),

		RedisHost:     envOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     envOrDefault("REDIS_PORT", "6379"),
		RedisUsername: os.Getenv("REDIS_USERNAME"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		DBHost:     envOrDefault("DB_HOST", "localhost"),
		DBPort:     envOrDefault("DB_PORT", "5432"),
		DBName:     envOrDefault("DB_NAME", "backupvault"),
		DBUser:     envOrDefault("DB_USER", "backupvault"),
		DBPassword: os.Getenv("DB_PASSWORD"),

		EncryptionSecret: os.Getenv("ENCRYPTION_SECRET"),

		TempBackupDir: envOrDefault("TEMP_BACKUP_DIR", os.TempDir()),
		BackupDir:     envOrDefault("BACKUP_DIR", "./backups"),
	}

	if cfg.EncryptionSecret == "" {
		return Config{}, fmt.Errorf("config: ENCRYPTION_SECRET is required")
	}

	switch cfg.Mode {
	case ModeAPIOnly, ModeWorkerOnly, ModeBoth:
	default:
		return Config{}, fmt.Errorf("config: MODE must be %q, %q, or unset", ModeAPIOnly, ModeWorkerOnly)
	}

	return cfg, nil
}

// RunsAPI reports whether this mode starts migrations/API-facing components.
func (c Config) RunsAPI() bool { return c.Mode == ModeAPIOnly || c.Mode == ModeBoth }

// RunsWorkers reports whether this mode starts the scheduler/queue workers.
func (c Config) RunsWorkers() bool { return c.Mode == ModeWorkerOnly || c.Mode == ModeBoth }

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
