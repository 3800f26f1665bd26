package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/backupvault/core/internal/config"
	"github.com/backupvault/core/internal/credentials"
	"github.com/backupvault/core/internal/envelope"
	"github.com/backupvault/core/internal/executor"
	"github.com/backupvault/core/internal/maintenance"
	"github.com/backupvault/core/internal/notification"
	"github.com/backupvault/core/internal/queue"
	"github.com/backupvault/core/internal/scheduler"
	"github.com/backupvault/core/internal/store"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "backupvaultd",
		Short: "backupvaultd — the backup execution core: scheduler, work queue, and job executor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), logLevel)
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", envOrDefault("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("backupvaultd %s (commit: %s)\n", version, commit)
		},
	}
}

func run(ctx context.Context, logLevel string) error {
	logger, err := buildLogger(logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger.Info("starting backupvaultd",
		zap.String("version", version),
		zap.String("mode", string(cfg.Mode)),
		zap.Bool("runs_api", cfg.RunsAPI()),
		zap.Bool("runs_workers", cfg.RunsWorkers()),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- 1. Encryption ---
	// Init must run before the store is opened so decrypt_fields/encrypt_fields
	// calls made while loading jobs never race an uninitialized key.
	if err := envelope.Init(cfg.EncryptionSecret); err != nil {
		return fmt.Errorf("failed to initialize secret envelope: %w", err)
	}

	// --- 2. Database ---
	// store.Open always applies pending migrations; spec §6 reserves that
	// for API-enabled instances, but a worker-only instance still needs a
	// live connection to read jobs and write run history, so it opens the
	// same way — only the outer HTTP/API layer this core does not implement
	// would skip straight to a bare connection in a true worker-only binary.
	gormDB, err := store.Open(store.Config{
		Driver: "postgres",
		DSN: fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=disable",
			cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBUser, cfg.DBPassword),
		Logger:   logger,
		LogLevel: gormLogLevel(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer closeDB(gormDB, logger)

	if !cfg.RunsWorkers() {
		// API-only: migrations have run; the HTTP surface this core does not
		// implement would start here. Just wait for shutdown.
		<-ctx.Done()
		return nil
	}

	jobStore := store.NewJobStore(gormDB)
	destStore := store.NewDestinationStore(gormDB)
	credStore := store.NewCredentialProviderStore(gormDB)
	runStore := store.NewRunStore(gormDB)

	// --- 3. Redis-backed work queue ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()

	q := queue.New(rdb, logger)

	resolver := credentials.New(credStore)
	exec := executor.New(executor.Config{
		Jobs:          jobStore,
		Destinations:  destStore,
		Runs:          runStore,
		Resolver:      resolver,
		Notifier:      notification.LogSink{Log: func(e notification.Event) { logNotification(logger, e) }},
		Logger:        logger,
		TempBackupDir: cfg.TempBackupDir,
		BackupDir:     cfg.BackupDir,
	})

	if err := q.RegisterHandler(queue.ChannelBackupJobs, exec.HandleQueueJob); err != nil {
		return fmt.Errorf("failed to register backup-jobs handler: %w", err)
	}
	if err := q.RegisterHandler(queue.ChannelSystemJobs, func(context.Context, queue.Job) error { return nil }); err != nil {
		return fmt.Errorf("failed to register system-jobs handler: %w", err)
	}

	if err := q.Start(ctx); err != nil {
		return fmt.Errorf("failed to start work queue: %w", err)
	}

	// --- 4. Scheduler ---
	sched := scheduler.New(jobStore, q, logger)
	if err := sched.InitializeAll(ctx); err != nil {
		logger.Error("scheduler initialization failed", zap.Error(err))
	}

	// --- 5. System Maintenance Loop (stale-run reaper) ---
	reaper := maintenance.New(runStore, maintenance.DefaultInterval, maintenance.DefaultHeartbeatThreshold, logger)
	reaper.Start(ctx)

	logger.Info("backupvaultd ready")

	// --- Wait for shutdown signal, then stop the reaper, stop new pickups and
	// wait for in-flight runs to return (their context is already cancelled
	// by the signal), and close the queue connection via the deferred
	// rdb.Close. ---
	<-ctx.Done()
	logger.Info("shutting down backupvaultd")

	reaper.Stop()
	q.Stop()

	logger.Info("backupvaultd stopped")
	return nil
}

func closeDB(db *gorm.DB, logger *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Warn("failed to close database connection", zap.Error(err))
	}
}

func logNotification(logger *zap.Logger, e notification.Event) {
	fields := []zap.Field{
		zap.String("event", e.Event),
		zap.String("job_name", e.JobName),
		zap.String("job_type", e.JobType),
		zap.Float64("duration_seconds", e.DurationSeconds),
		zap.Int("destinations", len(e.Destinations)),
	}
	if e.Event == "success" {
		logger.Info("backup notification", fields...)
	} else {
		logger.Warn("backup notification", fields...)
	}
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "info":
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
