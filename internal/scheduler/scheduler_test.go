package scheduler_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/backupvault/core/internal/envelope"
	"github.com/backupvault/core/internal/scheduler"
	"github.com/backupvault/core/internal/store"
)

func newJobStore(t *testing.T) *store.JobStore {
	t.Helper()
	require.NoError(t, envelope.Init("test-secret-at-least-32-characters-long"))
	gdb, err := store.Open(store.Config{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	return store.NewJobStore(gdb)
}

func TestScheduleRejectsInvalidCron(t *testing.T) {
	jobs := newJobStore(t)
	sched := "not a cron"
	job := &store.BackupJob{Name: "bad", Type: store.SourcePostgres, Enabled: true, Schedule: &sched}
	require.NoError(t, jobs.Create(context.Background(), job))

	s := scheduler.New(jobs, nil, zap.NewNop())
	err := s.Schedule(context.Background(), job)
	require.Error(t, err)
}

func TestScheduleRejectsNilJobSchedule(t *testing.T) {
	jobs := newJobStore(t)
	job := &store.BackupJob{Name: "unscheduled", Type: store.SourcePostgres, Enabled: true}
	require.NoError(t, jobs.Create(context.Background(), job))

	s := scheduler.New(jobs, nil, zap.NewNop())
	err := s.Schedule(context.Background(), job)
	require.Error(t, err)
}
