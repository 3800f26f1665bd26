package store_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/backupvault/core/internal/envelope"
	"github.com/backupvault/core/internal/store"
)

// newDB opens a fresh, uniquely-named in-memory sqlite database per test so
// tests never observe each other's rows despite sharing a process.
func newDB(t *testing.T) (*store.JobStore, *store.DestinationStore, *store.RunStore) {
	t.Helper()
	require.NoError(t, envelope.Init("test-secret-at-least-32-characters-long"))

	gdb, err := store.Open(store.Config{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	return store.NewJobStore(gdb), store.NewDestinationStore(gdb), store.NewRunStore(gdb)
}

func TestJobCreateAndListEnabled(t *testing.T) {
	jobs, _, _ := newDB(t)
	ctx := context.Background()

	sched := "0 * * * *"
	job := &store.BackupJob{
		Name:     "nightly-pg",
		Type:     store.SourcePostgres,
		Schedule: &sched,
		Enabled:  true,
	}
	require.NoError(t, jobs.Create(ctx, job))

	disabled := &store.BackupJob{Name: "off", Type: store.SourceMySQL, Enabled: false}
	require.NoError(t, jobs.Create(ctx, disabled))

	enabled, err := jobs.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	require.Equal(t, "nightly-pg", enabled[0].Name)
}

func TestJobGetByIDNotFound(t *testing.T) {
	jobs, _, _ := newDB(t)
	_, err := jobs.GetByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDestinationRequiresCredentialProviderForS3(t *testing.T) {
	_, dests, _ := newDB(t)
	err := dests.Create(context.Background(), &store.Destination{
		Name: "bucket",
		Type: store.DestinationS3,
	})
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestRunOutcomeLifecycle(t *testing.T) {
	jobs, _, runs := newDB(t)
	ctx := context.Background()

	job := &store.BackupJob{Name: "j", Type: store.SourcePostgres, Enabled: true}
	require.NoError(t, jobs.Create(ctx, job))

	runID := uuid.New()
	outcome, err := runs.CreateOutcome(ctx, job.ID, nil, runID)
	require.NoError(t, err)
	require.Equal(t, store.RunStatusRunning, outcome.Status)
	require.NotNil(t, outcome.LastHeartbeatAt)

	require.NoError(t, runs.Heartbeat(ctx, outcome.ID))

	size := int64(1024)
	require.NoError(t, runs.Complete(ctx, outcome.ID, size, "/out/x.sql.gz", nil, nil))

	got, err := runs.GetOutcome(ctx, outcome.ID)
	require.NoError(t, err)
	require.Equal(t, store.RunStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.FileSize)
	require.Equal(t, size, *got.FileSize)
}

func TestCompleteIsNoOpOnAlreadyTerminalRow(t *testing.T) {
	jobs, _, runs := newDB(t)
	ctx := context.Background()

	job := &store.BackupJob{Name: "j", Type: store.SourcePostgres, Enabled: true}
	require.NoError(t, jobs.Create(ctx, job))

	outcome, err := runs.CreateOutcome(ctx, job.ID, nil, uuid.New())
	require.NoError(t, err)

	require.NoError(t, runs.Fail(ctx, outcome.ID, "boom", nil))
	// Completing an already-failed row must leave it failed.
	require.NoError(t, runs.Complete(ctx, outcome.ID, 1, "/out/late.sql.gz", nil, nil))
	// A heartbeat racing the terminal write must not resurrect the row.
	require.NoError(t, runs.Heartbeat(ctx, outcome.ID))

	got, err := runs.GetOutcome(ctx, outcome.ID)
	require.NoError(t, err)
	require.Equal(t, store.RunStatusFailed, got.Status)
}

func TestAggregatedRunPartialStatus(t *testing.T) {
	jobs, _, runs := newDB(t)
	ctx := context.Background()

	job := &store.BackupJob{Name: "j", Type: store.SourcePostgres, Enabled: true}
	require.NoError(t, jobs.Create(ctx, job))

	runID := uuid.New()
	a, err := runs.CreateOutcome(ctx, job.ID, nil, runID)
	require.NoError(t, err)
	b, err := runs.CreateOutcome(ctx, job.ID, nil, runID)
	require.NoError(t, err)

	size := int64(10)
	require.NoError(t, runs.Complete(ctx, a.ID, size, "/out/a", nil, nil))
	require.NoError(t, runs.Fail(ctx, b.ID, "disk full", nil))

	history, err := runs.RunsForJob(ctx, job.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "partial", history[0].Status)
	require.Equal(t, 2, history[0].TotalDestinations)
	require.Equal(t, 1, history[0].SuccessfulDestinations)
	require.Equal(t, 1, history[0].FailedDestinations)
}

func TestStatsBatch(t *testing.T) {
	jobs, _, runs := newDB(t)
	ctx := context.Background()

	job := &store.BackupJob{Name: "j", Type: store.SourcePostgres, Enabled: true}
	require.NoError(t, jobs.Create(ctx, job))

	outcome, err := runs.CreateOutcome(ctx, job.ID, nil, uuid.New())
	require.NoError(t, err)
	require.NoError(t, runs.Complete(ctx, outcome.ID, 10, "/out/a", nil, nil))

	stats, err := runs.StatsBatch(ctx, []uuid.UUID{job.ID})
	require.NoError(t, err)
	require.Equal(t, 1, stats[job.ID].Total)
	require.Equal(t, 1, stats[job.ID].Success)
	require.NotNil(t, stats[job.ID].LastSuccess)
}
