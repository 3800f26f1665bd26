package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/backupvault/core/internal/envelope"
)

// TestReapStaleTransitionsOrphanedRuns lives in package store (not store_test)
// because it needs to backdate last_heartbeat_at directly, which no public
// RunStore method allows — a real crash is the only other way to produce a
// stale running row.
func TestReapStaleTransitionsOrphanedRuns(t *testing.T) {
	require.NoError(t, envelope.Init("test-secret-at-least-32-characters-long"))

	gdb, err := Open(Config{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)

	jobs := NewJobStore(gdb)
	runs := NewRunStore(gdb)
	ctx := context.Background()

	job := &BackupJob{Name: "j", Type: SourcePostgres, Enabled: true}
	require.NoError(t, jobs.Create(ctx, job))

	outcome, err := runs.CreateOutcome(ctx, job.ID, nil, uuid.New())
	require.NoError(t, err)

	stale := time.Now().UTC().Add(-10 * time.Minute)
	require.NoError(t, gdb.Model(&RunOutcome{}).
		Where("id = ?", outcome.ID).
		Update("last_heartbeat_at", stale).Error)

	count, err := runs.ReapStale(ctx, 5*time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	got, err := runs.GetOutcome(ctx, outcome.ID)
	require.NoError(t, err)
	require.Equal(t, RunStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	require.Contains(t, *got.ErrorMessage, "orphaned")
}
