package maintenance_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/backupvault/core/internal/maintenance"
)

type countingReaper struct {
	calls int64
	stale int64
}

func (r *countingReaper) ReapStale(ctx context.Context, threshold time.Duration) (int64, error) {
	atomic.AddInt64(&r.calls, 1)
	return r.stale, nil
}

func TestLoopInvokesReaperOnInterval(t *testing.T) {
	reaper := &countingReaper{stale: 2}
	loop := maintenance.New(reaper, 10*time.Millisecond, time.Minute, zap.NewNop())

	loop.Start(context.Background())
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&reaper.calls) >= 2
	}, time.Second, 5*time.Millisecond)

	loop.Stop()
}

func TestLoopStopsCleanly(t *testing.T) {
	reaper := &countingReaper{}
	loop := maintenance.New(reaper, 5*time.Millisecond, time.Minute, zap.NewNop())

	loop.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	loop.Stop()

	callsAtStop := atomic.LoadInt64(&reaper.calls)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, callsAtStop, atomic.LoadInt64(&reaper.calls))
}

func TestNewAppliesDefaultsForZeroDurations(t *testing.T) {
	reaper := &countingReaper{}
	loop := maintenance.New(reaper, 0, 0, zap.NewNop())
	require.NotNil(t, loop)
}
