// Package maintenance implements the System Maintenance Loop (spec §4.5,
// §2): a sequential, fixed-interval ticker that invokes the stale-run reaper.
// Shaped like r3e-network-service_layer's automation.Scheduler.Start — a
// ticker plus a cancellable goroutine drained with a sync.WaitGroup on Stop —
// since that pack repo is the closest example of a ticking background loop
// with graceful shutdown outside the teacher itself.
package maintenance

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Reaper is the subset of the Run History Store's behavior this loop needs.
type Reaper interface {
	ReapStale(ctx context.Context, threshold time.Duration) (int64, error)
}

// DefaultInterval is the recommended maintenance loop period (spec §4.5).
const DefaultInterval = 2 * time.Minute

// DefaultHeartbeatThreshold is the recommended stale-run threshold, strictly
// greater than the heartbeat interval plus a safety margin (spec §4.5:
// interval=30s, threshold=5min).
const DefaultHeartbeatThreshold = 5 * time.Minute

// Loop periodically invokes Reaper.ReapStale on a fixed interval. Runs
// sequentially on the system-jobs channel's lone worker conceptually — in
// practice it is its own background goroutine, since the reaper has no
// queue entry of its own to pick up.
type Loop struct {
	reaper    Reaper
	interval  time.Duration
	threshold time.Duration
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Loop. interval and threshold default to the spec's
// recommended values if zero.
func New(reaper Reaper, interval, threshold time.Duration, logger *zap.Logger) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if threshold <= 0 {
		threshold = DefaultHeartbeatThreshold
	}
	return &Loop{
		reaper:    reaper,
		interval:  interval,
		threshold: threshold,
		logger:    logger.Named("maintenance"),
	}
}

// Start launches the ticking goroutine. Cancel via Stop for graceful
// shutdown.
func (l *Loop) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	l.wg.Add(1)
	go l.run(ctx)
}

// Stop signals the loop to exit and waits for the in-flight reap (if any) to
// finish.
func (l *Loop) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.reapOnce(ctx)
		}
	}
}

func (l *Loop) reapOnce(ctx context.Context) {
	count, err := l.reaper.ReapStale(ctx, l.threshold)
	if err != nil {
		l.logger.Error("stale run reap failed", zap.Error(err))
		return
	}
	if count > 0 {
		l.logger.Warn("reaped orphaned runs", zap.Int64("count", count))
	}
}
