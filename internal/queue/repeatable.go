package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RepeatableEntry is the persisted, inspectable form of a repeatable queue
// entry (spec §4.3 list_repeatable()).
type RepeatableEntry struct {
	Key      string    `json:"key"`
	Channel  string    `json:"channel"`
	Name     string    `json:"name"`
	Cron     string    `json:"cron"`
	Payload  string    `json:"payload"`
	Opts     Opts      `json:"opts"`
	NextRun  time.Time `json:"next_run"`
}

type repeatableRunner struct {
	key      string
	cancel   context.CancelFunc
	inFlight atomic.Bool
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron validates a cron expression without scheduling anything, used by
// the Scheduler to detect InvalidCron before calling EnqueueRepeatable (spec
// §4.4: "cron validity MUST be checked before enqueue").
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("queue: invalid cron %q: %w", expr, err)
	}
	return sched, nil
}

// EnqueueRepeatable registers a repeatable entry keyed by key, ticking
// according to cronExpr and enqueueing payload onto channel on every fire.
// At most one in-flight execution per key exists at any instant (spec §4.3):
// a fire is skipped (not queued, not double-counted) if the previous one
// from this key has not finished.
func (q *Queue) EnqueueRepeatable(ctx context.Context, channel, key, cronExpr, name, payload string, opts Opts) error {
	if _, err := q.channel(channel); err != nil {
		return err
	}
	sched, err := ParseCron(cronExpr)
	if err != nil {
		return err
	}

	entry := RepeatableEntry{
		Key: key, Channel: channel, Name: name, Cron: cronExpr,
		Payload: payload, Opts: opts, NextRun: sched.Next(time.Now()),
	}
	if err := q.saveRepeatableEntry(ctx, entry); err != nil {
		return err
	}

	q.mu.Lock()
	if existing, ok := q.repeatables[key]; ok {
		existing.cancel()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	runner := &repeatableRunner{key: key}
	q.repeatables[key] = runner
	q.mu.Unlock()

	q.wg.Add(1)
	go q.runRepeatable(runCtx, runner, sched, channel, key, name, payload, opts, cancel)
	return nil
}

func (q *Queue) runRepeatable(ctx context.Context, runner *repeatableRunner, sched cron.Schedule, channel, key, name, payload string, opts Opts, cancel context.CancelFunc) {
	defer q.wg.Done()
	defer cancel()

	for {
		next := sched.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if !runner.inFlight.CompareAndSwap(false, true) {
			q.logger.Info("skipping repeatable tick, previous execution still in flight",
				zap.String("key", key))
			continue
		}

		job, err := q.Enqueue(ctx, channel, name, payload, opts)
		if err != nil {
			q.logger.Error("failed to enqueue repeatable tick", zap.String("key", key), zap.Error(err))
			runner.inFlight.Store(false)
			continue
		}
		job.RepeatableKey = key
		q.saveJob(ctx, *job)
	}
}

func (q *Queue) markRepeatableIdle(key string) {
	q.mu.Lock()
	runner, ok := q.repeatables[key]
	q.mu.Unlock()
	if ok {
		runner.inFlight.Store(false)
	}
}

// RemoveRepeatable cancels the ticking goroutine for key and deletes its
// persisted entry.
func (q *Queue) RemoveRepeatable(ctx context.Context, key string) error {
	q.mu.Lock()
	runner, ok := q.repeatables[key]
	if ok {
		runner.cancel()
		delete(q.repeatables, key)
	}
	q.mu.Unlock()

	if err := q.rdb.SRem(ctx, repeatableSetKey(), key).Err(); err != nil {
		return fmt.Errorf("queue: remove repeatable %s: %w", key, err)
	}
	return q.rdb.Del(ctx, repeatableEntryKey(key)).Err()
}

// ListRepeatable returns every currently registered repeatable entry.
func (q *Queue) ListRepeatable(ctx context.Context) ([]RepeatableEntry, error) {
	keys, err := q.rdb.SMembers(ctx, repeatableSetKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: list repeatable: %w", err)
	}
	entries := make([]RepeatableEntry, 0, len(keys))
	for _, key := range keys {
		raw, err := q.rdb.Get(ctx, repeatableEntryKey(key)).Result()
		if err != nil {
			continue
		}
		var entry RepeatableEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (q *Queue) saveRepeatableEntry(ctx context.Context, entry RepeatableEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("queue: marshal repeatable entry: %w", err)
	}
	if err := q.rdb.Set(ctx, repeatableEntryKey(entry.Key), b, 0).Err(); err != nil {
		return fmt.Errorf("queue: save repeatable entry: %w", err)
	}
	return q.rdb.SAdd(ctx, repeatableSetKey(), entry.Key).Err()
}

func (q *Queue) stopAllRepeatables() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, runner := range q.repeatables {
		runner.cancel()
	}
}
