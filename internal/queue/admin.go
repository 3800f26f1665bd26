package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pause stops new pickups on channel; jobs already active continue to
// completion (spec §4.3 cancellation semantics).
func (q *Queue) Pause(channel string) error {
	ch, err := q.channel(channel)
	if err != nil {
		return err
	}
	ch.paused.Store(true)
	return nil
}

// Resume re-enables pickups on channel.
func (q *Queue) Resume(channel string) error {
	ch, err := q.channel(channel)
	if err != nil {
		return err
	}
	ch.paused.Store(false)
	return nil
}

// IsPaused reports whether channel is currently paused.
func (q *Queue) IsPaused(channel string) (bool, error) {
	ch, err := q.channel(channel)
	if err != nil {
		return false, err
	}
	return ch.paused.Load(), nil
}

// Drain removes all waiting entries on channel; active jobs are left to
// finish (spec §4.3: "drain only removes waiting entries").
func (q *Queue) Drain(ctx context.Context, channel string) error {
	if _, err := q.channel(channel); err != nil {
		return err
	}
	if err := q.rdb.Del(ctx, waitingKey(channel)).Err(); err != nil {
		return fmt.Errorf("queue: drain %s: %w", channel, err)
	}
	return nil
}

// Clean removes entries from the named terminal state older than olderThan.
// state must be "completed" or "failed".
func (q *Queue) Clean(ctx context.Context, channel, state string, olderThan time.Duration) (int, error) {
	var key string
	switch state {
	case "completed":
		key = completedKey(channel)
	case "failed":
		key = failedKey(channel)
	default:
		return 0, fmt.Errorf("queue: clean: unsupported state %q", state)
	}

	cutoff := time.Now().Add(-olderThan).UnixMilli()
	ids, err := q.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%d", cutoff)}).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: clean %s/%s: %w", channel, state, err)
	}
	for _, id := range ids {
		q.rdb.ZRem(ctx, key, id)
		q.rdb.Del(ctx, jobKey(id))
	}
	return len(ids), nil
}

func (q *Queue) fetchPage(ctx context.Context, idsCmd *redis.StringSliceCmd) ([]Job, error) {
	ids, err := idsCmd.Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.loadJob(ctx, id)
		if err != nil {
			continue
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

// GetWaiting returns a page of waiting jobs on channel, oldest first.
func (q *Queue) GetWaiting(ctx context.Context, channel string, offset, limit int) ([]Job, error) {
	return q.fetchPage(ctx, q.rdb.LRange(ctx, waitingKey(channel), int64(offset), int64(offset+limit-1)))
}

// GetActive returns a page of currently active jobs on channel.
func (q *Queue) GetActive(ctx context.Context, channel string, offset, limit int) ([]Job, error) {
	return q.fetchPage(ctx, q.rdb.LRange(ctx, activeKey(channel), int64(offset), int64(offset+limit-1)))
}

// GetCompleted returns a page of completed jobs on channel, most recent first.
func (q *Queue) GetCompleted(ctx context.Context, channel string, offset, limit int) ([]Job, error) {
	return q.fetchPage(ctx, q.rdb.ZRevRange(ctx, completedKey(channel), int64(offset), int64(offset+limit-1)))
}

// GetFailed returns a page of failed jobs on channel, most recent first.
func (q *Queue) GetFailed(ctx context.Context, channel string, offset, limit int) ([]Job, error) {
	return q.fetchPage(ctx, q.rdb.ZRevRange(ctx, failedKey(channel), int64(offset), int64(offset+limit-1)))
}

// GetDelayed returns a page of delayed (awaiting retry) jobs on channel.
func (q *Queue) GetDelayed(ctx context.Context, channel string, offset, limit int) ([]Job, error) {
	return q.fetchPage(ctx, q.rdb.ZRange(ctx, delayedKey(channel), int64(offset), int64(offset+limit-1)))
}

// Retry re-enqueues a failed job immediately, resetting its delayed state.
// Used by the admin surface's retry-failed operation.
func (q *Queue) Retry(ctx context.Context, jobID string) error {
	job, err := q.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	q.rdb.ZRem(ctx, failedKey(job.Channel), jobID)
	q.rdb.ZRem(ctx, delayedKey(job.Channel), jobID)
	if err := q.rdb.RPush(ctx, waitingKey(job.Channel), jobID).Err(); err != nil {
		return fmt.Errorf("queue: retry %s: %w", jobID, err)
	}
	return nil
}

// Remove deletes a job record and its membership in every state list/set.
func (q *Queue) Remove(ctx context.Context, jobID string) error {
	job, err := q.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	q.rdb.LRem(ctx, waitingKey(job.Channel), 0, jobID)
	q.rdb.LRem(ctx, activeKey(job.Channel), 0, jobID)
	q.rdb.ZRem(ctx, delayedKey(job.Channel), jobID)
	q.rdb.ZRem(ctx, completedKey(job.Channel), jobID)
	q.rdb.ZRem(ctx, failedKey(job.Channel), jobID)
	return q.rdb.Del(ctx, jobKey(jobID)).Err()
}

// Stats reports the §4.3 stats(channel) summary.
type Stats struct {
	Waiting   int64
	Active    int64
	Completed int64
	Failed    int64
	Delayed   int64
	Paused    bool
}

// Stats returns the current counts for every state bucket on channel.
func (q *Queue) Stats(ctx context.Context, channel string) (Stats, error) {
	ch, err := q.channel(channel)
	if err != nil {
		return Stats{}, err
	}

	waiting, err := q.rdb.LLen(ctx, waitingKey(channel)).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("queue: stats waiting: %w", err)
	}
	active, err := q.rdb.LLen(ctx, activeKey(channel)).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("queue: stats active: %w", err)
	}
	completed, err := q.rdb.ZCard(ctx, completedKey(channel)).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("queue: stats completed: %w", err)
	}
	failed, err := q.rdb.ZCard(ctx, failedKey(channel)).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("queue: stats failed: %w", err)
	}
	delayed, err := q.rdb.ZCard(ctx, delayedKey(channel)).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("queue: stats delayed: %w", err)
	}

	return Stats{
		Waiting:   waiting,
		Active:    active,
		Completed: completed,
		Failed:    failed,
		Delayed:   delayed,
		Paused:    ch.paused.Load(),
	}, nil
}
