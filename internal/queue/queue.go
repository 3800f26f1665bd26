// Package queue implements the durable, per-channel FIFO work queue: the
// broker between the Scheduler and the Job Executor. Two channels exist,
// "backup-jobs" (concurrency 2) and "system-jobs" (concurrency 1), each
// backed by Redis lists (waiting/active), a sorted set (delayed retries
// scored by next-attempt time), and two more sorted sets (completed/failed,
// scored by finish time for clean()). The keying and verb choices mirror the
// teacher's gocron singleton-mode job tagging for the repeatable half (see
// repeatable.go); the FIFO/retry half has no teacher analogue and is built
// directly against go-redis the way a broker-backed queue idiomatically is.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel names recognized by the queue.
const (
	ChannelBackupJobs = "backup-jobs"
	ChannelSystemJobs = "system-jobs"
)

// State is the lifecycle bucket a Job currently occupies.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateDelayed   State = "delayed"
)

// Opts are the per-entry options spec §4.3 names: retry budget and
// exponential backoff base, plus whether a terminal job's record is
// retained for admin inspection or deleted immediately.
type Opts struct {
	Attempts         int
	BackoffBaseMs    int64
	RemoveOnComplete bool
	RemoveOnFail     bool
}

// DefaultOpts matches a job's BackupJob.RetryCount (plumbed in by the
// Scheduler/Job Executor) with a 5s exponential backoff base.
func DefaultOpts(attempts int) Opts {
	if attempts <= 0 {
		attempts = 1
	}
	return Opts{Attempts: attempts, BackoffBaseMs: 5_000}
}

// Job is a queue entry. Payload is advisory (spec §4.3): the executor always
// re-fetches authoritative state from the store on pickup.
type Job struct {
	ID            string    `json:"id"`
	Channel       string    `json:"channel"`
	Name          string    `json:"name"`
	Payload       string    `json:"payload"`
	Opts          Opts      `json:"opts"`
	AttemptsMade  int       `json:"attempts_made"`
	RepeatableKey string    `json:"repeatable_key,omitempty"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
	LastError     string    `json:"last_error,omitempty"`
}

// HandlerFunc processes one job pickup. A non-nil error causes the queue to
// apply the retry/backoff policy (spec §4.3); the handler itself never
// retries internally (spec §4.8 failure semantics).
type HandlerFunc func(ctx context.Context, job Job) error

type channelState struct {
	concurrency int
	sem         chan struct{}
	paused      atomic.Bool
	handler     HandlerFunc
}

// Queue is the Work Queue. The zero value is not usable; construct with New.
type Queue struct {
	rdb      *redis.Client
	logger   *zap.Logger
	channels map[string]*channelState
	metrics  *Metrics

	mu          sync.Mutex
	repeatables map[string]*repeatableRunner

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Queue with the two fixed channels wired to the given
// Redis client. Queue metrics register against the Prometheus default
// registry; use NewWithRegistry to supply a dedicated one (tests).
func New(rdb *redis.Client, logger *zap.Logger) *Queue {
	return NewWithRegistry(rdb, logger, prometheus.DefaultRegisterer)
}

// NewWithRegistry is New with an explicit Prometheus registerer.
func NewWithRegistry(rdb *redis.Client, logger *zap.Logger, registerer prometheus.Registerer) *Queue {
	return &Queue{
		rdb:    rdb,
		logger: logger.Named("queue"),
		channels: map[string]*channelState{
			ChannelBackupJobs: newChannelState(2),
			ChannelSystemJobs: newChannelState(1),
		},
		metrics:     NewMetrics(registerer),
		repeatables: make(map[string]*repeatableRunner),
	}
}

func newChannelState(concurrency int) *channelState {
	return &channelState{concurrency: concurrency, sem: make(chan struct{}, concurrency)}
}

func (q *Queue) channel(name string) (*channelState, error) {
	ch, ok := q.channels[name]
	if !ok {
		return nil, fmt.Errorf("queue: unknown channel %q", name)
	}
	return ch, nil
}

// RegisterHandler wires the function invoked for every pickup on channel.
// Must be called before Start.
func (q *Queue) RegisterHandler(channel string, fn HandlerFunc) error {
	ch, err := q.channel(channel)
	if err != nil {
		return err
	}
	ch.handler = fn
	return nil
}

// Start launches the dispatcher and delayed-retry promoter goroutines for
// every channel. Call Stop to cancel them for graceful shutdown.
func (q *Queue) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	for name, ch := range q.channels {
		if ch.handler == nil {
			return fmt.Errorf("queue: no handler registered for channel %q", name)
		}
		q.wg.Add(1)
		go q.dispatchLoop(ctx, name, ch)
	}

	q.wg.Add(1)
	go q.promoteDelayedLoop(ctx)

	return nil
}

// Stop signals every dispatcher, promoter and repeatable goroutine to exit
// and waits for in-flight handler calls to return. In-flight handlers run
// under the same context, so they see it cancelled as well. It does not
// close the Redis client.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.stopAllRepeatables()
	q.wg.Wait()
}

func (q *Queue) dispatchLoop(ctx context.Context, name string, ch *channelState) {
	defer q.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		if ch.paused.Load() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case ch.sem <- struct{}{}:
		}

		res, err := q.rdb.BLPop(ctx, time.Second, waitingKey(name)).Result()
		if err != nil {
			<-ch.sem
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			q.logger.Warn("blpop failed", zap.String("channel", name), zap.Error(err))
			continue
		}

		jobID := res[1]
		job, err := q.loadJob(ctx, jobID)
		if err != nil {
			<-ch.sem
			q.logger.Warn("failed to load popped job", zap.String("job_id", jobID), zap.Error(err))
			continue
		}

		q.rdb.RPush(ctx, activeKey(name), jobID)
		q.metrics.ActiveJobs.WithLabelValues(name).Inc()

		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			defer func() { <-ch.sem }()
			defer q.metrics.ActiveJobs.WithLabelValues(name).Dec()
			q.run(ctx, name, ch, *job)
		}()
	}
}

func (q *Queue) run(ctx context.Context, channel string, ch *channelState, job Job) {
	start := time.Now()
	err := ch.handler(ctx, job)
	q.metrics.JobDuration.WithLabelValues(channel).Observe(time.Since(start).Seconds())
	q.rdb.LRem(context.Background(), activeKey(channel), 1, job.ID)

	if err == nil {
		q.metrics.JobsProcessedTotal.WithLabelValues(channel, "completed").Inc()
		q.finish(job, true, "")
		return
	}

	job.AttemptsMade++
	job.LastError = err.Error()
	if job.AttemptsMade >= job.Opts.Attempts {
		q.metrics.JobsProcessedTotal.WithLabelValues(channel, "failed").Inc()
		q.finish(job, false, err.Error())
		return
	}

	q.metrics.JobsRetriedTotal.WithLabelValues(channel).Inc()
	delay := time.Duration(job.Opts.BackoffBaseMs) * time.Millisecond
	for i := 1; i < job.AttemptsMade; i++ {
		delay *= 2
	}
	q.scheduleDelayed(job, delay)
}

func (q *Queue) finish(job Job, success bool, errMsg string) {
	ctx := context.Background()
	now := time.Now().UTC()

	if job.RepeatableKey != "" {
		defer q.markRepeatableIdle(job.RepeatableKey)
	}

	if success {
		if job.Opts.RemoveOnComplete {
			q.rdb.Del(ctx, jobKey(job.ID))
			return
		}
		q.saveJob(ctx, job)
		q.rdb.ZAdd(ctx, completedKey(job.Channel), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
		return
	}

	if job.Opts.RemoveOnFail {
		q.rdb.Del(ctx, jobKey(job.ID))
		return
	}
	job.LastError = errMsg
	q.saveJob(ctx, job)
	q.rdb.ZAdd(ctx, failedKey(job.Channel), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
}

func (q *Queue) scheduleDelayed(job Job, delay time.Duration) {
	ctx := context.Background()
	q.saveJob(ctx, job)
	nextRun := time.Now().Add(delay).UnixMilli()
	q.rdb.ZAdd(ctx, delayedKey(job.Channel), redis.Z{Score: float64(nextRun), Member: job.ID})
}

// promoteDelayedLoop moves due delayed jobs back onto their channel's
// waiting list every second.
func (q *Queue) promoteDelayedLoop(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name := range q.channels {
				q.promoteDelayed(ctx, name)
			}
		}
	}
}

func (q *Queue) promoteDelayed(ctx context.Context, channel string) {
	now := float64(time.Now().UnixMilli())
	ids, err := q.rdb.ZRangeByScore(ctx, delayedKey(channel), &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil || len(ids) == 0 {
		return
	}
	for _, id := range ids {
		q.rdb.ZRem(ctx, delayedKey(channel), id)
		q.rdb.RPush(ctx, waitingKey(channel), id)
	}
}

// Enqueue appends a new job to channel's waiting list.
func (q *Queue) Enqueue(ctx context.Context, channel, name, payload string, opts Opts) (*Job, error) {
	if _, err := q.channel(channel); err != nil {
		return nil, err
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("queue: generate job id: %w", err)
	}
	job := Job{
		ID:         id.String(),
		Channel:    channel,
		Name:       name,
		Payload:    payload,
		Opts:       opts,
		EnqueuedAt: time.Now().UTC(),
	}
	q.saveJob(ctx, job)
	if err := q.rdb.RPush(ctx, waitingKey(channel), job.ID).Err(); err != nil {
		return nil, fmt.Errorf("queue: enqueue: %w", err)
	}
	return &job, nil
}

func (q *Queue) saveJob(ctx context.Context, job Job) {
	b, err := json.Marshal(job)
	if err != nil {
		q.logger.Error("failed to marshal job", zap.Error(err))
		return
	}
	q.rdb.Set(ctx, jobKey(job.ID), b, 0)
}

func (q *Queue) loadJob(ctx context.Context, id string) (*Job, error) {
	raw, err := q.rdb.Get(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: load job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("queue: unmarshal job %s: %w", id, err)
	}
	return &job, nil
}
