// Package scheduler maps enabled backup jobs with a valid cron expression
// onto repeatable Work Queue entries keyed "backup-job-{id}". It wraps the
// queue rather than gocron directly: gocron's singleton-mode tagged-job shape
// (tag = job UUID, RemoveByTags to unschedule) is the teacher's pattern for
// this exact problem, but here the tick target is a durable queue entry, not
// a direct in-process dispatch, so the ticking and singleton-guard logic
// lives in internal/queue and this package only reconciles which keys should
// exist.
package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/backupvault/core/internal/queue"
	"github.com/backupvault/core/internal/store"
)

const repeatableKeyPrefix = "backup-job-"

func repeatableKey(id uuid.UUID) string {
	return repeatableKeyPrefix + id.String()
}

// Scheduler reconciles BackupJob rows against the Work Queue's repeatable
// entry set. The zero value is not usable; construct with New.
type Scheduler struct {
	jobs   *store.JobStore
	queue  *queue.Queue
	logger *zap.Logger
}

// New creates a Scheduler backed by the given job store and Work Queue.
func New(jobs *store.JobStore, q *queue.Queue, logger *zap.Logger) *Scheduler {
	return &Scheduler{jobs: jobs, queue: q, logger: logger.Named("scheduler")}
}

// InitializeAll reconciles the repeatable entry set against the current
// enabled/cron job set (spec §4.4). It is idempotent: running it twice
// leaves the repeatable set identical to one run. Existing keys matching
// "backup-job-{id}" are removed first, then re-created from the current
// state, so stale entries (deleted jobs, disabled jobs, jobs with edited
// schedules) never linger.
func (s *Scheduler) InitializeAll(ctx context.Context) error {
	existing, err := s.queue.ListRepeatable(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: list repeatable entries: %w", err)
	}
	for _, entry := range existing {
		if len(entry.Key) > len(repeatableKeyPrefix) && entry.Key[:len(repeatableKeyPrefix)] == repeatableKeyPrefix {
			if err := s.queue.RemoveRepeatable(ctx, entry.Key); err != nil {
				s.logger.Warn("failed to remove stale repeatable entry",
					zap.String("key", entry.Key), zap.Error(err))
			}
		}
	}

	enabled, err := s.jobs.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: list enabled jobs: %w", err)
	}

	scheduled := 0
	for i := range enabled {
		job := &enabled[i]
		if job.Schedule == nil {
			continue
		}
		if err := s.Schedule(ctx, job); err != nil {
			s.logger.Warn("skipping job with invalid cron expression",
				zap.String("job_id", job.ID.String()),
				zap.String("job_name", job.Name),
				zap.Stringp("schedule", job.Schedule),
				zap.Error(err),
			)
			continue
		}
		scheduled++
	}

	s.logger.Info("scheduler initialized", zap.Int("jobs_scheduled", scheduled))
	return nil
}

// Schedule registers a single enabled job as a repeatable queue entry. Cron
// validity is checked before enqueueing; an invalid expression is returned
// as an error for the caller to log (spec §4.4: "not an error" at the
// reconciliation level — InitializeAll treats it as skip-and-log).
func (s *Scheduler) Schedule(ctx context.Context, job *store.BackupJob) error {
	if job.Schedule == nil {
		return fmt.Errorf("scheduler: job %s has no schedule", job.ID)
	}
	if _, err := queue.ParseCron(*job.Schedule); err != nil {
		return err
	}

	key := repeatableKey(job.ID)
	payload := job.ID.String()
	opts := queue.DefaultOpts(job.RetryCount)

	if err := s.queue.EnqueueRepeatable(ctx, queue.ChannelBackupJobs, key, *job.Schedule, job.Name, payload, opts); err != nil {
		return fmt.Errorf("scheduler: schedule job %s: %w", job.ID, err)
	}
	return nil
}

// Unschedule removes a job's repeatable queue entry.
func (s *Scheduler) Unschedule(ctx context.Context, jobID uuid.UUID) error {
	if err := s.queue.RemoveRepeatable(ctx, repeatableKey(jobID)); err != nil {
		return fmt.Errorf("scheduler: unschedule job %s: %w", jobID, err)
	}
	return nil
}

// Reschedule is unschedule-then-schedule, used after a job's cron expression
// or enabled state changes.
func (s *Scheduler) Reschedule(ctx context.Context, job *store.BackupJob) error {
	if err := s.Unschedule(ctx, job.ID); err != nil {
		return err
	}
	if !job.Enabled || job.Schedule == nil {
		return nil
	}
	return s.Schedule(ctx, job)
}
