package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RunStore implements the Run History Store (spec §4.5): the durable state
// machine of runs, grouped by run_id, with heartbeat-driven liveness and a
// stale-run reaper. Every write goes through a short, single-statement
// transaction; terminal transitions and heartbeats are guarded by
// `WHERE status = 'running'` so a heartbeat racing a terminal write can never
// resurrect a completed/failed row (spec §9's "concurrent heartbeats +
// terminal transitions" design note).
type RunStore struct {
	db *gorm.DB
}

// NewRunStore returns a RunStore backed by the provided *gorm.DB.
func NewRunStore(db *gorm.DB) *RunStore {
	return &RunStore{db: db}
}

// CreateOutcome opens a new RunOutcome row in the running state.
func (s *RunStore) CreateOutcome(ctx context.Context, jobID uuid.UUID, destinationID *uuid.UUID, runID uuid.UUID) (*RunOutcome, error) {
	now := time.Now().UTC()
	outcome := &RunOutcome{
		JobID:           jobID,
		DestinationID:   destinationID,
		RunID:           runID,
		Status:          RunStatusRunning,
		StartedAt:       now,
		LastHeartbeatAt: &now,
	}
	if err := s.db.WithContext(ctx).Create(outcome).Error; err != nil {
		return nil, fmt.Errorf("store: create run outcome: %w", err)
	}
	return outcome, nil
}

// Heartbeat advances last_heartbeat_at for a running outcome. It is a no-op
// (not an error) if the row has already reached a terminal state — racing a
// heartbeat against a concurrent complete/fail/reap must never resurrect a
// finished outcome.
func (s *RunStore) Heartbeat(ctx context.Context, outcomeID uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Model(&RunOutcome{}).
		Where("id = ? AND status = ?", outcomeID, RunStatusRunning).
		Update("last_heartbeat_at", time.Now().UTC()).Error
	if err != nil {
		return fmt.Errorf("store: heartbeat: %w", err)
	}
	return nil
}

// Complete transitions an outcome from running to completed. Only applies if
// the row is still running; completing an already-terminal row is a no-op.
func (s *RunStore) Complete(ctx context.Context, outcomeID uuid.UUID, fileSize int64, filePath string, metadata, executionLog *string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       RunStatusCompleted,
		"completed_at": now,
		"file_size":    fileSize,
		"file_path":    filePath,
	}
	if metadata != nil {
		updates["metadata"] = *metadata
	}
	if executionLog != nil {
		updates["execution_log"] = *executionLog
	}
	err := s.db.WithContext(ctx).
		Model(&RunOutcome{}).
		Where("id = ? AND status = ?", outcomeID, RunStatusRunning).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("store: complete outcome: %w", err)
	}
	return nil
}

// Fail transitions an outcome from running to failed.
func (s *RunStore) Fail(ctx context.Context, outcomeID uuid.UUID, errorMessage string, executionLog *string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":        RunStatusFailed,
		"completed_at":  now,
		"error_message": errorMessage,
	}
	if executionLog != nil {
		updates["execution_log"] = *executionLog
	}
	err := s.db.WithContext(ctx).
		Model(&RunOutcome{}).
		Where("id = ? AND status = ?", outcomeID, RunStatusRunning).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("store: fail outcome: %w", err)
	}
	return nil
}

// ReapStale transitions every running outcome whose last_heartbeat_at is
// older than threshold to failed, with a stable orphaned-run error message.
// Returns the number of rows transitioned.
func (s *RunStore) ReapStale(ctx context.Context, threshold time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	now := time.Now().UTC()

	result := s.db.WithContext(ctx).
		Model(&RunOutcome{}).
		Where("status = ? AND last_heartbeat_at < ?", RunStatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":        RunStatusFailed,
			"completed_at":  now,
			"error_message": "run orphaned (no heartbeat)",
		})
	if result.Error != nil {
		return 0, fmt.Errorf("store: reap stale outcomes: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// GetOutcome retrieves a single outcome row by ID.
func (s *RunStore) GetOutcome(ctx context.Context, id uuid.UUID) (*RunOutcome, error) {
	var outcome RunOutcome
	err := s.db.WithContext(ctx).First(&outcome, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get outcome: %w", err)
	}
	return &outcome, nil
}

// AggregatedRun is the read-only derived view spec §3 defines over the
// outcome rows sharing one run_id.
type AggregatedRun struct {
	RunID                  uuid.UUID
	JobID                  uuid.UUID
	TotalDestinations      int
	SuccessfulDestinations int
	FailedDestinations     int
	Status                 string // "completed" | "partial" | "failed" | "running"
	TotalSize              int64
	StartedAt              time.Time
	CompletedAt            *time.Time
	Outcomes               []RunOutcome
}

// aggregate folds a run_id's outcome rows into an AggregatedRun.
func aggregate(runID uuid.UUID, outcomes []RunOutcome) AggregatedRun {
	agg := AggregatedRun{RunID: runID, Outcomes: outcomes}
	if len(outcomes) == 0 {
		return agg
	}
	agg.JobID = outcomes[0].JobID
	agg.StartedAt = outcomes[0].StartedAt
	running, succeeded, failed := 0, 0, 0
	for _, o := range outcomes {
		agg.TotalDestinations++
		if o.StartedAt.Before(agg.StartedAt) {
			agg.StartedAt = o.StartedAt
		}
		if o.FileSize != nil {
			agg.TotalSize += *o.FileSize
		}
		switch o.Status {
		case RunStatusRunning:
			running++
		case RunStatusCompleted:
			succeeded++
			if o.CompletedAt != nil && (agg.CompletedAt == nil || o.CompletedAt.After(*agg.CompletedAt)) {
				agg.CompletedAt = o.CompletedAt
			}
		case RunStatusFailed:
			failed++
			if o.CompletedAt != nil && (agg.CompletedAt == nil || o.CompletedAt.After(*agg.CompletedAt)) {
				agg.CompletedAt = o.CompletedAt
			}
		}
	}
	agg.SuccessfulDestinations = succeeded
	agg.FailedDestinations = failed

	switch {
	case running > 0:
		agg.Status = "running"
	case succeeded > 0 && failed > 0:
		agg.Status = "partial"
	case failed > 0:
		agg.Status = "failed"
	default:
		agg.Status = "completed"
	}
	return agg
}

// groupByRun folds a flat outcome slice into one AggregatedRun per run_id,
// preserving the order run_ids were first seen in outcomes.
func groupByRun(outcomes []RunOutcome) []AggregatedRun {
	order := make([]uuid.UUID, 0)
	byRun := make(map[uuid.UUID][]RunOutcome)
	for _, o := range outcomes {
		if _, ok := byRun[o.RunID]; !ok {
			order = append(order, o.RunID)
		}
		byRun[o.RunID] = append(byRun[o.RunID], o)
	}
	runs := make([]AggregatedRun, 0, len(order))
	for _, runID := range order {
		runs = append(runs, aggregate(runID, byRun[runID]))
	}
	return runs
}

// RecentHistory returns the most recent runs across all jobs, most recent
// first.
func (s *RunStore) RecentHistory(ctx context.Context, limit int) ([]AggregatedRun, error) {
	var outcomes []RunOutcome
	if err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit * 8). // over-fetch since multiple rows share one run_id
		Find(&outcomes).Error; err != nil {
		return nil, fmt.Errorf("store: recent history: %w", err)
	}
	runs := groupByRun(outcomes)
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// RunsForJob returns a paginated list of aggregated runs for one job.
func (s *RunStore) RunsForJob(ctx context.Context, jobID uuid.UUID, page, limit int) ([]AggregatedRun, error) {
	var outcomes []RunOutcome
	offset := page * limit
	if err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("started_at DESC").
		Find(&outcomes).Error; err != nil {
		return nil, fmt.Errorf("store: runs for job: %w", err)
	}
	runs := groupByRun(outcomes)
	if offset >= len(runs) {
		return []AggregatedRun{}, nil
	}
	end := offset + limit
	if end > len(runs) {
		end = len(runs)
	}
	return runs[offset:end], nil
}

// JobStats is the per-job summary StatsBatch returns.
type JobStats struct {
	Total          int
	Success        int
	Failed         int
	LastRun        *time.Time
	LastSuccess    *time.Time
	AvgDurationSec float64
}

// StatsBatch computes run statistics for a set of jobs in one query.
func (s *RunStore) StatsBatch(ctx context.Context, jobIDs []uuid.UUID) (map[uuid.UUID]JobStats, error) {
	result := make(map[uuid.UUID]JobStats, len(jobIDs))
	if len(jobIDs) == 0 {
		return result, nil
	}

	var outcomes []RunOutcome
	if err := s.db.WithContext(ctx).
		Where("job_id IN ?", jobIDs).
		Order("started_at ASC").
		Find(&outcomes).Error; err != nil {
		return nil, fmt.Errorf("store: stats batch: %w", err)
	}

	byJob := make(map[uuid.UUID][]RunOutcome)
	for _, o := range outcomes {
		byJob[o.JobID] = append(byJob[o.JobID], o)
	}

	for jobID, jobOutcomes := range byJob {
		runs := groupByRun(jobOutcomes)
		stats := JobStats{Total: len(runs)}
		var totalDuration float64
		var durationCount int
		for i := range runs {
			run := &runs[i]
			switch run.Status {
			case "completed":
				stats.Success++
			case "failed", "partial":
				stats.Failed++
			}
			if stats.LastRun == nil || run.StartedAt.After(*stats.LastRun) {
				t := run.StartedAt
				stats.LastRun = &t
			}
			if run.Status == "completed" && (stats.LastSuccess == nil || run.StartedAt.After(*stats.LastSuccess)) {
				t := run.StartedAt
				stats.LastSuccess = &t
			}
			if run.CompletedAt != nil {
				totalDuration += run.CompletedAt.Sub(run.StartedAt).Seconds()
				durationCount++
			}
		}
		if durationCount > 0 {
			stats.AvgDurationSec = totalDuration / float64(durationCount)
		}
		result[jobID] = stats
	}
	return result, nil
}

// RunSummary is one entry in RecentStatusesBatch's per-job list.
type RunSummary struct {
	RunID     uuid.UUID
	Status    string
	StartedAt time.Time
}

// RecentStatusesBatch returns, for each job, its k most recent run summaries
// (most recent first).
func (s *RunStore) RecentStatusesBatch(ctx context.Context, jobIDs []uuid.UUID, k int) (map[uuid.UUID][]RunSummary, error) {
	result := make(map[uuid.UUID][]RunSummary, len(jobIDs))
	if len(jobIDs) == 0 {
		return result, nil
	}

	var outcomes []RunOutcome
	if err := s.db.WithContext(ctx).
		Where("job_id IN ?", jobIDs).
		Order("started_at DESC").
		Find(&outcomes).Error; err != nil {
		return nil, fmt.Errorf("store: recent statuses batch: %w", err)
	}

	byJob := make(map[uuid.UUID][]RunOutcome)
	for _, o := range outcomes {
		byJob[o.JobID] = append(byJob[o.JobID], o)
	}

	for jobID, jobOutcomes := range byJob {
		runs := groupByRun(jobOutcomes)
		if len(runs) > k {
			runs = runs[:k]
		}
		summaries := make([]RunSummary, 0, len(runs))
		for _, run := range runs {
			summaries = append(summaries, RunSummary{RunID: run.RunID, Status: run.Status, StartedAt: run.StartedAt})
		}
		result[jobID] = summaries
	}
	return result, nil
}
