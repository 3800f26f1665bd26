// Package executor implements the Job Executor (spec §4.8): the fan-out
// driven by a Work Queue pickup that resolves credentials, runs the right
// Source Executor strategy, copies the artifact to however many
// destinations are configured, and writes the Run History Store. Shaped on
// the teacher's agent/internal/executor/executor.go "resolve -> run ->
// report" sequential pipeline, extended with the spec's heartbeat goroutine
// and strategy selection the teacher's single-destination agent dispatch
// never needed.
package executor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/backupvault/core/internal/credentials"
	"github.com/backupvault/core/internal/destination"
	"github.com/backupvault/core/internal/envelope"
	"github.com/backupvault/core/internal/execerr"
	"github.com/backupvault/core/internal/notification"
	"github.com/backupvault/core/internal/queue"
	"github.com/backupvault/core/internal/source"
	"github.com/backupvault/core/internal/store"
)

// heartbeatInterval is the cadence at which a running outcome's
// last_heartbeat_at is advanced (spec §4.8 step 6).
const heartbeatInterval = 30 * time.Second

// Executor drives one queue pickup to completion.
type Executor struct {
	jobs       *store.JobStore
	destStore  *store.DestinationStore
	runs       *store.RunStore
	resolver   *credentials.Resolver
	notifier   notification.Sink
	logger     *zap.Logger
	tempDir    string
	defaultDir string
}

// Config holds the dependencies and directories an Executor needs.
type Config struct {
	Jobs          *store.JobStore
	Destinations  *store.DestinationStore
	Runs          *store.RunStore
	Resolver      *credentials.Resolver
	Notifier      notification.Sink
	Logger        *zap.Logger
	TempBackupDir string
	BackupDir     string
}

// New builds an Executor from Config.
func New(cfg Config) *Executor {
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notification.NopSink{}
	}
	return &Executor{
		jobs:       cfg.Jobs,
		destStore:  cfg.Destinations,
		runs:       cfg.Runs,
		resolver:   cfg.Resolver,
		notifier:   notifier,
		logger:     cfg.Logger.Named("executor"),
		tempDir:    cfg.TempBackupDir,
		defaultDir: cfg.BackupDir,
	}
}

// resolvedDestination pairs a loaded Destination row with the per-job
// notification preferences from its join row.
type resolvedDestination struct {
	dest            store.Destination
	notifyOnSuccess bool
	notifyOnFailure bool
}

// outcomeResult is the per-destination bookkeeping the final notification
// event and aggregation is built from.
type outcomeResult struct {
	dest     *resolvedDestination
	status   store.RunStatus
	fileSize int64
	filePath string
	errMsg   string
}

// HandleQueueJob adapts Execute to queue.HandlerFunc: the payload a
// repeatable entry or manual enqueue carries is just the job ID string
// (spec §4.3: "the payload is treated as advisory" — the executor always
// re-fetches authoritative job state, which is exactly what Execute does).
func (e *Executor) HandleQueueJob(ctx context.Context, job queue.Job) error {
	jobID, err := uuid.Parse(job.Payload)
	if err != nil {
		return fmt.Errorf("executor: malformed job id payload %q: %w", job.Payload, err)
	}
	return e.Execute(ctx, jobID)
}

// Execute runs one backup job end to end (spec §4.8). jobID is the payload
// a repeatable queue entry or a manual enqueue carries; it is always
// re-resolved against the store rather than trusted as-is.
func (e *Executor) Execute(ctx context.Context, jobID uuid.UUID) error {
	runID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("executor: generate run id: %w", err)
	}
	started := time.Now()

	job, err := e.jobs.GetByIDWithDestinations(ctx, jobID)
	if err != nil {
		return execerr.Wrap(execerr.KindJobMissing, fmt.Sprintf("backup job %s not found", jobID), err)
	}

	config, err := e.resolveConfig(ctx, job)
	if err != nil {
		return err
	}

	dests, err := e.resolveDestinations(ctx, job)
	if err != nil {
		return err
	}

	var results []outcomeResult
	switch {
	case job.Type.IsDatabaseFamily() && len(dests) > 0:
		results, err = e.executeOnceCopyMany(ctx, job, runID, config, dests)
	case job.Type == store.SourceS3 && len(dests) > 0:
		results, err = e.executePerDestination(ctx, job, runID, config, dests)
	case len(dests) == 0 && job.Type.IsDatabaseFamily():
		results, err = e.executeDefaultLocal(ctx, job, runID, config)
	case len(dests) == 0 && job.Type == store.SourceS3:
		return fmt.Errorf("S3 backup requires at least one destination")
	default:
		return fmt.Errorf("executor: unsupported source type %q", job.Type)
	}
	if err != nil {
		return err
	}

	hasFailures := false
	for _, r := range results {
		if r.status == store.RunStatusFailed {
			hasFailures = true
			break
		}
	}

	e.emitNotification(ctx, job, started, results)

	if hasFailures {
		return fmt.Errorf("executor: run %s for job %s completed with failures", runID, job.ID)
	}
	return nil
}

// resolveConfig decrypts a job's own sensitive fields and, for s3 jobs with
// a source credential provider, merges in the resolved bundle (spec §4.8
// step 3, scenario S6).
func (e *Executor) resolveConfig(ctx context.Context, job *store.BackupJob) (store.ConfigMap, error) {
	cfg, err := store.DecodeConfig(job.Config)
	if err != nil {
		return nil, execerr.Wrap(execerr.KindDecryptFailure, "decode job config", err)
	}

	decrypted, err := envelope.DecryptFields(cfg, store.SensitiveFields(job.Type))
	if err != nil {
		return nil, execerr.Wrap(execerr.KindDecryptFailure, "decrypt job config", err)
	}

	if job.SourceCredentialProviderID != nil && job.Type == store.SourceS3 {
		bundle, err := e.resolver.Resolve(ctx, *job.SourceCredentialProviderID)
		if err != nil {
			return nil, execerr.Wrap(execerr.KindCredentialMissing, "resolve source credential provider", err)
		}
		if bundle.Endpoint != nil {
			decrypted["endpoint"] = *bundle.Endpoint
		}
		decrypted["region"] = bundle.Region
		decrypted["access_key_id"] = bundle.AccessKeyID
		decrypted["secret_access_key"] = bundle.SecretAccessKey
	}

	return decrypted, nil
}

// resolveDestinations loads the full Destination row for each of the job's
// configured join rows.
func (e *Executor) resolveDestinations(ctx context.Context, job *store.BackupJob) ([]resolvedDestination, error) {
	out := make([]resolvedDestination, 0, len(job.Destinations))
	for _, jd := range job.Destinations {
		dest, err := e.destStore.GetByID(ctx, jd.DestinationID)
		if err != nil {
			return nil, fmt.Errorf("executor: load destination %s: %w", jd.DestinationID, err)
		}
		out = append(out, resolvedDestination{
			dest:            *dest,
			notifyOnSuccess: jd.NotifyOnSuccess,
			notifyOnFailure: jd.NotifyOnFailure,
		})
	}
	return out, nil
}

// executeOnceCopyMany produces one artifact, then copies it sequentially to
// every destination (spec §4.8 step 5, first bullet).
func (e *Executor) executeOnceCopyMany(ctx context.Context, job *store.BackupJob, runID uuid.UUID, config store.ConfigMap, dests []resolvedDestination) ([]outcomeResult, error) {
	strategy, err := source.Select(job.Type)
	if err != nil {
		return nil, err
	}

	artifact, artifactErr := strategy.Execute(ctx, config, source.Target{TempDir: e.tempDir})
	if artifactErr != nil {
		return e.failAllDestinations(ctx, job, runID, dests, artifactErr), nil
	}
	defer e.unlinkTemp(artifact.FilePath)

	results := make([]outcomeResult, 0, len(dests))
	for i := range dests {
		rd := &dests[i]
		outcome, err := e.runs.CreateOutcome(ctx, job.ID, &rd.dest.ID, runID)
		if err != nil {
			return nil, fmt.Errorf("executor: create outcome for destination %s: %w", rd.dest.ID, err)
		}
		stopHeartbeat := e.startHeartbeat(ctx, outcome.ID)

		handler, err := destination.Select(rd.dest.Type)
		if err != nil {
			stopHeartbeat()
			e.failOutcome(ctx, outcome.ID, err.Error(), artifact.ExecutionLog)
			results = append(results, outcomeResult{dest: rd, status: store.RunStatusFailed, errMsg: err.Error()})
			continue
		}

		destConfig, destCreds, err := e.destinationInputs(ctx, &rd.dest)
		if err != nil {
			stopHeartbeat()
			e.failOutcome(ctx, outcome.ID, err.Error(), artifact.ExecutionLog)
			results = append(results, outcomeResult{dest: rd, status: store.RunStatusFailed, errMsg: err.Error()})
			continue
		}

		copyResult, copyErr := handler.Copy(ctx, artifact.FilePath, &rd.dest, destConfig, destCreds)
		stopHeartbeat()

		if copyErr != nil {
			combinedLog := combineLogs(artifact.ExecutionLog, executionLogFrom(copyErr))
			e.failOutcome(ctx, outcome.ID, copyErr.Error(), combinedLog)
			results = append(results, outcomeResult{dest: rd, status: store.RunStatusFailed, errMsg: copyErr.Error()})
			continue
		}

		combinedLog := combineLogs(artifact.ExecutionLog, copyResult.ExecutionLog)
		metadata := metadataJSON(artifact.Metadata)
		if err := e.runs.Complete(ctx, outcome.ID, copyResult.FileSize, copyResult.FilePath, metadata, &combinedLog); err != nil {
			e.logger.Error("failed to persist completed outcome", zap.Error(err))
		}
		results = append(results, outcomeResult{dest: rd, status: store.RunStatusCompleted, fileSize: copyResult.FileSize, filePath: copyResult.FilePath})
	}

	return results, nil
}

// failAllDestinations opens one outcome per destination and immediately
// fails all of them with the artifact's error and log (spec §4.8 step 5,
// first bullet, "On artifact failure").
func (e *Executor) failAllDestinations(ctx context.Context, job *store.BackupJob, runID uuid.UUID, dests []resolvedDestination, artifactErr error) []outcomeResult {
	results := make([]outcomeResult, 0, len(dests))
	log := executionLogFrom(artifactErr)
	for i := range dests {
		rd := &dests[i]
		outcome, err := e.runs.CreateOutcome(ctx, job.ID, &rd.dest.ID, runID)
		if err != nil {
			e.logger.Error("failed to create outcome for failed artifact", zap.Error(err))
			continue
		}
		e.failOutcome(ctx, outcome.ID, artifactErr.Error(), log)
		results = append(results, outcomeResult{dest: rd, status: store.RunStatusFailed, errMsg: artifactErr.Error()})
	}
	return results
}

// executePerDestination invokes the Source Executor once per destination,
// writing directly into each destination's bundle (spec §4.8 step 5, second
// bullet — used by the s3-sync source).
func (e *Executor) executePerDestination(ctx context.Context, job *store.BackupJob, runID uuid.UUID, config store.ConfigMap, dests []resolvedDestination) ([]outcomeResult, error) {
	strategy, err := source.Select(job.Type)
	if err != nil {
		return nil, err
	}

	results := make([]outcomeResult, 0, len(dests))
	for i := range dests {
		rd := &dests[i]
		outcome, err := e.runs.CreateOutcome(ctx, job.ID, &rd.dest.ID, runID)
		if err != nil {
			return nil, fmt.Errorf("executor: create outcome for destination %s: %w", rd.dest.ID, err)
		}
		stopHeartbeat := e.startHeartbeat(ctx, outcome.ID)

		destConfig, destCreds, err := e.destinationInputs(ctx, &rd.dest)
		if err != nil {
			stopHeartbeat()
			e.failOutcome(ctx, outcome.ID, err.Error(), "")
			results = append(results, outcomeResult{dest: rd, status: store.RunStatusFailed, errMsg: err.Error()})
			continue
		}

		target := source.Target{Destination: &source.DestinationTarget{Config: destConfig, Credentials: destCreds}}
		result, execErr := strategy.Execute(ctx, config, target)
		stopHeartbeat()

		if execErr != nil {
			e.failOutcome(ctx, outcome.ID, execErr.Error(), executionLogFrom(execErr))
			results = append(results, outcomeResult{dest: rd, status: store.RunStatusFailed, errMsg: execErr.Error()})
			continue
		}

		metadata := metadataJSON(result.Metadata)
		if err := e.runs.Complete(ctx, outcome.ID, result.FileSize, result.FilePath, metadata, &result.ExecutionLog); err != nil {
			e.logger.Error("failed to persist completed outcome", zap.Error(err))
		}
		results = append(results, outcomeResult{dest: rd, status: store.RunStatusCompleted, fileSize: result.FileSize, filePath: result.FilePath})
	}

	return results, nil
}

// executeDefaultLocal handles a database-family job with zero configured
// destinations: a single outcome with a nil destination_id, writing into the
// process-wide BACKUP_DIR (spec §4.8 step 5, third bullet; DESIGN.md's Open
// Question decision to preserve this lenient default).
func (e *Executor) executeDefaultLocal(ctx context.Context, job *store.BackupJob, runID uuid.UUID, config store.ConfigMap) ([]outcomeResult, error) {
	strategy, err := source.Select(job.Type)
	if err != nil {
		return nil, err
	}

	outcome, err := e.runs.CreateOutcome(ctx, job.ID, nil, runID)
	if err != nil {
		return nil, fmt.Errorf("executor: create default-local outcome: %w", err)
	}
	stopHeartbeat := e.startHeartbeat(ctx, outcome.ID)

	result, execErr := strategy.Execute(ctx, config, source.Target{BackupDir: e.defaultDir})
	stopHeartbeat()

	if execErr != nil {
		e.failOutcome(ctx, outcome.ID, execErr.Error(), executionLogFrom(execErr))
		return []outcomeResult{{status: store.RunStatusFailed, errMsg: execErr.Error()}}, nil
	}

	metadata := metadataJSON(result.Metadata)
	if err := e.runs.Complete(ctx, outcome.ID, result.FileSize, result.FilePath, metadata, &result.ExecutionLog); err != nil {
		e.logger.Error("failed to persist completed outcome", zap.Error(err))
	}
	return []outcomeResult{{status: store.RunStatusCompleted, fileSize: result.FileSize, filePath: result.FilePath}}, nil
}

// destinationInputs decodes a destination's plain config and, if it
// references a credential provider, resolves a fresh bundle for it.
func (e *Executor) destinationInputs(ctx context.Context, dest *store.Destination) (store.ConfigMap, *credentials.Bundle, error) {
	cfg, err := store.DecodeConfig(dest.Config)
	if err != nil {
		return nil, nil, execerr.Wrap(execerr.KindDecryptFailure, "decode destination config", err)
	}
	if dest.CredentialProviderID == nil {
		return cfg, nil, nil
	}
	bundle, err := e.resolver.Resolve(ctx, *dest.CredentialProviderID)
	if err != nil {
		return nil, nil, execerr.Wrap(execerr.KindCredentialMissing, "resolve destination credential provider", err)
	}
	return cfg, bundle, nil
}

// startHeartbeat launches a ticking goroutine that advances outcomeID's
// last_heartbeat_at every heartbeatInterval, wrapped in a cancellable task
// per spec §4.8 step 6 so it always stops before the terminal write races
// against it.
func (e *Executor) startHeartbeat(ctx context.Context, outcomeID uuid.UUID) func() {
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := e.runs.Heartbeat(context.Background(), outcomeID); err != nil {
					e.logger.Warn("heartbeat failed", zap.String("outcome_id", outcomeID.String()), zap.Error(err))
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (e *Executor) failOutcome(ctx context.Context, outcomeID uuid.UUID, message, executionLog string) {
	var logPtr *string
	if executionLog != "" {
		logPtr = &executionLog
	}
	if err := e.runs.Fail(ctx, outcomeID, message, logPtr); err != nil {
		e.logger.Error("failed to persist failed outcome", zap.Error(err))
	}
}

func (e *Executor) unlinkTemp(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil {
		e.logger.Warn("failed to unlink temporary artifact", zap.String("path", path), zap.Error(err))
	}
}

// combineLogs joins a source log and a copy log per spec §4.8's execution
// log composition rule: both present -> "source\ncopy"; copy empty ->
// source alone.
func combineLogs(sourceLog, copyLog string) string {
	if copyLog == "" {
		return sourceLog
	}
	return sourceLog + "\n" + copyLog
}

// executionLogFrom extracts the execution-log side channel from an error if
// it is an *execerr.Error, or "" otherwise.
func executionLogFrom(err error) string {
	if ee, ok := err.(*execerr.Error); ok {
		return ee.ExecutionLog
	}
	return ""
}

func metadataJSON(meta map[string]string) *string {
	if len(meta) == 0 {
		return nil
	}
	encoded, err := store.EncodeConfig(meta)
	if err != nil {
		return nil
	}
	return &encoded
}

// emitNotification builds and emits the §6 notification event exactly once
// per run, consolidating every destination's outcome.
func (e *Executor) emitNotification(ctx context.Context, job *store.BackupJob, started time.Time, results []outcomeResult) {
	hasFailures := false
	destOutcomes := make([]notification.DestinationOutcome, 0, len(results))

	var firstFileSize *int64
	var firstFilePath *string
	var firstError *string

	for _, r := range results {
		status := "completed"
		if r.status == store.RunStatusFailed {
			status = "failed"
			hasFailures = true
		}
		name := ""
		if r.dest != nil {
			name = r.dest.dest.Name
		}

		do := notification.DestinationOutcome{Name: name, Status: status}
		if r.status == store.RunStatusCompleted {
			size := r.fileSize
			path := r.filePath
			do.FileSize = &size
			do.FilePath = &path
			if firstFileSize == nil {
				firstFileSize = &size
				firstFilePath = &path
			}
		} else {
			msg := r.errMsg
			do.Error = &msg
			if firstError == nil {
				firstError = &msg
			}
		}
		destOutcomes = append(destOutcomes, do)
	}

	event := notification.Event{
		Event:           "success",
		JobName:         job.Name,
		JobType:         string(job.Type),
		DurationSeconds: time.Since(started).Seconds(),
		Destinations:    destOutcomes,
		FileSize:        firstFileSize,
		FilePath:        firstFilePath,
	}
	if hasFailures {
		event.Event = "failure"
		event.Error = firstError
	}

	if err := e.notifier.Emit(ctx, event); err != nil {
		e.logger.Warn("failed to emit notification event", zap.Error(err))
	}
}
