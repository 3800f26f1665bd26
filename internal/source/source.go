// Package source implements the Source Executor: a strategy selector keyed
// by BackupJob source type, each producing either a temporary dump artifact
// or, for the s3-sync source, writing directly to a destination bundle. The
// subprocess invocation shape (exec.CommandContext, captured stderr, wrapped
// non-zero-exit errors) follows the teacher's restic Wrapper
// (agent/internal/restic/wrapper.go): one exec.Cmd per call, environment
// built from the current process environment plus backend-specific
// variables layered on top.
package source

import (
	"context"
	"fmt"

	"github.com/backupvault/core/internal/credentials"
	"github.com/backupvault/core/internal/execerr"
	"github.com/backupvault/core/internal/store"
)

// Result is what a Strategy returns on success.
type Result struct {
	FilePath     string
	FileSize     int64
	Metadata     map[string]string
	ExecutionLog string
}

// Target is where a Strategy should write its artifact. Exactly one of
// TempDir, BackupDir or Destination is set: database-family strategies write into
// TempDir when the job has destinations (§4.7 copies it onward) or directly
// into BackupDir when it has none; the s3 strategy always writes directly
// into Destination.
type Target struct {
	TempDir     string
	BackupDir   string
	Destination *DestinationTarget
}

// DestinationTarget is the concrete destination bundle the s3-sync strategy
// writes into directly, bypassing the temp-file-then-copy path entirely.
type DestinationTarget struct {
	Config      store.ConfigMap
	Credentials *credentials.Bundle
}

// Strategy executes one backup for a single source type.
type Strategy interface {
	Execute(ctx context.Context, config store.ConfigMap, target Target) (Result, error)
}

// Select returns the Strategy registered for t, or an error if t is not a
// recognized source type.
func Select(t store.SourceType) (Strategy, error) {
	switch t {
	case store.SourcePostgres:
		return postgresStrategy{}, nil
	case store.SourceMySQL:
		return mysqlStrategy{}, nil
	case store.SourceMongoDB:
		return mongoStrategy{}, nil
	case store.SourceRedis:
		return redisStrategy{}, nil
	case store.SourceS3:
		return s3SyncStrategy{}, nil
	default:
		return nil, fmt.Errorf("source: unrecognized source type %q", t)
	}
}

func wrapFailure(kind execerr.Kind, message string, log *Log, cause error) error {
	return execerr.WithLog(kind, message, log.String(), cause)
}
