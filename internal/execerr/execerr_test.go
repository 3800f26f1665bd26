package execerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/backupvault/core/internal/execerr"
)

func TestNewHasNoCauseOrLog(t *testing.T) {
	err := execerr.New(execerr.KindJobMissing, "job not found")
	require.Equal(t, "job_missing: job not found", err.Error())
	require.Empty(t, err.ExecutionLog)
	require.Nil(t, err.Unwrap())
}

func TestWrapIncludesCauseInMessageAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := execerr.Wrap(execerr.KindCredentialMissing, "could not load bundle", cause)
	require.Equal(t, "credential_missing: could not load bundle: connection refused", err.Error())
	require.ErrorIs(t, err, cause)
}

func TestWithLogCarriesExecutionLogSeparateFromDisplayText(t *testing.T) {
	err := execerr.WithLog(execerr.KindSourceExecutionFailure, "pg_dump failed", "line1\nline2", errors.New("exit 1"))
	require.Equal(t, "source_execution_failure: pg_dump failed: exit 1", err.Error())
	require.Equal(t, "line1\nline2", err.ExecutionLog)
}

func TestErrorsAsExtractsConcreteType(t *testing.T) {
	var target *execerr.Error
	err := execerr.New(execerr.KindRunOrphaned, "heartbeat stale")
	require.True(t, errors.As(err, &target))
	require.Equal(t, execerr.KindRunOrphaned, target.Kind)
}
