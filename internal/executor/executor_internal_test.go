package executor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/backupvault/core/internal/execerr"
)

func TestCombineLogsJoinsBothWhenPresent(t *testing.T) {
	require.Equal(t, "source line\ncopy line", combineLogs("source line", "copy line"))
}

func TestCombineLogsReturnsSourceAloneWhenCopyEmpty(t *testing.T) {
	require.Equal(t, "source line", combineLogs("source line", ""))
}

func TestExecutionLogFromExtractsExecerrLog(t *testing.T) {
	err := execerr.WithLog(execerr.KindSourceExecutionFailure, "dump failed", "the log", nil)
	require.Equal(t, "the log", executionLogFrom(err))
}

func TestExecutionLogFromReturnsEmptyForPlainError(t *testing.T) {
	require.Equal(t, "", executionLogFrom(errors.New("plain failure")))
}

func TestMetadataJSONReturnsNilForEmptyMap(t *testing.T) {
	require.Nil(t, metadataJSON(nil))
	require.Nil(t, metadataJSON(map[string]string{}))
}

func TestMetadataJSONEncodesNonEmptyMap(t *testing.T) {
	ptr := metadataJSON(map[string]string{"database": "widgets"})
	require.NotNil(t, ptr)
	require.Contains(t, *ptr, "widgets")
}
