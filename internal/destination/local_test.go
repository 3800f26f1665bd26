package destination_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/backupvault/core/internal/destination"
	"github.com/backupvault/core/internal/store"
)

func TestLocalHandlerCopiesFileAndReportsSize(t *testing.T) {
	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "artifact.sql.gz")
	require.NoError(t, os.WriteFile(srcPath, []byte("hello backup"), 0o644))

	targetDir := filepath.Join(t.TempDir(), "nested", "dest")

	handler, err := destination.Select(store.DestinationLocal)
	require.NoError(t, err)

	dest := &store.Destination{Name: "local-primary", Type: store.DestinationLocal}
	result, err := handler.Copy(context.Background(), srcPath, dest, store.ConfigMap{"path": targetDir}, nil)
	require.NoError(t, err)

	require.Equal(t, int64(len("hello backup")), result.FileSize)
	require.FileExists(t, result.FilePath)
	require.Contains(t, result.ExecutionLog, "copy completed")

	contents, err := os.ReadFile(result.FilePath)
	require.NoError(t, err)
	require.Equal(t, "hello backup", string(contents))

	// Source file must survive the copy untouched.
	require.FileExists(t, srcPath)
}

func TestLocalHandlerFailsOnMissingSource(t *testing.T) {
	handler, err := destination.Select(store.DestinationLocal)
	require.NoError(t, err)

	dest := &store.Destination{Name: "local-primary", Type: store.DestinationLocal}
	_, err = handler.Copy(context.Background(), filepath.Join(t.TempDir(), "missing.gz"), dest, store.ConfigMap{"path": t.TempDir()}, nil)
	require.Error(t, err)
}

func TestSelectRejectsUnknownDestinationType(t *testing.T) {
	_, err := destination.Select(store.DestinationType("ftp"))
	require.Error(t, err)
}
