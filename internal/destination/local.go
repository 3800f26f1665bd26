package destination

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/backupvault/core/internal/credentials"
	"github.com/backupvault/core/internal/execerr"
	"github.com/backupvault/core/internal/store"
)

// localHandler copies a file onto the local filesystem, creating the target
// directory recursively if needed.
type localHandler struct{}

func (localHandler) Copy(ctx context.Context, sourceFilePath string, dest *store.Destination, config store.ConfigMap, creds *credentials.Bundle) (Result, error) {
	log := newLog()

	targetDir := config["path"]
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		log.fail("create target directory %s: %v", targetDir, err)
		return Result{}, wrapFailure("local copy failed: mkdir", log, err)
	}

	destPath := filepath.Join(targetDir, filepath.Base(sourceFilePath))
	log.line("copying %s to %s", sourceFilePath, destPath)

	if err := copyFile(sourceFilePath, destPath); err != nil {
		log.fail("copy: %v", err)
		return Result{}, wrapFailure("local copy failed", log, err)
	}

	info, err := os.Stat(destPath)
	if err != nil {
		log.fail("stat destination: %v", err)
		return Result{}, wrapFailure("local copy failed: stat", log, err)
	}

	absPath, err := filepath.Abs(destPath)
	if err != nil {
		absPath = destPath
	}

	log.ok("%d bytes written to %s", info.Size(), absPath)
	return Result{FilePath: absPath, FileSize: info.Size(), ExecutionLog: log.String()}, nil
}

// copyFile copies src to dst without reading the whole file into memory,
// leaving src untouched.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("destination: open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("destination: create destination: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("destination: copy bytes: %w", err)
	}
	return out.Sync()
}

func wrapFailure(message string, log *copyLog, cause error) error {
	return execerr.WithLog(execerr.KindDestinationCopyFailure, message, log.String(), cause)
}

// copyLog is destination's own minimal execution-log accumulator, mirroring
// internal/source.Log's "[timestamp] message" discipline without importing
// source (destination must not depend on source).
type copyLog struct {
	lines []string
}

func newLog() *copyLog { return &copyLog{} }

func (l *copyLog) line(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprintf("[%s] %s", time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...)))
}

func (l *copyLog) ok(format string, args ...any) {
	l.line("copy completed: "+format, args...)
}

func (l *copyLog) fail(format string, args ...any) {
	l.line("COPY FAILED: "+format, args...)
}

func (l *copyLog) String() string {
	out := ""
	for i, line := range l.lines {
		if i > 0 {
			out += "\n"
		}
		out += line
	}
	return out
}
