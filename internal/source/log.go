package source

import (
	"fmt"
	"strings"
	"time"
)

// Log accumulates the newline-joined "[ISO-8601 timestamp] message" lines
// every Source Executor strategy (and Destination Handler) must produce
// (spec §4.6). Every log MUST begin with a "Starting {type} backup" line and
// end with a success or failure line.
type Log struct {
	lines []string
}

// NewLog returns a Log pre-seeded with the required "Starting {type} backup"
// line.
func NewLog(sourceType string) *Log {
	l := &Log{}
	l.Line("Starting %s backup", sourceType)
	return l
}

// Line appends a timestamped entry.
func (l *Log) Line(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.lines = append(l.lines, fmt.Sprintf("[%s] %s", time.Now().UTC().Format(time.RFC3339), msg))
}

// Success appends the closing success line.
func (l *Log) Success(format string, args ...any) {
	l.Line("backup completed: "+format, args...)
}

// Failure appends the closing, clearly-marked failure line.
func (l *Log) Failure(format string, args ...any) {
	l.Line("BACKUP FAILED: "+format, args...)
}

// String renders the accumulated lines newline-joined.
func (l *Log) String() string {
	return strings.Join(l.lines, "\n")
}
