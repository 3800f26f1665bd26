// Package notification emits the structured notification event spec §6
// defines once per run, after every outcome has reached a terminal state.
// Rendering and transport (email, webhook, in-app inbox) are explicitly out
// of scope (spec §1); this package's only job is producing the event value
// and handing it to whatever Sink the host process wires in, mirroring the
// teacher's own NotifyJobSucceeded/NotifyJobFailed split (server/internal/
// notification/service.go) trimmed down to event construction.
package notification

import "context"

// DestinationOutcome is one destination's contribution to a run's event.
type DestinationOutcome struct {
	Name     string  `json:"name"`
	Status   string  `json:"status"` // "completed" | "failed"
	FileSize *int64  `json:"fileSize,omitempty"`
	FilePath *string `json:"filePath,omitempty"`
	Error    *string `json:"error,omitempty"`
}

// Event is the notification payload emitted exactly once per run (spec §6).
type Event struct {
	Event           string                `json:"event"` // "success" | "failure"
	JobName         string                `json:"jobName"`
	JobType         string                `json:"jobType"`
	FileSize        *int64                `json:"fileSize,omitempty"`
	FilePath        *string               `json:"filePath,omitempty"`
	Error           *string               `json:"error,omitempty"`
	DurationSeconds float64               `json:"durationSeconds"`
	Destinations    []DestinationOutcome  `json:"destinations"`
}

// Sink receives a fully-built notification Event. The host process supplies
// the concrete implementation (render + send over email/webhook/in-app
// inbox); this package only ever calls Emit, never implements delivery.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// NopSink discards every event. Useful as the default wiring when no
// external notification subsystem is configured.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) error { return nil }

// LogSink hands each event to its Log func instead of delivering it anywhere
// (a nil Log discards the event), useful for local development and the test
// suite.
type LogSink struct {
	Log func(event Event)
}

func (s LogSink) Emit(_ context.Context, event Event) error {
	if s.Log != nil {
		s.Log(event)
	}
	return nil
}
