package notification_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/backupvault/core/internal/notification"
)

func TestNopSinkDiscardsEvent(t *testing.T) {
	var sink notification.Sink = notification.NopSink{}
	require.NoError(t, sink.Emit(context.Background(), notification.Event{Event: "success"}))
}

func TestLogSinkInvokesLogFunc(t *testing.T) {
	var captured notification.Event
	sink := notification.LogSink{Log: func(e notification.Event) { captured = e }}

	size := int64(1024)
	event := notification.Event{
		Event:           "success",
		JobName:         "nightly-pg",
		JobType:         "postgres",
		FileSize:        &size,
		DurationSeconds: 3.5,
		Destinations: []notification.DestinationOutcome{
			{Name: "primary-s3", Status: "completed", FileSize: &size},
		},
	}

	require.NoError(t, sink.Emit(context.Background(), event))
	require.Equal(t, "nightly-pg", captured.JobName)
	require.Len(t, captured.Destinations, 1)
	require.Equal(t, "completed", captured.Destinations[0].Status)
}

func TestLogSinkToleratesNilLogFunc(t *testing.T) {
	sink := notification.LogSink{}
	require.NoError(t, sink.Emit(context.Background(), notification.Event{}))
}
