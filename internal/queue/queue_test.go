package queue_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/backupvault/core/internal/queue"
)

func TestParseCronRejectsInvalidExpression(t *testing.T) {
	_, err := queue.ParseCron("not a cron expression")
	require.Error(t, err)
}

func TestParseCronAcceptsStandardExpression(t *testing.T) {
	sched, err := queue.ParseCron("0 * * * *")
	require.NoError(t, err)
	require.NotNil(t, sched)
}

func TestDefaultOptsFloorsAttemptsAtOne(t *testing.T) {
	opts := queue.DefaultOpts(0)
	require.Equal(t, 1, opts.Attempts)
	require.Equal(t, int64(5_000), opts.BackoffBaseMs)

	opts = queue.DefaultOpts(5)
	require.Equal(t, 5, opts.Attempts)
}
