package source_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/backupvault/core/internal/source"
	"github.com/backupvault/core/internal/store"
)

func TestSelectRecognizesEverySourceType(t *testing.T) {
	for _, st := range []store.SourceType{
		store.SourcePostgres, store.SourceMySQL, store.SourceMongoDB, store.SourceRedis, store.SourceS3,
	} {
		strategy, err := source.Select(st)
		require.NoError(t, err, st)
		require.NotNil(t, strategy, st)
	}
}

func TestSelectRejectsUnknownSourceType(t *testing.T) {
	_, err := source.Select(store.SourceType("oracle"))
	require.Error(t, err)
}
