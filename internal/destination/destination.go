// Package destination implements the Destination Handler (spec §4.7): one
// copy strategy per destination type, taking a source file path and
// returning where the copy landed and how large it was. Handlers never
// mutate the source file — it may still be needed by other destinations in
// an execute-once-copy-many run.
package destination

import (
	"context"
	"fmt"

	"github.com/backupvault/core/internal/credentials"
	"github.com/backupvault/core/internal/store"
)

// Result is what a Handler returns on a successful copy.
type Result struct {
	FilePath     string
	FileSize     int64
	ExecutionLog string
}

// Handler copies one local source file to a destination.
type Handler interface {
	Copy(ctx context.Context, sourceFilePath string, dest *store.Destination, config store.ConfigMap, creds *credentials.Bundle) (Result, error)
}

// Select returns the Handler registered for t, or an error if t is not a
// recognized destination type.
func Select(t store.DestinationType) (Handler, error) {
	switch t {
	case store.DestinationLocal:
		return localHandler{}, nil
	case store.DestinationS3:
		return s3Handler{}, nil
	default:
		return nil, fmt.Errorf("destination: unrecognized destination type %q", t)
	}
}
