package objectstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/backupvault/core/internal/credentials"
	"github.com/backupvault/core/internal/objectstore"
)

func TestNewClientRequiresBundle(t *testing.T) {
	_, err := objectstore.NewClient(context.Background(), nil)
	require.Error(t, err)
}

func TestNewClientBuildsFromMinimalBundle(t *testing.T) {
	bundle := &credentials.Bundle{
		Region:          "us-east-1",
		AccessKeyID:     "AKIAEXAMPLE",
		SecretAccessKey: "secret",
	}
	client, err := objectstore.NewClient(context.Background(), bundle)
	require.NoError(t, err)
	require.NotNil(t, client)
}

func TestNewClientUsesCustomEndpointForS3CompatibleProviders(t *testing.T) {
	endpoint := "https://minio.internal:9000"
	bundle := &credentials.Bundle{
		Endpoint:        &endpoint,
		Region:          "auto",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
	}
	client, err := objectstore.NewClient(context.Background(), bundle)
	require.NoError(t, err)
	require.NotNil(t, client)
}
