package credentials_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/backupvault/core/internal/credentials"
	"github.com/backupvault/core/internal/envelope"
	"github.com/backupvault/core/internal/store"
)

func newProviders(t *testing.T) *store.CredentialProviderStore {
	t.Helper()
	require.NoError(t, envelope.Init("test-secret-at-least-32-characters-long"))

	gdb, err := store.Open(store.Config{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	return store.NewCredentialProviderStore(gdb)
}

func TestResolveDecryptsSensitiveFields(t *testing.T) {
	providers := newProviders(t)
	ctx := context.Background()

	cfg := store.ConfigMap{
		"region":            "us-east-1",
		"access_key_id":     "AKIAEXAMPLE",
		"secret_access_key": "supersecret",
	}
	sealed, err := envelope.EncryptFields(cfg, store.CredentialProviderSensitiveFields)
	require.NoError(t, err)
	encoded, err := store.EncodeConfig(sealed)
	require.NoError(t, err)

	cp := &store.CredentialProvider{Name: "main-s3", Type: "s3", Config: encoded}
	require.NoError(t, providers.Create(ctx, cp))

	resolver := credentials.New(providers)
	bundle, err := resolver.Resolve(ctx, cp.ID)
	require.NoError(t, err)
	require.Equal(t, "us-east-1", bundle.Region)
	require.Equal(t, "AKIAEXAMPLE", bundle.AccessKeyID)
	require.Equal(t, "supersecret", bundle.SecretAccessKey)
	require.Nil(t, bundle.Endpoint)
}

func TestResolveDefaultsRegionToAuto(t *testing.T) {
	providers := newProviders(t)
	ctx := context.Background()

	cfg := store.ConfigMap{
		"access_key_id":     "AKIAEXAMPLE",
		"secret_access_key": "supersecret",
		"endpoint":          "https://minio.example.com",
	}
	sealed, err := envelope.EncryptFields(cfg, store.CredentialProviderSensitiveFields)
	require.NoError(t, err)
	encoded, err := store.EncodeConfig(sealed)
	require.NoError(t, err)

	cp := &store.CredentialProvider{Name: "minio", Type: "s3", Config: encoded}
	require.NoError(t, providers.Create(ctx, cp))

	resolver := credentials.New(providers)
	bundle, err := resolver.Resolve(ctx, cp.ID)
	require.NoError(t, err)
	require.Equal(t, "auto", bundle.Region)
	require.NotNil(t, bundle.Endpoint)
	require.Equal(t, "https://minio.example.com", *bundle.Endpoint)
}

func TestResolveNotFound(t *testing.T) {
	providers := newProviders(t)
	resolver := credentials.New(providers)
	_, err := resolver.Resolve(context.Background(), uuid.New())
	require.Error(t, err)
}
