// Package credentials resolves a CredentialProvider reference into an
// ephemeral, decrypted bundle at the moment a source or destination needs it.
// Nothing here is cached beyond the single call: the Job Executor asks again
// on every run, the same just-in-time shape the teacher's scheduler dispatch
// used for decrypting a policy's repo password right before building its
// payload, generalized into its own package rather than inlined at each call
// site.
package credentials

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/backupvault/core/internal/envelope"
	"github.com/backupvault/core/internal/store"
)

// Bundle is the decrypted form of a CredentialProvider's config, ready to
// hand to a destination handler. Endpoint is optional (nil for AWS S3
// itself; set for S3-compatible providers like MinIO or R2).
type Bundle struct {
	Endpoint        *string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Resolver resolves CredentialProvider rows into decrypted Bundles.
type Resolver struct {
	providers *store.CredentialProviderStore
}

// New returns a Resolver backed by the given CredentialProviderStore.
func New(providers *store.CredentialProviderStore) *Resolver {
	return &Resolver{providers: providers}
}

// Resolve loads the credential provider by ID and decrypts its sensitive
// fields. The returned Bundle's AccessKeyID/SecretAccessKey are plaintext and
// must not be persisted or logged by the caller.
func (r *Resolver) Resolve(ctx context.Context, id uuid.UUID) (*Bundle, error) {
	cp, err := r.providers.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("credentials: resolve %s: %w", id, err)
	}

	cfg, err := store.DecodeConfig(cp.Config)
	if err != nil {
		return nil, fmt.Errorf("credentials: decode provider %s config: %w", id, err)
	}

	plain, err := envelope.DecryptFields(cfg, store.CredentialProviderSensitiveFields)
	if err != nil {
		return nil, fmt.Errorf("credentials: decrypt provider %s: %w", id, err)
	}

	region := plain["region"]
	if region == "" {
		region = "auto"
	}

	var endpoint *string
	if ep, ok := plain["endpoint"]; ok && ep != "" {
		endpoint = &ep
	}

	return &Bundle{
		Endpoint:        endpoint,
		Region:          region,
		AccessKeyID:     plain["access_key_id"],
		SecretAccessKey: plain["secret_access_key"],
	}, nil
}
