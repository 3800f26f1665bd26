package store

import (
	"encoding/json"
	"fmt"
)

// ConfigMap is the decoded form of a BackupJob/Destination/CredentialProvider
// opaque config blob: a flat string-keyed bag, matching spec's field-wise
// encrypt_fields/decrypt_fields contract, which operates on exactly this
// shape. A richer config (nested objects) is outside what any source/
// destination type defined here needs.
type ConfigMap map[string]string

// SensitiveFields returns the well-known sensitive field names for a given
// BackupJob source type, used to drive envelope.EncryptFields/DecryptFields
// on that type's config. postgres/mysql/redis carry a password-shaped
// secret in their own config, mongodb's is folded into its connection
// string; s3 does not (s3 credentials live on the referenced
// CredentialProvider instead).
func SensitiveFields(t SourceType) []string {
	switch t {
	case SourcePostgres, SourceMySQL, SourceRedis:
		return []string{"password"}
	case SourceMongoDB:
		return []string{"connection_string"}
	default:
		return nil
	}
}

// CredentialProviderSensitiveFields are the well-known sensitive fields spec
// §3 names for a CredentialProvider's config blob.
var CredentialProviderSensitiveFields = []string{"access_key_id", "secret_access_key"}

// DecodeConfig unmarshals a stored JSON config blob into a ConfigMap. An
// empty or "{}" blob decodes to an empty, non-nil map.
func DecodeConfig(raw string) (ConfigMap, error) {
	cfg := ConfigMap{}
	if raw == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("store: decode config: %w", err)
	}
	return cfg, nil
}

// EncodeConfig marshals a ConfigMap back into its stored JSON form.
func EncodeConfig(cfg ConfigMap) (string, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("store: encode config: %w", err)
	}
	return string(b), nil
}
