// Package objectstore builds an S3-compatible client from a resolved
// credential bundle, shared by the s3-sync Source Executor strategy and the
// s3 Destination Handler so both construct clients the same way (region
// default, optional custom endpoint for MinIO/R2-style providers, static
// credentials only — no ambient IAM role lookup, since the bundle is always
// fully resolved by internal/credentials before either caller touches it).
package objectstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	vaultcreds "github.com/backupvault/core/internal/credentials"
)

// NewClient builds an *s3.Client from a resolved credential bundle.
func NewClient(ctx context.Context, bundle *vaultcreds.Bundle) (*s3.Client, error) {
	if bundle == nil {
		return nil, fmt.Errorf("objectstore: credential bundle is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(bundle.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			bundle.AccessKeyID, bundle.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if bundle.Endpoint != nil && *bundle.Endpoint != "" {
			o.BaseEndpoint = aws.String(*bundle.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
