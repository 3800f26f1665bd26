package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	vaultcreds "github.com/backupvault/core/internal/credentials"
	"github.com/backupvault/core/internal/execerr"
	"github.com/backupvault/core/internal/objectstore"
	"github.com/backupvault/core/internal/store"
)

// s3SyncStrategy is not a dump: it lists objects under a source bucket/prefix
// and copies them into a new timestamped folder under the destination
// bucket/prefix, preserving each object's path relative to the source prefix
// (spec §4.6). It always writes directly to target.Destination — there is no
// temp-file-then-copy path for this source type.
type s3SyncStrategy struct{}

func (s3SyncStrategy) Execute(ctx context.Context, config store.ConfigMap, target Target) (Result, error) {
	log := NewLog("s3")

	if target.Destination == nil {
		err := fmt.Errorf("s3 sync strategy requires a destination bundle")
		log.Failure("%v", err)
		return Result{}, wrapFailure(execerr.KindSourceExecutionFailure, "s3 sync misconfigured", log, err)
	}

	srcBundle := bundleFromConfig(config)
	srcClient, err := objectstore.NewClient(ctx, srcBundle)
	if err != nil {
		log.Failure("build source client: %v", err)
		return Result{}, wrapFailure(execerr.KindSourceExecutionFailure, "s3 source client failed", log, err)
	}

	dstClient, err := objectstore.NewClient(ctx, target.Destination.Credentials)
	if err != nil {
		log.Failure("build destination client: %v", err)
		return Result{}, wrapFailure(execerr.KindSourceExecutionFailure, "s3 destination client failed", log, err)
	}

	srcBucket := config["bucket"]
	srcPrefix := strings.Trim(config["prefix"], "/")

	dstBucket := target.Destination.Config["bucket"]
	dstPrefix := strings.Trim(target.Destination.Config["prefix"], "/")
	folder := time.Now().UTC().Format("20060102T150405Z")

	log.Line("listing objects under s3://%s/%s", srcBucket, srcPrefix)

	var (
		total     int64
		token     *string
		firstPage = true
	)

	for firstPage || token != nil {
		firstPage = false
		page, err := srcClient.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &srcBucket,
			Prefix:            prefixArg(srcPrefix),
			ContinuationToken: token,
		})
		if err != nil {
			log.Failure("list objects: %v", err)
			return Result{}, wrapFailure(execerr.KindSourceExecutionFailure, "s3 list failed", log, err)
		}

		for _, obj := range page.Contents {
			relPath := strings.TrimPrefix(*obj.Key, srcPrefix)
			relPath = strings.TrimPrefix(relPath, "/")

			destKey := joinS3Key(dstPrefix, folder, relPath)

			if err := copyObject(ctx, srcClient, dstClient, srcBucket, *obj.Key, dstBucket, destKey); err != nil {
				log.Failure("copy %s: %v", *obj.Key, err)
				return Result{}, wrapFailure(execerr.KindSourceExecutionFailure, "s3 object copy failed", log, err)
			}
			if obj.Size != nil {
				total += *obj.Size
			}
		}

		token = page.NextContinuationToken
	}

	destPath := fmt.Sprintf("s3://%s/%s/", dstBucket, joinS3Key(dstPrefix, folder, ""))
	log.Success("%d bytes synced to %s", total, destPath)

	return Result{
		FilePath: destPath,
		FileSize: total,
		Metadata: map[string]string{
			"source_bucket": srcBucket,
			"source_prefix": srcPrefix,
			"format":        "sync",
		},
		ExecutionLog: log.String(),
	}, nil
}

func prefixArg(prefix string) *string {
	if prefix == "" {
		return nil
	}
	return &prefix
}

// joinS3Key joins key segments with a single "/", skipping empty segments.
func joinS3Key(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			parts = append(parts, strings.Trim(s, "/"))
		}
	}
	return strings.Join(parts, "/")
}

// copyObject streams an object from srcClient to dstClient. When both
// clients share the same endpoint/credentials a server-side CopyObject would
// be cheaper, but source and destination may be entirely different
// providers, so a get-then-put is the only universally correct path.
func copyObject(ctx context.Context, srcClient, dstClient *s3.Client, srcBucket, srcKey, dstBucket, dstKey string) error {
	obj, err := srcClient.GetObject(ctx, &s3.GetObjectInput{Bucket: &srcBucket, Key: &srcKey})
	if err != nil {
		return fmt.Errorf("source: get object %s: %w", srcKey, err)
	}
	defer obj.Body.Close()

	_, err = dstClient.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &dstBucket,
		Key:           &dstKey,
		Body:          obj.Body,
		ContentLength: obj.ContentLength,
		StorageClass:  types.StorageClassStandard,
	})
	if err != nil {
		return fmt.Errorf("source: put object %s: %w", dstKey, err)
	}
	return nil
}

// bundleFromConfig builds a credential bundle directly from an already
// plaintext, already-merged config map (spec §4.8 step 3's effective config,
// see S6): unlike internal/credentials.Resolver, this does not touch the
// store or the envelope — the job's own config is the only source of these
// fields for the s3 source type.
func bundleFromConfig(config store.ConfigMap) *vaultcreds.Bundle {
	region := config["region"]
	if region == "" {
		region = "auto"
	}
	var endpoint *string
	if ep, ok := config["endpoint"]; ok && ep != "" {
		endpoint = &ep
	}
	return &vaultcreds.Bundle{
		Endpoint:        endpoint,
		Region:          region,
		AccessKeyID:     config["access_key_id"],
		SecretAccessKey: config["secret_access_key"],
	}
}
