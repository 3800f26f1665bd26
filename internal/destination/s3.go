package destination

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/backupvault/core/internal/credentials"
	"github.com/backupvault/core/internal/objectstore"
	"github.com/backupvault/core/internal/store"
)

// s3Handler uploads a local file to an S3-compatible bucket using the
// credential bundle the caller resolved for this copy, building a fresh
// client each time — no client or credential is cached across calls.
type s3Handler struct{}

func (s3Handler) Copy(ctx context.Context, sourceFilePath string, dest *store.Destination, config store.ConfigMap, creds *credentials.Bundle) (Result, error) {
	log := newLog()

	if creds == nil {
		err := fmt.Errorf("s3 destination requires resolved credentials")
		log.fail("%v", err)
		return Result{}, wrapFailure("s3 copy misconfigured", log, err)
	}

	client, err := objectstore.NewClient(ctx, creds)
	if err != nil {
		log.fail("build client: %v", err)
		return Result{}, wrapFailure("s3 copy client failed", log, err)
	}

	bucket := config["bucket"]
	prefix := strings.Trim(config["prefix"], "/")
	key := strings.Trim(strings.Join(trimEmpty(prefix, filepath.Base(sourceFilePath)), "/"), "/")

	log.line("uploading %s to s3://%s/%s", sourceFilePath, bucket, key)

	f, err := os.Open(sourceFilePath)
	if err != nil {
		log.fail("open source: %v", err)
		return Result{}, wrapFailure("s3 copy failed: open source", log, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		log.fail("stat source: %v", err)
		return Result{}, wrapFailure("s3 copy failed: stat", log, err)
	}

	size := info.Size()
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &bucket,
		Key:           &key,
		Body:          f,
		ContentLength: &size,
	})
	if err != nil {
		log.fail("put object: %v", err)
		return Result{}, wrapFailure("s3 upload failed", log, err)
	}

	filePath := fmt.Sprintf("s3://%s/%s", bucket, key)
	log.ok("%d bytes written to %s", info.Size(), filePath)

	return Result{FilePath: filePath, FileSize: info.Size(), ExecutionLog: log.String()}, nil
}

func trimEmpty(parts ...string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
