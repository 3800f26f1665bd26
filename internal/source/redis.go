package source

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/backupvault/core/internal/execerr"
	"github.com/backupvault/core/internal/store"
)

// redisStrategy triggers a point-in-time RDB snapshot via BGSAVE (using the
// same go-redis client the Work Queue's broker connection uses, rather than
// shelling out to redis-cli for the trigger), waits for LASTSAVE to advance
// past the pre-trigger timestamp, then streams the resulting dataset with
// redis-cli's --rdb replication mode into a file and gzip-compresses it.
type redisStrategy struct{}

func (redisStrategy) Execute(ctx context.Context, config store.ConfigMap, target Target) (Result, error) {
	log := NewLog("redis")

	host := config["host"]
	port := config["port"]
	if port == "" {
		port = "6379"
	}
	password := config["password"]
	database := config["database"]
	if database == "" {
		database = "0"
	}
	dbIndex, err := strconv.Atoi(database)
	if err != nil {
		dbIndex = 0
	}

	addr := fmt.Sprintf("%s:%s", host, port)
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: dbIndex})
	defer client.Close()

	log.Line("triggering BGSAVE on %s db %d", addr, dbIndex)

	before, err := client.LastSave(ctx).Result()
	if err != nil {
		log.Failure("connect/LASTSAVE: %v", err)
		return Result{}, wrapFailure(execerr.KindSourceExecutionFailure, "redis connect failed", log, err)
	}

	if err := client.BGSave(ctx).Err(); err != nil {
		log.Failure("BGSAVE: %v", err)
		return Result{}, wrapFailure(execerr.KindSourceExecutionFailure, "redis BGSAVE failed", log, err)
	}

	if err := waitForSaveToAdvance(ctx, client, before); err != nil {
		log.Failure("waiting for BGSAVE to finish: %v", err)
		return Result{}, wrapFailure(execerr.KindSourceExecutionFailure, "redis BGSAVE did not complete", log, err)
	}

	fileName := fmt.Sprintf("redis_%s_%s.rdb.gz", database, compactTimestamp())
	outputPath := joinPath(outputDir(target), fileName)
	rawPath := outputPath + ".raw"

	args := []string{"-h", host, "-p", port, "-n", database, "--rdb", rawPath}
	var env []string
	if password != "" {
		env = []string{"REDISCLI_AUTH=" + password}
	}

	if _, err := runToolWritingOwnFile(ctx, "redis-cli", args, env, rawPath); err != nil {
		log.Failure("redis-cli --rdb: %v", err)
		return Result{}, wrapFailure(execerr.KindSourceExecutionFailure, "redis rdb fetch failed", log, err)
	}
	defer os.Remove(rawPath)

	size, err := gzipFile(rawPath, outputPath)
	if err != nil {
		log.Failure("compress rdb: %v", err)
		return Result{}, wrapFailure(execerr.KindSourceExecutionFailure, "redis rdb compression failed", log, err)
	}

	log.Success("%d bytes written to %s", size, fileName)

	return Result{
		FilePath: outputPath,
		FileSize: size,
		Metadata: map[string]string{
			"format":     "rdb",
			"compressed": "true",
			"database":   database,
		},
		ExecutionLog: log.String(),
	}, nil
}

// waitForSaveToAdvance polls LASTSAVE until it moves past before, meaning the
// BGSAVE triggered above has completed, or ctx is cancelled.
func waitForSaveToAdvance(ctx context.Context, client *redis.Client, before int64) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.Now().Add(5 * time.Minute)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			after, err := client.LastSave(ctx).Result()
			if err != nil {
				return err
			}
			if after > before {
				return nil
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("source: BGSAVE did not complete within 5m")
			}
		}
	}
}

func gzipFile(srcPath, dstPath string) (int64, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("source: open raw rdb: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return 0, fmt.Errorf("source: create gzip output: %w", err)
	}
	defer dst.Close()

	counter := &countingWriter{w: dst}
	gz := gzip.NewWriter(counter)

	if _, err := io.Copy(gz, src); err != nil {
		return 0, fmt.Errorf("source: gzip copy: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("source: finalize gzip: %w", err)
	}
	return counter.total, nil
}
