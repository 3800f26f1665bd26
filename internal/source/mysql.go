package source

import (
	"context"
	"fmt"

	"github.com/backupvault/core/internal/execerr"
	"github.com/backupvault/core/internal/store"
)

// mysqlStrategy dumps a database with mysqldump, streaming stdout through
// gzip into a single compressed file.
type mysqlStrategy struct{}

func (mysqlStrategy) Execute(ctx context.Context, config store.ConfigMap, target Target) (Result, error) {
	log := NewLog("mysql")

	host := config["host"]
	port := config["port"]
	if port == "" {
		port = "3306"
	}
	database := config["database"]
	username := config["username"]
	password := config["password"]

	log.Line("dumping database %q on %s:%s", database, host, port)

	fileName := fmt.Sprintf("mysql_%s_%s.sql.gz", database, compactTimestamp())
	outputPath := joinPath(outputDir(target), fileName)

	args := []string{
		"-h", host,
		"-P", port,
		"-u", username,
		fmt.Sprintf("--password=%s", password),
		"--single-transaction",
		"--routines",
		database,
	}

	size, err := runDumpToGzipFile(ctx, "mysqldump", args, nil, outputPath)
	if err != nil {
		log.Failure("mysqldump: %v", err)
		return Result{}, wrapFailure(execerr.KindSourceExecutionFailure, "mysql dump failed", log, err)
	}

	log.Success("%d bytes written to %s", size, fileName)

	return Result{
		FilePath: outputPath,
		FileSize: size,
		Metadata: map[string]string{
			"database":   database,
			"host":       host,
			"format":     "sql",
			"compressed": "true",
		},
		ExecutionLog: log.String(),
	}, nil
}
