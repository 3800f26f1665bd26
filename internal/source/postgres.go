package source

import (
	"context"
	"fmt"

	"github.com/backupvault/core/internal/execerr"
	"github.com/backupvault/core/internal/store"
)

// postgresStrategy dumps a database with pg_dump, streaming stdout through
// gzip into a single compressed file. Credentials travel via PGPASSWORD
// rather than a CLI flag so they never appear in a process listing.
type postgresStrategy struct{}

func (postgresStrategy) Execute(ctx context.Context, config store.ConfigMap, target Target) (Result, error) {
	log := NewLog("postgres")

	host := config["host"]
	port := config["port"]
	if port == "" {
		port = "5432"
	}
	database := config["database"]
	username := config["username"]
	password := config["password"]

	log.Line("dumping database %q on %s:%s", database, host, port)

	fileName := fmt.Sprintf("postgres_%s_%s.sql.gz", database, compactTimestamp())
	outputPath := joinPath(outputDir(target), fileName)

	args := []string{
		"-h", host,
		"-p", port,
		"-U", username,
		"-d", database,
		"--no-password",
		"-F", "p",
	}
	env := []string{"PGPASSWORD=" + password}

	size, err := runDumpToGzipFile(ctx, "pg_dump", args, env, outputPath)
	if err != nil {
		log.Failure("pg_dump: %v", err)
		return Result{}, wrapFailure(execerr.KindSourceExecutionFailure, "postgres dump failed", log, err)
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
