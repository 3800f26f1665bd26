package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/backupvault/core/internal/execerr"
	"github.com/backupvault/core/internal/store"
)

// mongoStrategy dumps a database with mongodump using its --archive/--gzip
// mode, producing a single compressed archive file rather than a directory
// tree.
type mongoStrategy struct{}

// databaseFromConnectionString extracts the database name from a mongodb://
// or mongodb+srv:// URI's path component, per spec §4.6 ("metadata carries
// the database name parsed from the URL").
func databaseFromConnectionString(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

func (mongoStrategy) Execute(ctx context.Context, config store.ConfigMap, target Target) (Result, error) {
	log := NewLog("mongodb")

	connStr := config["connection_string"]
	database := databaseFromConnectionString(connStr)

	log.Line("dumping database %q via mongodump", database)

	fileName := fmt.Sprintf("mongodb_%s_%s.archive.gz", database, compactTimestamp())
	outputPath := joinPath(outputDir(target), fileName)

	args := []string{
		"--uri", connStr,
		"--archive=" + outputPath,
		"--gzip",
	}

	size, err := runToolWritingOwnFile(ctx, "mongodump", args, nil, outputPath)
	if err != nil {
		log.Failure("mongodump: %v", err)
		return Result{}, wrapFailure(execerr.KindSourceExecutionFailure, "mongodb dump failed", log, err)
	}

	log.Success("%d bytes written to %s", size, fileName)

	return Result{
		FilePath: outputPath,
		FileSize: size,
		Metadata: map[string]string{
			"database":   database,
			"format":     "archive",
			"compressed": "true",
		},
		ExecutionLog: log.String(),
	}, nil
}
