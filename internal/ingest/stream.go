package ingest

import (
	"context"
	"database/sql"
	"path/filepath"
	"time"

	"github.com/vision-digital/cnpj-ingestd/internal/apperrors"
	"github.com/vision-digital/cnpj-ingestd/internal/checkpoint"
	"github.com/vision-digital/cnpj-ingestd/internal/logger"
	"github.com/vision-digital/cnpj-ingestd/internal/metrics"
)

// buildFunc turns a positional CSV row into COPY arguments, or ok=false to
// skip the row (too short, or filtered out by a dataset-specific rule).
type buildFunc func(row []string) ([]interface{}, bool)

// streamFilesToTable streams every pending file in files into table using
// COPY, committing and checkpointing after each file. Already-processed
// files (per the checkpoint store) are skipped. Returns the number of files
// streamed and the total rows written in this call.
func streamFilesToTable(
	ctx context.Context,
	db *sql.DB,
	cp *checkpoint.Store,
	release, phase, table string,
	columns []string,
	batchSize int,
	files []string,
	build buildFunc,
) (filesStreamed int, totalRows int64, err error) {
	for _, path := range files {
		name := filepath.Base(path)
		done, err := cp.IsFileProcessed(release, phase, name)
		if err != nil {
			return filesStreamed, totalRows, err
		}
		if done {
			continue
		}

		start := time.Now()
		rows, err := streamOneFile(ctx, db, table, columns, batchSize, path, build)
		if err != nil {
			return filesStreamed, totalRows, err
		}
		if err := cp.MarkFile(release, phase, name, rows); err != nil {
			return filesStreamed, totalRows, err
		}
		logger.LogFileProcessed(release, phase, name, rows, time.Since(start))
		metrics.RowsIngested.WithLabelValues(release, phase).Add(float64(rows))
		filesStreamed++
		totalRows += rows
	}
	return filesStreamed, totalRows, nil
}

func streamOneFile(
	ctx context.Context,
	db *sql.DB,
	table string,
	columns []string,
	batchSize int,
	path string,
	build buildFunc,
) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.NewCopyFailed("failed to begin transaction", err, nil)
	}

	w := newCopyWriter(tx, table, columns, batchSize)

	readErr := readAll(path, func(row []string) error {
		args, ok := build(row)
		if !ok {
			return nil
		}
		return w.WriteRow(args)
	})
	if readErr != nil {
		tx.Rollback()
		return 0, readErr
	}
	if err := w.Close(); err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, apperrors.NewCopyFailed("failed to commit file", err, nil)
	}

	return w.Total(), nil
}
