package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vision-digital/cnpj-ingestd/internal/apperrors"
	"github.com/vision-digital/cnpj-ingestd/internal/checkpoint"
	"github.com/vision-digital/cnpj-ingestd/internal/logger"
)

const tableStagingSimples = "staging_simples"

func ensureStagingSimples(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS staging_simples (
			cnpj_basico VARCHAR(8) PRIMARY KEY,
			opcao_simples VARCHAR(1),
			data_opcao_simples VARCHAR(8),
			data_exclusao_simples VARCHAR(8),
			opcao_mei VARCHAR(1),
			data_opcao_mei VARCHAR(8),
			data_exclusao_mei VARCHAR(8)
		)`)
	if err != nil {
		return fmt.Errorf("failed to create staging_simples: %v", err)
	}
	return nil
}

// runSimplesPhase streams every SIMECSV/SIMPLES file into staging_simples,
// truncating the table first if this is a fresh run for the release.
func runSimplesPhase(ctx context.Context, db *sql.DB, cp *checkpoint.Store, release string, batchSize int, files []string) error {
	logger.LogPhaseStart(release, checkpoint.PhaseSimples)
	start := time.Now()

	if err := ensureStagingSimples(ctx, db); err != nil {
		return err
	}

	alreadyProcessed, err := cp.ListProcessedChunks(release, checkpoint.PhaseSimples)
	if err != nil {
		return err
	}
	if len(alreadyProcessed) == 0 {
		if _, err := db.ExecContext(ctx, `TRUNCATE TABLE staging_simples`); err != nil {
			return apperrors.NewCopyFailed("failed to truncate staging_simples", err, nil)
		}
	}

	build := func(row []string) ([]interface{}, bool) {
		r, ok := BuildSimplesRow(row)
		if !ok {
			return nil, false
		}
		return r.Fields(), true
	}

	_, rows, err := streamFilesToTable(ctx, db, cp, release, checkpoint.PhaseSimples,
		tableStagingSimples, simplesColumns, batchSize, files, build)
	if err != nil {
		return err
	}

	if err := cp.MarkPhase(release, checkpoint.PhaseSimples); err != nil {
		return err
	}
	logger.LogPhaseComplete(release, checkpoint.PhaseSimples, rows, time.Since(start))
	return nil
}
