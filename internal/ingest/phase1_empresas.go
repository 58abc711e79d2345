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

const tableStagingEmpresas = "staging_empresas"

func ensureStagingEmpresas(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS staging_empresas (
			cnpj_basico VARCHAR(8) PRIMARY KEY,
			razao_social VARCHAR(255),
			natureza_juridica VARCHAR(4),
			qualificacao_responsavel VARCHAR(2),
			capital_social DECIMAL(20,2),
			porte_empresa VARCHAR(2),
			ente_federativo VARCHAR(100)
		)`)
	if err != nil {
		return fmt.Errorf("failed to create staging_empresas: %v", err)
	}
	return nil
}

// runEmpresasPhase streams every EMPRECSV file into staging_empresas,
// truncating the table first if this is a fresh run for the release.
func runEmpresasPhase(ctx context.Context, db *sql.DB, cp *checkpoint.Store, release string, batchSize int, files []string) error {
	logger.LogPhaseStart(release, checkpoint.PhaseEmpresas)
	start := time.Now()

	if err := ensureStagingEmpresas(ctx, db); err != nil {
		return err
	}

	alreadyProcessed, err := cp.ListProcessedChunks(release, checkpoint.PhaseEmpresas)
	if err != nil {
		return err
	}
	if len(alreadyProcessed) == 0 {
		if _, err := db.ExecContext(ctx, `TRUNCATE TABLE staging_empresas`); err != nil {
			return apperrors.NewCopyFailed("failed to truncate staging_empresas", err, nil)
		}
	}

	build := func(row []string) ([]interface{}, bool) {
		r, ok := BuildEmpresaRow(row)
		if !ok {
			return nil, false
		}
		return r.Fields(), true
	}

	_, rows, err := streamFilesToTable(ctx, db, cp, release, checkpoint.PhaseEmpresas,
		tableStagingEmpresas, empresaColumns, batchSize, files, build)
	if err != nil {
		return err
	}

	if err := cp.MarkPhase(release, checkpoint.PhaseEmpresas); err != nil {
		return err
	}
	logger.LogPhaseComplete(release, checkpoint.PhaseEmpresas, rows, time.Since(start))
	return nil
}
