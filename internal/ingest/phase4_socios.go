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

const tableSocios = "socios"

func ensureSocios(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS socios (
			id BIGSERIAL PRIMARY KEY,
			cnpj_basico VARCHAR(8),
			identificador_socio VARCHAR(1),
			nome_socio TEXT,
			cnpj_cpf_socio TEXT,
			codigo_qualificacao_socio VARCHAR(2),
			percentual_capital_social VARCHAR(6),
			data_entrada_sociedade VARCHAR(8),
			codigo_pais VARCHAR(3),
			cpf_representante_legal VARCHAR(11),
			nome_representante_legal TEXT,
			codigo_qualificacao_representante VARCHAR(2),
			faixa_etaria VARCHAR(2)
		)`)
	if err != nil {
		return fmt.Errorf("failed to create socios: %v", err)
	}
	return nil
}

func createSociosIndexes(ctx context.Context, db *sql.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_socios_cnpj_basico ON socios (cnpj_basico)",
		"CREATE INDEX IF NOT EXISTS idx_socios_nome_trgm ON socios USING GIN (nome_socio gin_trgm_ops)",
		"CREATE INDEX IF NOT EXISTS idx_socios_cpf_trgm ON socios USING GIN (cnpj_cpf_socio gin_trgm_ops)",
	}
	for _, idx := range indexes {
		if _, err := db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("failed to create socios index: %v", err)
		}
	}
	return nil
}

// runSociosPhase streams every SOCIO* file directly into the final socios
// table (no denormalisation needed), then builds its indexes.
func runSociosPhase(ctx context.Context, db *sql.DB, cp *checkpoint.Store, release string, batchSize int, files []string) error {
	logger.LogPhaseStart(release, checkpoint.PhaseSocios)
	start := time.Now()

	if err := ensureSocios(ctx, db); err != nil {
		return err
	}

	alreadyProcessed, err := cp.ListProcessedChunks(release, checkpoint.PhaseSocios)
	if err != nil {
		return err
	}
	if len(alreadyProcessed) == 0 {
		if _, err := db.ExecContext(ctx, `TRUNCATE TABLE socios`); err != nil {
			return apperrors.NewCopyFailed("failed to truncate socios", err, nil)
		}
	}

	build := func(row []string) ([]interface{}, bool) {
		r, ok := BuildSocioRow(row)
		if !ok {
			return nil, false
		}
		return r.Fields(), true
	}

	_, rows, err := streamFilesToTable(ctx, db, cp, release, checkpoint.PhaseSocios,
		tableSocios, sociosColumns, batchSize, files, build)
	if err != nil {
		return err
	}

	if err := createSociosIndexes(ctx, db); err != nil {
		return err
	}

	if err := cp.MarkPhase(release, checkpoint.PhaseSocios); err != nil {
		return err
	}
	logger.LogPhaseComplete(release, checkpoint.PhaseSocios, rows, time.Since(start))
	return nil
}
