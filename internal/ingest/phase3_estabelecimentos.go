package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vision-digital/cnpj-ingestd/internal/apperrors"
	"github.com/vision-digital/cnpj-ingestd/internal/checkpoint"
	"github.com/vision-digital/cnpj-ingestd/internal/logger"
	"github.com/vision-digital/cnpj-ingestd/internal/metrics"
)

// OnChunkProgress, when set, is called after each Phase 3 Part 2 chunk
// consolidates, reporting the number of chunks completed so far minus one
// (chunks completed by an earlier run included) out of numChunks, and the
// rows the chunk inserted. The CLI uses this to drive a terminal progress bar; nil is a
// valid no-op default.
var OnChunkProgress func(release string, chunkIndex, totalChunks int, rowsThisChunk int64)

const (
	tableStagingEstabelecimentos = "staging_estabelecimentos"
	tableEstabelecimentos        = "estabelecimentos"
	numChunks                    = 100
	chunkRangeWidth              = 1000000
)

func ensureStagingEstabelecimentos(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS staging_estabelecimentos (
			cnpj14 VARCHAR(14) PRIMARY KEY,
			cnpj_basico VARCHAR(8),
			cnpj_ordem VARCHAR(4),
			cnpj_dv VARCHAR(2),
			matriz_filial VARCHAR(1),
			nome_fantasia TEXT,
			situacao_cadastral VARCHAR(2),
			data_situacao_cadastral VARCHAR(8),
			motivo_situacao_cadastral VARCHAR(2),
			nome_cidade_exterior TEXT,
			codigo_pais VARCHAR(3),
			pais TEXT,
			data_inicio_atividade VARCHAR(8),
			cnae_fiscal_principal VARCHAR(7),
			cnae_fiscal_secundaria TEXT,
			tipo_logradouro TEXT,
			logradouro TEXT,
			numero TEXT,
			complemento TEXT,
			bairro TEXT,
			cep VARCHAR(8),
			uf VARCHAR(2),
			municipio TEXT,
			ddd1 VARCHAR(4),
			telefone1 VARCHAR(9),
			ddd2 VARCHAR(4),
			telefone2 VARCHAR(9),
			ddd_fax VARCHAR(4),
			fax VARCHAR(9),
			email TEXT,
			situacao_especial TEXT,
			data_situacao_especial VARCHAR(8)
		)`)
	if err != nil {
		return fmt.Errorf("failed to create staging_estabelecimentos: %v", err)
	}
	return nil
}

func tableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, "public."+name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %v", name, err)
	}
	return exists, nil
}

func tableRowCount(ctx context.Context, db *sql.DB, name string) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, name)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %v", name, err)
	}
	return n, nil
}

// runEstabelecimentosPhase runs Phase 3 in its four checkpointed parts:
// staging load, chunked consolidation join, index creation, staging
// cleanup. empresaFiles/simplesFiles are only used by the guard, to
// re-execute Phases 1/2 inline if their staging tables have vanished.
func runEstabelecimentosPhase(
	ctx context.Context,
	db *sql.DB,
	cp *checkpoint.Store,
	release string,
	batchSize int,
	estabFiles, empresaFiles, simplesFiles []string,
) error {
	logger.LogPhaseStart(release, checkpoint.PhaseEstabelecimentos)
	start := time.Now()

	if err := guardStagingPresence(ctx, db, cp, release, batchSize, empresaFiles, simplesFiles); err != nil {
		return err
	}

	if err := runEstabelecimentosPart1(ctx, db, cp, release, batchSize, estabFiles); err != nil {
		return err
	}
	if err := runEstabelecimentosPart2(ctx, db, cp, release); err != nil {
		return err
	}
	if err := runEstabelecimentosPart3(ctx, db, cp, release); err != nil {
		return err
	}
	if err := runEstabelecimentosPart4(ctx, db, cp, release); err != nil {
		return err
	}

	if err := cp.MarkPhase(release, checkpoint.PhaseEstabelecimentos); err != nil {
		return err
	}
	logger.LogPhaseComplete(release, checkpoint.PhaseEstabelecimentos, 0, time.Since(start))
	return nil
}

// guardStagingPresence makes Phase 3 hermetic against ad-hoc drops: if
// Phase 1 or 2 is marked complete but their staging table is gone (e.g. a
// database reset between runs), their file checkpoints are invalidated and
// the phases re-executed inline.
func guardStagingPresence(
	ctx context.Context,
	db *sql.DB,
	cp *checkpoint.Store,
	release string,
	batchSize int,
	empresaFiles, simplesFiles []string,
) error {
	status, err := cp.Get(release)
	if err != nil {
		return err
	}
	if status.Estabelecimentos || (!status.Empresas && !status.Simples) {
		return nil
	}

	empresasExists, err := tableExists(ctx, db, tableStagingEmpresas)
	if err != nil {
		return err
	}
	simplesExists, err := tableExists(ctx, db, tableStagingSimples)
	if err != nil {
		return err
	}
	if empresasExists && simplesExists {
		return nil
	}

	logger.LogCheckpointRepair(release, checkpoint.PhaseEstabelecimentos, "staging_empresas or staging_simples missing before Phase 3")

	if err := cp.InvalidatePhase(release, checkpoint.PhaseEmpresas); err != nil {
		return err
	}
	if err := cp.InvalidatePhase(release, checkpoint.PhaseSimples); err != nil {
		return err
	}
	if err := runEmpresasPhase(ctx, db, cp, release, batchSize, empresaFiles); err != nil {
		return err
	}
	if err := runSimplesPhase(ctx, db, cp, release, batchSize, simplesFiles); err != nil {
		return err
	}
	return nil
}

func runEstabelecimentosPart1(ctx context.Context, db *sql.DB, cp *checkpoint.Store, release string, batchSize int, files []string) error {
	if err := ensureStagingEstabelecimentos(ctx, db); err != nil {
		return err
	}

	alreadyProcessed, err := cp.ListProcessedChunks(release, checkpoint.PhaseEstabPart1Staging)
	if err != nil {
		return err
	}
	if len(alreadyProcessed) == 0 {
		if _, err := db.ExecContext(ctx, `TRUNCATE TABLE staging_estabelecimentos`); err != nil {
			return apperrors.NewCopyFailed("failed to truncate staging_estabelecimentos", err, nil)
		}
	}

	build := func(row []string) ([]interface{}, bool) {
		r, ok := BuildEstabelecimentoRow(row)
		if !ok {
			return nil, false
		}
		return r.Fields(), true
	}

	_, _, err = streamFilesToTable(ctx, db, cp, release, checkpoint.PhaseEstabPart1Staging,
		tableStagingEstabelecimentos, estabelecimentoColumns, batchSize, files, build)
	return err
}

func chunkLabel(i int) string { return fmt.Sprintf("chunk_%03d", i) }

func chunkRange(i int) (start, end string, lastInclusive bool) {
	start = fmt.Sprintf("%08d", i*chunkRangeWidth)
	if i == numChunks-1 {
		return start, "99999999", true
	}
	return start, fmt.Sprintf("%08d", (i+1)*chunkRangeWidth), false
}

const consolidationColumns = `
	e.cnpj14, e.cnpj_basico, e.cnpj_ordem, e.cnpj_dv, e.matriz_filial,
	e.nome_fantasia, e.situacao_cadastral, e.data_situacao_cadastral,
	e.motivo_situacao_cadastral, e.nome_cidade_exterior, e.codigo_pais, e.pais,
	e.data_inicio_atividade, e.cnae_fiscal_principal, e.cnae_fiscal_secundaria,
	e.tipo_logradouro, e.logradouro, e.numero, e.complemento, e.bairro, e.cep,
	e.uf, e.municipio, e.ddd1, e.telefone1, e.ddd2, e.telefone2, e.ddd_fax,
	e.fax, e.email, e.situacao_especial, e.data_situacao_especial,
	emp.razao_social, emp.natureza_juridica, emp.qualificacao_responsavel,
	emp.capital_social, emp.porte_empresa, emp.ente_federativo,
	s.opcao_simples, s.data_opcao_simples, s.data_exclusao_simples,
	s.opcao_mei, s.data_opcao_mei, s.data_exclusao_mei`

const createEstabelecimentosDDL = `
	CREATE TABLE estabelecimentos (
		cnpj14 VARCHAR(14) PRIMARY KEY,
		cnpj_basico VARCHAR(8),
		cnpj_ordem VARCHAR(4),
		cnpj_dv VARCHAR(2),
		matriz_filial VARCHAR(1),
		nome_fantasia TEXT,
		situacao_cadastral VARCHAR(2),
		data_situacao_cadastral VARCHAR(8),
		motivo_situacao_cadastral VARCHAR(2),
		nome_cidade_exterior TEXT,
		codigo_pais VARCHAR(3),
		pais TEXT,
		data_inicio_atividade VARCHAR(8),
		cnae_fiscal_principal VARCHAR(7),
		cnae_fiscal_secundaria TEXT,
		tipo_logradouro TEXT,
		logradouro TEXT,
		numero TEXT,
		complemento TEXT,
		bairro TEXT,
		cep VARCHAR(8),
		uf VARCHAR(2),
		municipio TEXT,
		ddd1 VARCHAR(4),
		telefone1 VARCHAR(9),
		ddd2 VARCHAR(4),
		telefone2 VARCHAR(9),
		ddd_fax VARCHAR(4),
		fax VARCHAR(9),
		email TEXT,
		situacao_especial TEXT,
		data_situacao_especial VARCHAR(8),
		razao_social TEXT,
		natureza_juridica VARCHAR(4),
		qualificacao_responsavel VARCHAR(2),
		capital_social DECIMAL(18,2),
		porte_empresa VARCHAR(2),
		ente_federativo TEXT,
		opcao_simples VARCHAR(1),
		data_opcao_simples VARCHAR(8),
		data_exclusao_simples VARCHAR(8),
		opcao_mei VARCHAR(1),
		data_opcao_mei VARCHAR(8),
		data_exclusao_mei VARCHAR(8)
	)`

func runEstabelecimentosPart2(ctx context.Context, db *sql.DB, cp *checkpoint.Store, release string) error {
	done, err := cp.IsFileProcessed(release, checkpoint.PhaseEstabPart2CreateTable, checkpoint.ConsolidatedLabel)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	processedChunks, err := cp.ListProcessedChunks(release, checkpoint.PhaseEstabPart2Chunks)
	if err != nil {
		return err
	}

	finalExists, err := tableExists(ctx, db, tableEstabelecimentos)
	if err != nil {
		return err
	}
	stagingExists, err := tableExists(ctx, db, tableStagingEstabelecimentos)
	if err != nil {
		return err
	}

	if len(processedChunks) == 0 && finalExists && stagingExists {
		recovered, err := recoverConsolidationProgress(ctx, db)
		if err != nil {
			return err
		}
		for label, rows := range recovered {
			if err := cp.MarkFile(release, checkpoint.PhaseEstabPart2Chunks, label, rows); err != nil {
				return err
			}
			processedChunks[label] = rows
		}
		if len(recovered) > 0 {
			logger.LogCheckpointRepair(release, checkpoint.PhaseEstabPart2Chunks,
				fmt.Sprintf("recovered %d consolidated chunks from a prior uncheckpointed run", len(recovered)))
		}
	}

	if len(processedChunks) == numChunks {
		total := sumChunkRows(processedChunks)
		if total == 0 {
			total, err = tableRowCount(ctx, db, tableEstabelecimentos)
			if err != nil {
				return err
			}
		}
		return cp.MarkFile(release, checkpoint.PhaseEstabPart2CreateTable, checkpoint.ConsolidatedLabel, total)
	}

	empresasCount, err := tableRowCount(ctx, db, tableStagingEmpresas)
	if err != nil {
		return err
	}
	if empresasCount == 0 {
		return apperrors.NewCheckpointCorruption("staging_empresas is empty; Phase 1 must run before Phase 3")
	}
	simplesCount, err := tableRowCount(ctx, db, tableStagingSimples)
	if err != nil {
		return err
	}
	if simplesCount == 0 {
		return apperrors.NewCheckpointCorruption("staging_simples is empty; Phase 2 must run before Phase 3")
	}

	if len(processedChunks) == 0 || !finalExists {
		if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS estabelecimentos CASCADE`); err != nil {
			return fmt.Errorf("failed to drop estabelecimentos: %v", err)
		}
		if _, err := db.ExecContext(ctx, createEstabelecimentosDDL); err != nil {
			return fmt.Errorf("failed to create estabelecimentos: %v", err)
		}
		processedChunks = map[string]int64{}
	}

	return consolidateChunks(ctx, db, cp, release, processedChunks)
}

func sumChunkRows(chunks map[string]int64) int64 {
	var total int64
	for _, n := range chunks {
		total += n
	}
	return total
}

// recoverConsolidationProgress reconstructs Part 2 checkpoints after a
// crash between an INSERT commit and its checkpoint write, by comparing
// final-table counts against staging-table counts per 1M-wide range.
func recoverConsolidationProgress(ctx context.Context, db *sql.DB) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, `
		WITH final_counts AS (
			SELECT (cnpj_basico::bigint / 1000000)::int AS chunk_num, COUNT(*) AS rows_imported
			FROM estabelecimentos GROUP BY 1
		),
		staging_counts AS (
			SELECT (cnpj_basico::bigint / 1000000)::int AS chunk_num, COUNT(*) AS rows_expected
			FROM staging_estabelecimentos GROUP BY 1
		)
		SELECT f.chunk_num, f.rows_imported, s.rows_expected
		FROM final_counts f JOIN staging_counts s ON s.chunk_num = f.chunk_num
		ORDER BY f.chunk_num`)
	if err != nil {
		return nil, fmt.Errorf("failed to query consolidation recovery: %v", err)
	}
	defer rows.Close()

	recovered := map[string]int64{}
	for rows.Next() {
		var chunkNum int
		var imported, expected int64
		if err := rows.Scan(&chunkNum, &imported, &expected); err != nil {
			return nil, fmt.Errorf("failed to scan recovery row: %v", err)
		}
		if expected > 0 && imported == expected {
			recovered[chunkLabel(chunkNum)] = imported
		}
	}
	return recovered, rows.Err()
}

func consolidateChunks(ctx context.Context, db *sql.DB, cp *checkpoint.Store, release string, processedChunks map[string]int64) error {
	totalRows := sumChunkRows(processedChunks)
	initialChunksDone := len(processedChunks)
	chunksDone := initialChunksDone
	rowsThisRun := int64(0)
	needsCleanup := initialChunksDone > 0
	globalStart := time.Now()

	for i := 0; i < numChunks; i++ {
		label := chunkLabel(i)
		if _, ok := processedChunks[label]; ok {
			continue
		}

		rangeStart, rangeEnd, lastInclusive := chunkRange(i)

		if needsCleanup {
			deleteSQL := "DELETE FROM estabelecimentos WHERE cnpj_basico >= $1 AND cnpj_basico < $2"
			if lastInclusive {
				deleteSQL = "DELETE FROM estabelecimentos WHERE cnpj_basico >= $1 AND cnpj_basico <= $2"
			}
			if _, err := db.ExecContext(ctx, deleteSQL, rangeStart, rangeEnd); err != nil {
				return fmt.Errorf("failed to clean chunk %s before re-insert: %v", label, err)
			}
			needsCleanup = false
		}

		whereOp := "<"
		if lastInclusive {
			whereOp = "<="
		}
		query := fmt.Sprintf(`
			INSERT INTO estabelecimentos
			SELECT %s
			FROM staging_estabelecimentos e
			LEFT JOIN staging_empresas emp ON emp.cnpj_basico = e.cnpj_basico
			LEFT JOIN staging_simples s ON s.cnpj_basico = e.cnpj_basico
			WHERE e.cnpj_basico >= $1 AND e.cnpj_basico %s $2`, consolidationColumns, whereOp)

		chunkStart := time.Now()
		res, err := db.ExecContext(ctx, query, rangeStart, rangeEnd)
		if err != nil {
			return apperrors.NewCopyFailed(fmt.Sprintf("consolidation insert failed for %s", label), err, nil)
		}
		rowsInserted, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected for %s: %v", label, err)
		}
		metrics.ChunkConsolidationSeconds.WithLabelValues(release).Observe(time.Since(chunkStart).Seconds())
		metrics.ChunkConsolidationRows.WithLabelValues(release).Add(float64(rowsInserted))

		if err := cp.MarkFile(release, checkpoint.PhaseEstabPart2Chunks, label, rowsInserted); err != nil {
			return err
		}

		chunksDone++
		totalRows += rowsInserted
		rowsThisRun += rowsInserted
		chunksThisRun := chunksDone - initialChunksDone
		logger.LogChunkProgress(release, label, chunksDone-1, chunksThisRun, rowsInserted, rowsThisRun, totalRows, time.Since(globalStart))
		if OnChunkProgress != nil {
			OnChunkProgress(release, chunksDone-1, numChunks, rowsInserted)
		}
	}

	return cp.MarkFile(release, checkpoint.PhaseEstabPart2CreateTable, checkpoint.ConsolidatedLabel, totalRows)
}

var estabelecimentosIndexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_estabelecimentos_cnpj_basico ON estabelecimentos (cnpj_basico)",
	"CREATE INDEX IF NOT EXISTS idx_estabelecimentos_uf ON estabelecimentos (uf)",
	"CREATE INDEX IF NOT EXISTS idx_estabelecimentos_municipio ON estabelecimentos (municipio)",
	"CREATE INDEX IF NOT EXISTS idx_estabelecimentos_cnae ON estabelecimentos (cnae_fiscal_principal)",
	"CREATE INDEX IF NOT EXISTS idx_estabelecimentos_nome_trgm ON estabelecimentos USING GIN (nome_fantasia gin_trgm_ops)",
	"CREATE INDEX IF NOT EXISTS idx_estabelecimentos_razao_trgm ON estabelecimentos USING GIN (razao_social gin_trgm_ops)",
	"CREATE INDEX IF NOT EXISTS idx_estabelecimentos_natureza ON estabelecimentos (natureza_juridica)",
	"CREATE INDEX IF NOT EXISTS idx_estabelecimentos_porte ON estabelecimentos (porte_empresa)",
	"CREATE INDEX IF NOT EXISTS idx_estabelecimentos_opcao_simples ON estabelecimentos (opcao_simples)",
	"CREATE INDEX IF NOT EXISTS idx_estabelecimentos_opcao_mei ON estabelecimentos (opcao_mei)",
}

func runEstabelecimentosPart3(ctx context.Context, db *sql.DB, cp *checkpoint.Store, release string) error {
	done, err := cp.IsFileProcessed(release, checkpoint.PhaseEstabPart3Indexes, checkpoint.IndexesCreatedLabel)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	for _, idx := range estabelecimentosIndexes {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin index transaction: %v", err)
		}
		if _, err := tx.ExecContext(ctx, idx); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to create index: %v", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit index creation: %v", err)
		}
	}

	return cp.MarkFile(release, checkpoint.PhaseEstabPart3Indexes, checkpoint.IndexesCreatedLabel, 0)
}

func runEstabelecimentosPart4(ctx context.Context, db *sql.DB, cp *checkpoint.Store, release string) error {
	done, err := cp.IsFileProcessed(release, checkpoint.PhaseEstabPart4Cleanup, checkpoint.StagingDroppedLabel)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	for _, table := range []string{tableStagingEstabelecimentos, tableStagingEmpresas, tableStagingSimples} {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, table)); err != nil {
			return fmt.Errorf("failed to drop %s: %v", table, err)
		}
	}

	return cp.MarkFile(release, checkpoint.PhaseEstabPart4Cleanup, checkpoint.StagingDroppedLabel, 0)
}
