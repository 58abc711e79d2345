// Package schema bootstraps the database on process startup: required
// extensions and the final-table shells the ingestor fills. The readiness
// wait is done beforehand by database.WaitForDatabase.
package schema

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// Bootstrap enables the extensions the final-table indexes need and
// creates the final tables if they don't already exist. Indexes
// themselves are deliberately not created here: building them on empty
// tables and then bulk-loading is slower than bulk-loading first.
func Bootstrap(ctx context.Context, db *bun.DB) error {
	if err := enableExtensions(ctx, db); err != nil {
		return err
	}
	return createFinalTables(ctx, db)
}

func enableExtensions(ctx context.Context, db *bun.DB) error {
	for _, ext := range []string{"pg_trgm", "btree_gin"} {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %s", ext)); err != nil {
			return fmt.Errorf("failed to enable extension %s: %v", ext, err)
		}
	}
	return nil
}

// createFinalTables creates empty shells for empresas' denormalised
// establishments table and socios, matching the DDL the ingest package
// issues at phase time, so a fresh database has the expected relations
// even before the first release has imported. Using IF NOT EXISTS makes
// this idempotent alongside the ingestor's own DROP/CREATE cycle in Phase
// 3 Part 2.
func createFinalTables(ctx context.Context, db *bun.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS estabelecimentos (
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
		)`,
		`CREATE TABLE IF NOT EXISTS socios (
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
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create final table: %v", err)
		}
	}
	return nil
}
