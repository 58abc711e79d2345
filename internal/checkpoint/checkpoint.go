// Package checkpoint persists per-release phase completion and per-file
// ingestion records, giving the streaming ingestor resumability.
package checkpoint

import (
	"database/sql"
	"fmt"
)

// Phase tag constants. The four "fase1_empresas".."fase4_socios"-style tags
// double as both import_checkpoints boolean columns (top-level phases) and
// import_files_processed phase labels (per-file / per-chunk / synthetic
// granularity within Phase 3).
const (
	PhaseEmpresas              = "fase1_empresas"
	PhaseSimples               = "fase2_simples"
	PhaseEstabelecimentos      = "fase3_estabelecimentos"
	PhaseEstabPart1Staging     = "fase3_parte1_staging"
	PhaseEstabPart2Chunks      = "fase3_parte2_chunks"
	PhaseEstabPart2CreateTable = "fase3_parte2_create_table"
	PhaseEstabPart3Indexes     = "fase3_parte3_indexes"
	PhaseEstabPart4Cleanup     = "fase3_parte4_cleanup"
	PhaseSocios                = "fase4_socios"
)

// ConsolidatedLabel is the synthetic file name recorded once all 100
// consolidation chunks have completed.
const ConsolidatedLabel = "CONSOLIDATED"

// IndexesCreatedLabel is the synthetic file name recorded once Phase 3 Part
// 3's indexes have all been created.
const IndexesCreatedLabel = "INDEXES_CREATED"

// StagingDroppedLabel is the synthetic file name recorded once Phase 3 Part
// 4's staging cleanup has run.
const StagingDroppedLabel = "STAGING_DROPPED"

// PhaseStatus reports whether each of the four top-level phases has
// completed for a release.
type PhaseStatus struct {
	Empresas          bool
	Simples           bool
	Estabelecimentos  bool
	Socios            bool
}

// Store is the checkpoint persistence layer, backed by two tables:
// import_checkpoints (one row per release, booleans per top-level phase) and
// import_files_processed (unique per release/phase/filename, appended as
// each unit of work durably commits).
type Store struct {
	db *sql.DB
}

// NewStore wraps db as a checkpoint store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the checkpoint tables if they do not already exist.
func (s *Store) EnsureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS import_checkpoints (
			release TEXT PRIMARY KEY,
			fase1_empresas BOOLEAN NOT NULL DEFAULT false,
			fase2_simples BOOLEAN NOT NULL DEFAULT false,
			fase3_estabelecimentos BOOLEAN NOT NULL DEFAULT false,
			fase4_socios BOOLEAN NOT NULL DEFAULT false,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create import_checkpoints: %v", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS import_files_processed (
			id BIGSERIAL PRIMARY KEY,
			release TEXT NOT NULL,
			fase TEXT NOT NULL,
			filename TEXT NOT NULL,
			rows_imported BIGINT NOT NULL DEFAULT 0,
			processed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (release, fase, filename)
		)`)
	if err != nil {
		return fmt.Errorf("failed to create import_files_processed: %v", err)
	}
	return nil
}

// DropSchema drops both checkpoint tables, used by the post-phase cleanup
// once all four phases have succeeded.
func (s *Store) DropSchema() error {
	if _, err := s.db.Exec(`DROP TABLE IF EXISTS import_files_processed`); err != nil {
		return fmt.Errorf("failed to drop import_files_processed: %v", err)
	}
	if _, err := s.db.Exec(`DROP TABLE IF EXISTS import_checkpoints`); err != nil {
		return fmt.Errorf("failed to drop import_checkpoints: %v", err)
	}
	return nil
}

// Get returns the phase-completion status for release, creating an
// all-false row on first call.
func (s *Store) Get(release string) (PhaseStatus, error) {
	_, err := s.db.Exec(`
		INSERT INTO import_checkpoints (release) VALUES ($1)
		ON CONFLICT (release) DO NOTHING`, release)
	if err != nil {
		return PhaseStatus{}, fmt.Errorf("failed to ensure checkpoint row: %v", err)
	}

	var status PhaseStatus
	err = s.db.QueryRow(`
		SELECT fase1_empresas, fase2_simples, fase3_estabelecimentos, fase4_socios
		FROM import_checkpoints WHERE release = $1`, release).
		Scan(&status.Empresas, &status.Simples, &status.Estabelecimentos, &status.Socios)
	if err != nil {
		return PhaseStatus{}, fmt.Errorf("failed to read checkpoint: %v", err)
	}
	return status, nil
}

// phaseColumn maps a top-level phase tag to its import_checkpoints column.
func phaseColumn(phase string) (string, error) {
	switch phase {
	case PhaseEmpresas:
		return "fase1_empresas", nil
	case PhaseSimples:
		return "fase2_simples", nil
	case PhaseEstabelecimentos:
		return "fase3_estabelecimentos", nil
	case PhaseSocios:
		return "fase4_socios", nil
	default:
		return "", fmt.Errorf("%q is not a top-level phase", phase)
	}
}

// MarkPhase idempotently sets phase complete for release.
func (s *Store) MarkPhase(release, phase string) error {
	col, err := phaseColumn(phase)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(fmt.Sprintf(`
		INSERT INTO import_checkpoints (release, %s, updated_at) VALUES ($1, true, now())
		ON CONFLICT (release) DO UPDATE SET %s = true, updated_at = now()`, col, col), release)
	if err != nil {
		return fmt.Errorf("failed to mark phase %s: %v", phase, err)
	}
	return nil
}

// InvalidatePhase clears a top-level phase's completion flag and deletes its
// file-level checkpoints, used by the Phase 3 guard to force Phase 1/2 to
// re-run when their staging tables have vanished.
func (s *Store) InvalidatePhase(release, phase string) error {
	col, err := phaseColumn(phase)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(fmt.Sprintf(
		`UPDATE import_checkpoints SET %s = false, updated_at = now() WHERE release = $1`, col), release); err != nil {
		return fmt.Errorf("failed to invalidate phase %s: %v", phase, err)
	}
	if _, err := s.db.Exec(
		`DELETE FROM import_files_processed WHERE release = $1 AND fase = $2`, release, phase); err != nil {
		return fmt.Errorf("failed to delete file checkpoints for phase %s: %v", phase, err)
	}
	return nil
}

// IsFileProcessed reports whether filename has already been durably
// committed under phase for release.
func (s *Store) IsFileProcessed(release, phase, filename string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM import_files_processed WHERE release = $1 AND fase = $2 AND filename = $3)`,
		release, phase, filename).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check file checkpoint: %v", err)
	}
	return exists, nil
}

// MarkFile idempotently records filename as processed under phase with the
// given row count.
func (s *Store) MarkFile(release, phase, filename string, rows int64) error {
	_, err := s.db.Exec(`
		INSERT INTO import_files_processed (release, fase, filename, rows_imported, processed_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (release, fase, filename) DO UPDATE SET rows_imported = $4, processed_at = now()`,
		release, phase, filename, rows)
	if err != nil {
		return fmt.Errorf("failed to mark file %s/%s processed: %v", phase, filename, err)
	}
	return nil
}

// ListProcessedChunks returns every filename and its row count already
// recorded under phase for release, keyed by filename (chunk label).
func (s *Store) ListProcessedChunks(release, phase string) (map[string]int64, error) {
	rows, err := s.db.Query(`
		SELECT filename, rows_imported FROM import_files_processed WHERE release = $1 AND fase = $2`,
		release, phase)
	if err != nil {
		return nil, fmt.Errorf("failed to list processed chunks: %v", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("failed to scan chunk checkpoint: %v", err)
		}
		out[name] = n
	}
	return out, rows.Err()
}
