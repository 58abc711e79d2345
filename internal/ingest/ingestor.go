package ingest

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vision-digital/cnpj-ingestd/internal/checkpoint"
)

// Ingestor drives the four-phase streaming import for one release's
// extracted CSV files, resuming from whatever the checkpoint store reports.
type Ingestor struct {
	db        *sql.DB
	cp        *checkpoint.Store
	batchSize int
}

// NewIngestor wires a checkpoint store on top of db and returns an Ingestor
// that streams in batches of batchSize rows.
func NewIngestor(db *sql.DB, batchSize int) *Ingestor {
	return &Ingestor{db: db, cp: checkpoint.NewStore(db), batchSize: batchSize}
}

// classifiedFiles groups a release's extracted files by dataset, matched by
// the upstream filename signature (case-insensitive substring).
type classifiedFiles struct {
	empresas         []string
	simples          []string
	estabelecimentos []string
	socios           []string
}

func classifyFiles(paths []string) classifiedFiles {
	var c classifiedFiles
	for _, p := range paths {
		name := strings.ToUpper(filepath.Base(p))
		switch {
		case strings.Contains(name, "ESTABELE"):
			c.estabelecimentos = append(c.estabelecimentos, p)
		case strings.Contains(name, "SOCIO"):
			c.socios = append(c.socios, p)
		case strings.Contains(name, "SIMPLES"), strings.Contains(name, "SIMECSV"):
			c.simples = append(c.simples, p)
		case strings.Contains(name, "EMPRECSV"):
			c.empresas = append(c.empresas, p)
		}
	}
	sort.Strings(c.empresas)
	sort.Strings(c.simples)
	sort.Strings(c.estabelecimentos)
	sort.Strings(c.socios)
	return c
}

// Run streams every classified file for release through Phases 1-4 in
// order, skipping phases already marked complete.
func (ing *Ingestor) Run(ctx context.Context, release string, extractedDir string) error {
	paths, err := listFiles(extractedDir)
	if err != nil {
		return err
	}
	files := classifyFiles(paths)

	if err := ing.cp.EnsureSchema(); err != nil {
		return err
	}

	status, err := ing.cp.Get(release)
	if err != nil {
		return err
	}

	if !status.Empresas {
		if err := runEmpresasPhase(ctx, ing.db, ing.cp, release, ing.batchSize, files.empresas); err != nil {
			return err
		}
	}
	if !status.Simples {
		if err := runSimplesPhase(ctx, ing.db, ing.cp, release, ing.batchSize, files.simples); err != nil {
			return err
		}
	}
	if !status.Estabelecimentos {
		if err := runEstabelecimentosPhase(ctx, ing.db, ing.cp, release, ing.batchSize,
			files.estabelecimentos, files.empresas, files.simples); err != nil {
			return err
		}
	}
	if !status.Socios {
		if err := runSociosPhase(ctx, ing.db, ing.cp, release, ing.batchSize, files.socios); err != nil {
			return err
		}
	}

	return nil
}

// Cleanup drops the checkpoint schema, giving the next release a clean
// slate. Called by the pipeline orchestrator's cleanup step once ingestion
// has fully succeeded, not by Run itself.
func (ing *Ingestor) Cleanup() error {
	return ing.cp.DropSchema()
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}
