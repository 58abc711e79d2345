// Package pipeline sequences release discovery, download, extraction,
// ingestion, and cleanup behind the version registry's short-circuit check.
package pipeline

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/uptrace/bun"

	"github.com/vision-digital/cnpj-ingestd/internal/archive"
	"github.com/vision-digital/cnpj-ingestd/internal/catalogue"
	"github.com/vision-digital/cnpj-ingestd/internal/config"
	"github.com/vision-digital/cnpj-ingestd/internal/download"
	"github.com/vision-digital/cnpj-ingestd/internal/extract"
	"github.com/vision-digital/cnpj-ingestd/internal/ingest"
	"github.com/vision-digital/cnpj-ingestd/internal/logger"
	"github.com/vision-digital/cnpj-ingestd/internal/metrics"
	"github.com/vision-digital/cnpj-ingestd/internal/registry"
)

var stagingReleasePattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// Pipeline wires together every component the discover → ingest → cleanup →
// finish state machine needs.
type Pipeline struct {
	cfg       *config.Config
	registry  *registry.Store
	catalogue *catalogue.Client
	downloads *download.Manager
	extractor *extract.Extractor
	ingestor  *ingest.Ingestor
	archiver  *archive.Archiver
}

// New builds a Pipeline from its resolved configuration and the two
// database handles the service already holds open (bunDB for the version
// registry's DDL/CRUD, sqlDB for the ingestor's COPY-capable driver). The
// archiver is nil when cold-storage archiving is disabled.
func New(ctx context.Context, cfg *config.Config, bunDB *bun.DB, sqlDB *sql.DB) (*Pipeline, error) {
	archiver, err := archive.New(ctx, cfg.Archive)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:       cfg,
		registry:  registry.NewStore(bunDB),
		catalogue: catalogue.NewClient(cfg.HTTP.DownloadBaseURL, cfg.HTTP.Timeout),
		downloads: download.NewManager(cfg.Paths.RawDir(), cfg.HTTP.MaxParallelDownloads, cfg.HTTP.DownloadStartDelay, cfg.HTTP.Timeout, cfg.Pipeline.ReuseDownloads),
		extractor: extract.NewExtractor(cfg.Paths.StagingDir(), cfg.Pipeline.ReuseExtractions),
		ingestor:  ingest.NewIngestor(sqlDB, cfg.Pipeline.BatchSize),
		archiver:  archiver,
	}, nil
}

// Run executes discover-target → check-current → start → download → extract
// → ingest → cleanup → finish for one release. An empty release argument
// triggers discovery: existing staging subdirectories first, falling back
// to the catalogue client's latest release.
func (p *Pipeline) Run(ctx context.Context, release string) (string, error) {
	target, err := p.discoverTarget(ctx, release)
	if err != nil {
		return "", err
	}
	logger.LogReleaseDiscovered(target, discoverySource(release))

	if err := p.registry.EnsureSchema(ctx); err != nil {
		return "", err
	}

	current, err := p.registry.CurrentRelease(ctx)
	if err != nil {
		return "", err
	}
	if current != nil && current.Release == target && current.Status == registry.StatusCompleted {
		logger.Logger.Info().Str("release", target).Msg("release already completed, nothing to do")
		metrics.SetCurrentRelease(target, string(registry.StatusCompleted))
		return target, nil
	}

	if err := p.registry.StartRelease(ctx, target); err != nil {
		return "", err
	}
	metrics.SetCurrentRelease(target, string(registry.StatusRunning))

	if err := p.runStages(ctx, target); err != nil {
		if finishErr := p.registry.FinishRelease(ctx, target, false, err.Error()); finishErr != nil {
			logger.Logger.Error().Err(finishErr).Str("release", target).Msg("failed to record failure in version registry")
		}
		metrics.SetCurrentRelease(target, string(registry.StatusFailed))
		return "", err
	}

	if err := p.registry.FinishRelease(ctx, target, true, ""); err != nil {
		return "", err
	}
	metrics.SetCurrentRelease(target, string(registry.StatusCompleted))
	return target, nil
}

func (p *Pipeline) runStages(ctx context.Context, release string) error {
	files, err := p.catalogue.ListFiles(ctx, release)
	if err != nil {
		return err
	}

	archives, err := p.downloads.DownloadRelease(ctx, release, files)
	if err != nil {
		return err
	}
	logger.Logger.Info().Str("release", release).Int("archives", len(archives)).Msg("archives ready for extraction")

	if err := p.archiver.UploadRelease(ctx, release, archives); err != nil {
		return err
	}

	extracted, err := p.extractor.ExtractRelease(release, archives)
	if err != nil {
		return err
	}
	logger.Logger.Info().Str("release", release).Int("files", len(extracted)).Msg("files ready for ingestion")

	stagingDir := filepath.Join(p.cfg.Paths.StagingDir(), release)
	if err := p.ingestor.Run(ctx, release, stagingDir); err != nil {
		return err
	}

	if err := p.ingestor.Cleanup(); err != nil {
		return err
	}
	p.cleanupDirs(release)
	return nil
}

func discoverySource(explicit string) string {
	if explicit != "" {
		return "explicit"
	}
	return "discovered"
}

// discoverTarget resolves the release to run: an explicit argument wins,
// else the lexicographically greatest existing staging subdirectory, else
// the catalogue client's latest release.
func (p *Pipeline) discoverTarget(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if found := p.findExistingStagingRelease(); found != "" {
		return found, nil
	}
	return p.catalogue.LatestRelease(ctx)
}

// findExistingStagingRelease scans the staging directory for subdirectories
// named "YYYY-MM" and returns the lexicographically greatest, or "" if none
// exist. This lets a resumed run without network access still pick the
// newest partially-staged release.
func (p *Pipeline) findExistingStagingRelease() string {
	entries, err := os.ReadDir(p.cfg.Paths.StagingDir())
	if err != nil {
		return ""
	}
	var releases []string
	for _, e := range entries {
		if e.IsDir() && stagingReleasePattern.MatchString(e.Name()) {
			releases = append(releases, e.Name())
		}
	}
	if len(releases) == 0 {
		return ""
	}
	sort.Strings(releases)
	return releases[len(releases)-1]
}

// cleanupDirs removes the release's raw and/or staging directories per the
// two independent cleanup policy booleans. Failures are logged, not fatal:
// a successful import should not be reported as failed over leftover disk.
func (p *Pipeline) cleanupDirs(release string) {
	if p.cfg.Pipeline.CleanupRawAfterLoad {
		if err := os.RemoveAll(filepath.Join(p.cfg.Paths.RawDir(), release)); err != nil {
			logger.Logger.Warn().Err(err).Str("release", release).Msg("failed to clean up raw directory")
		}
	}
	if p.cfg.Pipeline.CleanupStagingAfterLoad {
		if err := os.RemoveAll(filepath.Join(p.cfg.Paths.StagingDir(), release)); err != nil {
			logger.Logger.Warn().Err(err).Str("release", release).Msg("failed to clean up staging directory")
		}
	}
}
