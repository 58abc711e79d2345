// Command cnpj-ingestd is the CLI entrypoint and admin HTTP surface for the
// CNPJ open-data ingestion service: a one-shot release import when
// --release (or no flag, for discovery) is passed, or a long-running
// service exposing the trigger/poll admin API and an optional cron
// schedule when --serve is passed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"
	"github.com/uptrace/bun"

	"github.com/vision-digital/cnpj-ingestd/internal/api/handlers"
	"github.com/vision-digital/cnpj-ingestd/internal/api/routes"
	"github.com/vision-digital/cnpj-ingestd/internal/config"
	"github.com/vision-digital/cnpj-ingestd/internal/database"
	"github.com/vision-digital/cnpj-ingestd/internal/download"
	"github.com/vision-digital/cnpj-ingestd/internal/ingest"
	"github.com/vision-digital/cnpj-ingestd/internal/logger"
	"github.com/vision-digital/cnpj-ingestd/internal/models"
	"github.com/vision-digital/cnpj-ingestd/internal/pipeline"
	"github.com/vision-digital/cnpj-ingestd/internal/registry"
	"github.com/vision-digital/cnpj-ingestd/internal/schema"
	"github.com/vision-digital/cnpj-ingestd/internal/scheduler"
	"github.com/vision-digital/cnpj-ingestd/internal/worker"
)

var banner = color.New(color.FgCyan, color.Bold)

func main() {
	release := flag.String("release", "", "release to ingest (YYYY-MM); empty discovers the latest")
	serve := flag.Bool("serve", false, "run as a long-lived service exposing the admin HTTP surface and scheduler")
	verboseSQL := flag.Bool("verbose-sql", false, "log every SQL statement issued over the bun connection")
	flag.Parse()

	logger.Initialize()
	cfg := config.Get()

	printBanner()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bunDB, err := database.ConnectBun(cfg, *verboseSQL)
	if err != nil {
		logger.Fatalf("failed to connect (bun): %v", err)
	}
	defer bunDB.Close()

	sqlDB, err := database.WaitForDatabase(cfg, 20, 3*time.Second)
	if err != nil {
		logger.Fatalf("failed to connect (sql): %v", err)
	}
	defer sqlDB.Close()

	if err := schema.Bootstrap(ctx, bunDB); err != nil {
		logger.Fatalf("schema bootstrap failed: %v", err)
	}

	p, err := pipeline.New(ctx, cfg, bunDB, sqlDB)
	if err != nil {
		logger.Fatalf("failed to build pipeline: %v", err)
	}

	wireProgressBars()

	if !*serve {
		runOnce(ctx, p, *release)
		return
	}

	runService(ctx, cancel, cfg, bunDB, p)
}

// runOnce drives a single synchronous ingestion run and exits, the mode the
// teacher's own scheduled jobs and an operator's ad-hoc invocation both want.
func runOnce(ctx context.Context, p *pipeline.Pipeline, release string) {
	resolved, err := p.Run(ctx, release)
	if err != nil {
		logger.Fatalf("ingestion failed: %v", err)
	}
	banner.Printf("release %s ingested successfully\n", resolved)
}

// runService starts the admin HTTP surface and, if configured, the cron
// scheduler, and blocks until SIGINT/SIGTERM.
func runService(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, bunDB *bun.DB, p *pipeline.Pipeline) {
	runs := worker.NewRegistry(p)
	reg := registry.NewStore(bunDB)

	app := buildHTTPServer(runs, reg)

	sched, err := scheduler.New(cfg.Scheduler.Cron, p)
	if err != nil {
		logger.Fatalf("failed to build scheduler: %v", err)
	}
	sched.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.Listen(cfg.Admin.ListenAddr); err != nil {
			logger.Logger.Error().Err(err).Msg("admin HTTP server stopped")
		}
	}()

	banner.Printf("admin HTTP surface listening on %s\n", cfg.Admin.ListenAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info().Msg("shutting down")
	sched.Stop()
	cancel()
	if err := app.Shutdown(); err != nil {
		logger.Logger.Error().Err(err).Msg("error shutting down admin HTTP server")
	}
	wg.Wait()
}

func buildHTTPServer(runs *worker.Registry, reg *registry.Store) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(models.APIResponse{Success: false, Error: err.Error()})
		},
	})
	app.Use(recover.New())

	adminHandler := handlers.NewAdminHandler(runs, reg)
	routes.SetupRoutes(app, adminHandler)
	return app
}

// wireProgressBars hooks the download manager and chunk consolidator's
// progress callbacks to terminal progress bars, auto-disabled when stdout
// isn't a TTY (redirected to a file or piped). The check is the same in
// one-shot and --serve mode.
func wireProgressBars() {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return
	}

	var downloadBars sync.Map // release -> *progressbar.ProgressBar
	download.OnProgress = func(release, filename string, bytes int64) {
		bar, _ := downloadBars.LoadOrStore(release, progressbar.DefaultBytes(-1, fmt.Sprintf("downloading %s", release)))
		bar.(*progressbar.ProgressBar).Add64(bytes)
	}

	var chunkBars sync.Map // release -> *progressbar.ProgressBar
	ingest.OnChunkProgress = func(release string, chunkIndex, totalChunks int, rowsThisChunk int64) {
		barIface, _ := chunkBars.LoadOrStore(release, progressbar.Default(int64(totalChunks), fmt.Sprintf("consolidating %s", release)))
		barIface.(*progressbar.ProgressBar).Add(1)
	}
}

func printBanner() {
	banner.Println(strings.Repeat("=", 50))
	banner.Println("CNPJ Open-Data Ingestion Service")
	banner.Println(strings.Repeat("=", 50))
}

