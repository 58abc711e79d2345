package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vision-digital/cnpj-ingestd/internal/config"
)

// Logger is the process-wide structured logger.
var Logger zerolog.Logger

// Initialize configures the global logger from the resolved configuration.
func Initialize() {
	cfg := config.Get()

	var output io.Writer = os.Stdout
	if cfg.Logger.Format != "json" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	level := zerolog.InfoLevel
	switch cfg.Logger.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	Logger = zerolog.New(output).
		With().
		Timestamp().
		Str("service", "cnpj-ingestd").
		Logger()

	log.Logger = Logger
}

// LogPhaseStart logs the start of a streaming-ingestor phase.
func LogPhaseStart(release, phase string) {
	Logger.Info().
		Str("type", "phase").
		Str("release", release).
		Str("phase", phase).
		Msg("phase started")
}

// LogPhaseComplete logs the completion of a streaming-ingestor phase.
func LogPhaseComplete(release, phase string, rows int64, elapsed time.Duration) {
	Logger.Info().
		Str("type", "phase").
		Str("release", release).
		Str("phase", phase).
		Int64("rows", rows).
		Dur("elapsed", elapsed).
		Msg("phase completed")
}

// LogFileProcessed logs a single input file's durable commit.
func LogFileProcessed(release, phase, filename string, rows int64, elapsed time.Duration) {
	Logger.Info().
		Str("type", "file").
		Str("release", release).
		Str("phase", phase).
		Str("file", filename).
		Int64("rows", rows).
		Dur("elapsed", elapsed).
		Msg("file processed")
}

// LogChunkProgress logs one completed Phase 3 Part 2 consolidation chunk:
// rows inserted by this chunk, cumulative rows across the whole release,
// this-run throughput, and an ETA to chunk 99 extrapolated from this run's
// rate. chunkIndex is the chunk's cumulative 0-based position (used only to
// compute how many chunks remain); chunksThisRun and rowsThisRun count only
// what this process has done since it started, so a resume after a crash
// doesn't divide this run's elapsed time by a cross-run count or row total.
func LogChunkProgress(release, label string, chunkIndex, chunksThisRun int, rowsThisChunk, rowsThisRun, cumulativeRows int64, elapsed time.Duration) {
	remaining := 99 - chunkIndex
	perChunk := elapsed
	if chunksThisRun > 0 {
		perChunk = elapsed / time.Duration(chunksThisRun)
	}
	eta := perChunk * time.Duration(remaining)

	rate := float64(0)
	if elapsed > 0 {
		rate = float64(rowsThisRun) / elapsed.Seconds()
	}

	Logger.Info().
		Str("type", "chunk").
		Str("release", release).
		Str("chunk", label).
		Int64("rows_this_chunk", rowsThisChunk).
		Int64("cumulative_rows", cumulativeRows).
		Dur("elapsed", elapsed).
		Float64("rows_per_sec", rate).
		Dur("eta", eta).
		Msg("chunk consolidated")
}

// LogCheckpointRepair logs the Phase 3 guard invalidating stale checkpoints
// because a marked-complete phase's staging table no longer exists.
func LogCheckpointRepair(release, phase, reason string) {
	Logger.Warn().
		Str("type", "checkpoint_repair").
		Str("release", release).
		Str("phase", phase).
		Str("reason", reason).
		Msg("checkpoint repaired")
}

// LogDownloadProgress logs a completed file download: bytes, elapsed time,
// and achieved throughput.
func LogDownloadProgress(release, filename string, bytes int64, elapsed time.Duration) {
	throughput := float64(0)
	if elapsed > 0 {
		throughput = float64(bytes) / 1024 / 1024 / elapsed.Seconds()
	}
	Logger.Info().
		Str("type", "download").
		Str("release", release).
		Str("file", filename).
		Int64("bytes", bytes).
		Dur("elapsed", elapsed).
		Float64("mb_per_sec", throughput).
		Msg("download completed")
}

// LogReleaseDiscovered logs the release chosen by the orchestrator's
// discover-target step and how it was resolved.
func LogReleaseDiscovered(release, source string) {
	Logger.Info().
		Str("type", "discover").
		Str("release", release).
		Str("source", source).
		Msg("release target discovered")
}

// LogAdminRequest logs one request handled by the admin HTTP surface.
func LogAdminRequest(method, path string, status int, elapsed time.Duration) {
	Logger.Info().
		Str("type", "admin_request").
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Dur("elapsed", elapsed).
		Msg("admin request handled")
}

// Print logs a message at info level (compatible with standard log.Print).
func Print(v ...any) { Logger.Info().Msg(fmt.Sprint(v...)) }

// Printf logs a formatted message at info level (compatible with log.Printf).
func Printf(format string, v ...any) { Logger.Info().Msgf(format, v...) }

// Println logs a message at info level (compatible with log.Println).
func Println(v ...any) { Logger.Info().Msg(fmt.Sprintln(v...)) }

// Fatal logs at fatal level and exits (compatible with log.Fatal).
func Fatal(v ...any) { Logger.Fatal().Msg(fmt.Sprint(v...)) }

// Fatalf logs a formatted message at fatal level and exits.
func Fatalf(format string, v ...any) { Logger.Fatal().Msgf(format, v...) }

// WithField creates an info-level event carrying one structured field.
func WithField(key string, value any) *zerolog.Event {
	return Logger.Info().Interface(key, value)
}

// WithFields creates an info-level event carrying several structured fields.
func WithFields(fields map[string]any) *zerolog.Event {
	event := Logger.Info()
	for key, value := range fields {
		event = event.Interface(key, value)
	}
	return event
}

// WithError creates an error-level event wrapping err.
func WithError(err error) *zerolog.Event {
	return Logger.Error().Err(err)
}

// WithContext creates an info-level event bound to ctx.
func WithContext(ctx context.Context) *zerolog.Event {
	return Logger.Info().Ctx(ctx)
}
