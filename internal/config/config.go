package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// DatabaseConfig groups the Postgres connection settings.
type DatabaseConfig struct {
	Host     string `validate:"required"`
	Port     int    `validate:"required"`
	User     string `validate:"required"`
	Password string
	Database string `validate:"required"`
}

// DSN builds a libpq-style connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Database)
}

// PathsConfig groups the local filesystem layout for a release's working data.
type PathsConfig struct {
	DataDir       string `validate:"required"`
	RawSubdir     string `validate:"required"`
	StagingSubdir string `validate:"required"`
}

// RawDir returns the root directory archives are downloaded into.
func (p PathsConfig) RawDir() string { return p.DataDir + "/" + p.RawSubdir }

// StagingDir returns the root directory archives are extracted into.
func (p PathsConfig) StagingDir() string { return p.DataDir + "/" + p.StagingSubdir }

// HTTPConfig groups release-catalogue and download HTTP client settings.
type HTTPConfig struct {
	DownloadBaseURL      string        `validate:"required"`
	Timeout              time.Duration `validate:"required"`
	MaxParallelDownloads int           `validate:"required,gt=0"`
	DownloadStartDelay   time.Duration
}

// PipelineConfig groups ingestion batching and reuse/cleanup policy.
type PipelineConfig struct {
	BatchSize               int `validate:"required,gt=0"`
	CommitBatchSize         int `validate:"required,gt=0"`
	ReuseDownloads          bool
	ReuseExtractions        bool
	CleanupRawAfterLoad     bool
	CleanupStagingAfterLoad bool
}

// LoggerConfig controls the structured logging sink.
type LoggerConfig struct {
	Level  string
	Format string // "console" or "json"
}

// AdminConfig controls the thin administrative HTTP trigger/poll surface.
type AdminConfig struct {
	ListenAddr string
}

// SchedulerConfig controls the optional periodic release-check trigger.
type SchedulerConfig struct {
	Cron string // empty disables the scheduler
}

// ArchiveConfig controls optional cold-storage of raw release archives.
type ArchiveConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Config is the fully resolved configuration for one process lifetime.
type Config struct {
	Database  DatabaseConfig
	Paths     PathsConfig
	HTTP      HTTPConfig
	Pipeline  PipelineConfig
	Logger    LoggerConfig
	Admin     AdminConfig
	Scheduler SchedulerConfig
	Archive   ArchiveConfig
}

var appConfig *Config

// Load reads the environment (after loading an optional .env file) and
// returns the resolved configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("warning: .env file not found or could not be loaded: %v\n", err)
	}

	c := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnvInt("PG_PORT", 5432),
			User:     getEnv("PG_USER", "cnpj"),
			Password: getEnv("PG_PASSWORD", "cnpj"),
			Database: getEnv("PG_DATABASE", "cnpj"),
		},
		Paths: PathsConfig{
			DataDir:       getEnv("DATA_DIR", "/data"),
			RawSubdir:     getEnv("RAW_SUBDIR", "raw"),
			StagingSubdir: getEnv("STAGING_SUBDIR", "staging"),
		},
		HTTP: HTTPConfig{
			DownloadBaseURL:      getEnv("DOWNLOAD_BASE_URL", "https://arquivos.receitafederal.gov.br/dados/cnpj/dados_abertos_cnpj/"),
			Timeout:              getEnvDuration("HTTP_TIMEOUT", 120*time.Second),
			MaxParallelDownloads: getEnvInt("MAX_PARALLEL_DOWNLOADS", 2),
			DownloadStartDelay:   getEnvDuration("DOWNLOAD_START_DELAY", 10*time.Second),
		},
		Pipeline: PipelineConfig{
			BatchSize:               getEnvInt("BATCH_SIZE", 5000),
			CommitBatchSize:         getEnvInt("COMMIT_BATCH_SIZE", 5000),
			ReuseDownloads:          getEnvBool("REUSE_DOWNLOADS", true),
			ReuseExtractions:        getEnvBool("REUSE_EXTRACTIONS", true),
			CleanupRawAfterLoad:     getEnvBool("CLEANUP_RAW_AFTER_LOAD", false),
			CleanupStagingAfterLoad: getEnvBool("CLEANUP_STAGING_AFTER_LOAD", false),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Admin: AdminConfig{
			ListenAddr: getEnv("ADMIN_LISTEN_ADDR", ":8090"),
		},
		Scheduler: SchedulerConfig{
			Cron: getEnv("SCHEDULER_CRON", ""),
		},
		Archive: ArchiveConfig{
			Enabled:   getEnvBool("ARCHIVE_RAW_TO_MINIO", false),
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", true),
		},
	}

	if err := validator.New().Struct(c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}

	return c, nil
}

// Get returns the process-wide configuration, lazily loading it on first
// access. Configuration is read-only data resolved once at startup, not
// mutable runtime state, so the one package-level singleton here is the kind
// the "no package-level singletons" design note tolerates.
func Get() *Config {
	if appConfig == nil {
		loaded, err := Load()
		if err != nil {
			panic(fmt.Sprintf("config: %v", err))
		}
		appConfig = loaded
	}
	return appConfig
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if strings.ContainsAny(v, "hms") {
			if d, err := time.ParseDuration(v); err == nil {
				return d
			}
		} else if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
