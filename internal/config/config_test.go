package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	c, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if c.Pipeline.BatchSize != 5000 {
		t.Errorf("BatchSize = %d, want 5000", c.Pipeline.BatchSize)
	}
	if c.HTTP.DownloadStartDelay != 10*time.Second {
		t.Errorf("DownloadStartDelay = %v, want 10s", c.HTTP.DownloadStartDelay)
	}
	if c.HTTP.MaxParallelDownloads != 2 {
		t.Errorf("MaxParallelDownloads = %d, want 2", c.HTTP.MaxParallelDownloads)
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("BATCH_SIZE", "1234")
	t.Setenv("DOWNLOAD_START_DELAY", "30")
	t.Setenv("PG_HOST", "db.internal")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if c.Pipeline.BatchSize != 1234 {
		t.Errorf("BatchSize = %d, want 1234", c.Pipeline.BatchSize)
	}
	if c.HTTP.DownloadStartDelay != 30*time.Second {
		t.Errorf("DownloadStartDelay = %v, want 30s", c.HTTP.DownloadStartDelay)
	}
	if c.Database.Host != "db.internal" {
		t.Errorf("Database.Host = %q, want db.internal", c.Database.Host)
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5432, User: "u", Password: "p", Database: "db"}
	want := "host=h port=5432 user=u password=p dbname=db sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		for _, prefix := range []string{"PG_", "DATA_DIR", "RAW_SUBDIR", "STAGING_SUBDIR", "DOWNLOAD_", "HTTP_TIMEOUT", "MAX_PARALLEL", "BATCH_SIZE", "COMMIT_BATCH", "REUSE_", "CLEANUP_", "LOG_", "ADMIN_", "SCHEDULER_", "ARCHIVE_", "MINIO_"} {
			if len(kv) >= len(prefix) && kv[:len(prefix)] == prefix {
				name := kv
				if idx := indexByte(kv, '='); idx >= 0 {
					name = kv[:idx]
				}
				os.Unsetenv(name)
			}
		}
	}
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
