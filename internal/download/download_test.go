package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vision-digital/cnpj-ingestd/internal/catalogue"
)

func TestDownloadReleaseFetchesPendingFiles(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("zip-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	m := NewManager(dir, 2, 0, time.Second, true)

	files := []catalogue.RemoteFile{
		{Name: "Empresas0.zip", URL: srv.URL + "/Empresas0.zip"},
		{Name: "Socios0.zip", URL: srv.URL + "/Socios0.zip"},
	}

	paths, err := m.DownloadRelease(context.Background(), "2024-01", files)
	if err != nil {
		t.Fatalf("DownloadRelease() error = %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("got %d paths, want 2", len(paths))
	}
	if hits != 2 {
		t.Errorf("expected 2 HTTP hits, got %d", hits)
	}
}

func TestDownloadReleaseReusesExisting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not make network requests when reuse applies")
	}))
	defer srv.Close()

	dir := t.TempDir()
	releaseDir := filepath.Join(dir, "2024-01")
	os.MkdirAll(releaseDir, 0o755)
	os.WriteFile(filepath.Join(releaseDir, "Empresas0.zip"), []byte("x"), 0o644)

	m := NewManager(dir, 2, 0, time.Second, true)
	files := []catalogue.RemoteFile{{Name: "Empresas0.zip", URL: srv.URL + "/x"}}

	paths, err := m.DownloadRelease(context.Background(), "2024-01", files)
	if err != nil {
		t.Fatalf("DownloadRelease() error = %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("got %d paths, want 1", len(paths))
	}
}

func TestDownloadReleaseFailsAfterRetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	m := NewManager(dir, 1, 0, time.Second, true)
	m.RawDir = dir

	// retryDelay is not configurable and downloadWithRetry does not check
	// the context between attempts, so this test runs all maxRetries=3
	// attempts and waits 2 * retryDelay (10s). The context is cancelled up
	// front so every attempt fails at once instead of waiting on the server.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	files := []catalogue.RemoteFile{{Name: "Empresas0.zip", URL: srv.URL + "/x"}}
	_, err := m.DownloadRelease(ctx, "2024-02", files)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
