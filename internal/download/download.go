// Package download fetches release archives in parallel with retry,
// reuse-on-disk, and staggered worker start.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/vision-digital/cnpj-ingestd/internal/apperrors"
	"github.com/vision-digital/cnpj-ingestd/internal/catalogue"
	"github.com/vision-digital/cnpj-ingestd/internal/logger"
	"github.com/vision-digital/cnpj-ingestd/internal/metrics"
)

const (
	chunkSize  = 8 * 1024 * 1024 // 8 MiB streaming chunks
	maxRetries = 3
	retryDelay = 5 * time.Second
	userAgent  = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// OnProgress, when set, is called after each file finishes downloading, with
// the file's byte count. The CLI uses this to drive a terminal progress bar;
// nil is a valid no-op default.
var OnProgress func(release, filename string, bytes int64)

// Manager downloads a release's archives into a release-scoped raw directory.
type Manager struct {
	RawDir               string
	MaxParallelDownloads int
	StartDelay           time.Duration
	Timeout              time.Duration
	ReuseDownloads       bool
}

// NewManager builds a download manager rooted at rawDir.
func NewManager(rawDir string, maxParallel int, startDelay, timeout time.Duration, reuse bool) *Manager {
	return &Manager{
		RawDir:               rawDir,
		MaxParallelDownloads: maxParallel,
		StartDelay:           startDelay,
		Timeout:              timeout,
		ReuseDownloads:       reuse,
	}
}

// DownloadRelease ensures every file in files is present on disk under
// <RawDir>/<release>/, returning the sorted list of local paths.
func (m *Manager) DownloadRelease(ctx context.Context, release string, files []catalogue.RemoteFile) ([]string, error) {
	releaseDir := filepath.Join(m.RawDir, release)
	if err := os.MkdirAll(releaseDir, 0o755); err != nil {
		return nil, apperrors.NewDownloadFailed("failed to create raw directory", err)
	}

	if m.ReuseDownloads {
		if existing, ok := existingZips(releaseDir); ok {
			return existing, nil
		}
	}

	downloaded, pending := partition(releaseDir, files)

	if len(pending) > 0 {
		if err := m.downloadPending(ctx, release, releaseDir, pending); err != nil {
			return nil, err
		}
	}

	all := make([]string, 0, len(downloaded)+len(pending))
	all = append(all, downloaded...)
	for _, f := range pending {
		all = append(all, filepath.Join(releaseDir, f.Name))
	}
	sort.Strings(all)
	return all, nil
}

func (m *Manager) downloadPending(ctx context.Context, release, releaseDir string, pending []catalogue.RemoteFile) error {
	workers := m.MaxParallelDownloads
	if workers > len(pending) {
		workers = len(pending)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan catalogue.RemoteFile)
	errCh := make(chan error, len(pending))
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		if i > 0 {
			time.Sleep(m.StartDelay)
		}
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			client := &http.Client{
				Timeout: m.Timeout,
				Transport: &http.Transport{
					DisableKeepAlives: false,
				},
			}
			for f := range jobs {
				dest := filepath.Join(releaseDir, f.Name)
				if err := downloadWithRetry(ctx, client, f, dest, release); err != nil {
					errCh <- err
				}
			}
		}(i)
	}

	for _, f := range pending {
		jobs <- f
	}
	close(jobs)
	wg.Wait()
	close(errCh)

	for err := range errCh {
		return err
	}
	return nil
}

func downloadWithRetry(ctx context.Context, client *http.Client, f catalogue.RemoteFile, dest, release string) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		start := time.Now()
		bytes, err := downloadOnce(ctx, client, f.URL, dest)
		if err == nil {
			elapsed := time.Since(start)
			logger.LogDownloadProgress(release, f.Name, bytes, elapsed)
			metrics.DownloadBytes.WithLabelValues(release).Add(float64(bytes))
			metrics.DownloadSeconds.WithLabelValues(release).Observe(elapsed.Seconds())
			if OnProgress != nil {
				OnProgress(release, f.Name, bytes)
			}
			return nil
		}
		lastErr = err
		if attempt < maxRetries {
			time.Sleep(retryDelay)
		}
	}
	return apperrors.NewDownloadFailed(fmt.Sprintf("failed to download %s after %d attempts", f.Name, maxRetries), lastErr)
}

func downloadOnce(ctx context.Context, client *http.Client, url, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	written, err := io.CopyBuffer(out, resp.Body, make([]byte, chunkSize))
	if err != nil {
		return written, err
	}
	return written, nil
}

// existingZips returns the sorted .zip files already present in dir, or
// ok=false if none exist.
func existingZips(dir string) ([]string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, false
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".zip" {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	sort.Strings(out)
	return out, true
}

// partition splits files into those already fully present on disk
// (size > 0) and those still pending download.
func partition(releaseDir string, files []catalogue.RemoteFile) (downloaded []string, pending []catalogue.RemoteFile) {
	for _, f := range files {
		path := filepath.Join(releaseDir, f.Name)
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			downloaded = append(downloaded, path)
			continue
		}
		pending = append(pending, f)
	}
	return downloaded, pending
}
