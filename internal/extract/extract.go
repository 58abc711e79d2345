// Package extract unzips release archives into a staging directory
// idempotently.
package extract

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/vision-digital/cnpj-ingestd/internal/apperrors"
)

// Extractor unpacks a release's downloaded archives into a staging directory.
type Extractor struct {
	StagingDir       string
	ReuseExtractions bool
}

// NewExtractor builds an extractor rooted at stagingDir.
func NewExtractor(stagingDir string, reuse bool) *Extractor {
	return &Extractor{StagingDir: stagingDir, ReuseExtractions: reuse}
}

// ExtractRelease extracts every archive in archivePaths into
// <StagingDir>/<release>/, returning the sorted list of extracted file
// paths. If reuse is enabled and the release's staging directory is
// already non-empty, extraction is skipped and the existing files are
// returned instead.
func (e *Extractor) ExtractRelease(release string, archivePaths []string) ([]string, error) {
	releaseDir := filepath.Join(e.StagingDir, release)

	if e.ReuseExtractions {
		if existing, ok := nonEmptyDir(releaseDir); ok {
			return existing, nil
		}
	}

	if err := os.MkdirAll(releaseDir, 0o755); err != nil {
		return nil, apperrors.NewExtractionFailed("failed to create staging directory", err)
	}

	var extracted []string
	for _, archivePath := range archivePaths {
		files, err := extractArchive(archivePath, releaseDir)
		if err != nil {
			return nil, apperrors.NewExtractionFailed(fmt.Sprintf("failed to extract %s", archivePath), err)
		}
		extracted = append(extracted, files...)
	}
	sort.Strings(extracted)
	return extracted, nil
}

func extractArchive(archivePath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var extracted []string
	for _, f := range r.File {
		destPath := filepath.Join(destDir, f.Name)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return nil, err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return nil, err
		}
		if err := extractFile(f, destPath); err != nil {
			return nil, err
		}
		extracted = append(extracted, destPath)
	}
	return extracted, nil
}

func extractFile(f *zip.File, destPath string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

func nonEmptyDir(dir string) ([]string, bool) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil || len(files) == 0 {
		return nil, false
	}
	sort.Strings(files)
	return files, true
}
