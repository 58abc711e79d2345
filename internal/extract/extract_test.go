package extract

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestExtractReleaseExtractsAllEntries(t *testing.T) {
	raw := t.TempDir()
	staging := t.TempDir()

	archivePath := filepath.Join(raw, "K3241.K03200Y0.D40412.EMPRECSV.zip")
	writeZip(t, archivePath, map[string]string{
		"K3241.K03200Y0.D40412.EMPRECSV": "12345678;ACME;2062;05;1000,50;03;\n",
	})

	e := NewExtractor(staging, true)
	files, err := e.ExtractRelease("2024-01", []string{archivePath})
	if err != nil {
		t.Fatalf("ExtractRelease() error = %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("got %d files, want 1", len(files))
	}

	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "12345678;ACME;2062;05;1000,50;03;\n" {
		t.Errorf("unexpected extracted content: %q", data)
	}
}

func TestExtractReleaseReusesNonEmptyStaging(t *testing.T) {
	raw := t.TempDir()
	staging := t.TempDir()
	releaseDir := filepath.Join(staging, "2024-01")
	os.MkdirAll(releaseDir, 0o755)
	os.WriteFile(filepath.Join(releaseDir, "existing.csv"), []byte("data"), 0o644)

	e := NewExtractor(staging, true)
	files, err := e.ExtractRelease("2024-01", []string{filepath.Join(raw, "anything.zip")})
	if err != nil {
		t.Fatalf("ExtractRelease() error = %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("got %d files, want 1 (reused)", len(files))
	}
}
