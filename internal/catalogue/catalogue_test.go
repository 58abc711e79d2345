package catalogue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vision-digital/cnpj-ingestd/internal/apperrors"
)

func TestListReleasesSortedAndFiltered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><table>
			<tr><td><a href="2023-05/">2023-05/</a></td></tr>
			<tr><td><a href="2022-01/">2022-01/</a></td></tr>
			<tr><td><a href="../">../</a></td></tr>
			<tr><td><a href="readme.txt">readme.txt</a></td></tr>
		</table></body></html>`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	releases, err := c.ListReleases(context.Background())
	if err != nil {
		t.Fatalf("ListReleases() error = %v", err)
	}
	want := []string{"2022-01", "2023-05"}
	if len(releases) != 2 || releases[0] != want[0] || releases[1] != want[1] {
		t.Errorf("ListReleases() = %v, want %v", releases, want)
	}
}

func TestListReleasesEmptyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body></body></html>`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	_, err := c.ListReleases(context.Background())
	if !apperrors.IsKind(err, apperrors.CatalogueUnavailable) {
		t.Fatalf("expected CatalogueUnavailable, got %v", err)
	}
}

func TestLatestReleaseReturnsGreatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="2021-12/">2021-12/</a>
			<a href="2024-03/">2024-03/</a>
			<a href="2023-01/">2023-01/</a>
		</body></html>`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	latest, err := c.LatestRelease(context.Background())
	if err != nil {
		t.Fatalf("LatestRelease() error = %v", err)
	}
	if latest != "2024-03" {
		t.Errorf("LatestRelease() = %q, want 2024-03", latest)
	}
}

func TestListFilesFiltersZipOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="Empresas0.zip">Empresas0.zip</a>
			<a href="Estabelecimentos0.ZIP">Estabelecimentos0.ZIP</a>
			<a href="readme.pdf">readme.pdf</a>
		</body></html>`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	files, err := c.ListFiles(context.Background(), "2024-01")
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("ListFiles() returned %d files, want 2", len(files))
	}
}
