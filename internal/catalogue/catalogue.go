// Package catalogue discovers available monthly CNPJ releases and their file
// inventories from the Receita Federal HTTP directory index.
package catalogue

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/vision-digital/cnpj-ingestd/internal/apperrors"
)

var releasePattern = regexp.MustCompile(`^(\d{4}-\d{2})/$`)

// RemoteFile describes one archive listed under a release directory.
type RemoteFile struct {
	Name         string
	URL          string
	Size         string
	LastModified string
}

// Client scrapes the Receita Federal open-data directory listings.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient builds a catalogue client against baseURL with the given timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// ListReleases returns every release directory name ("YYYY-MM"), sorted
// ascending.
func (c *Client) ListReleases(ctx context.Context) ([]string, error) {
	doc, err := c.fetchDocument(ctx, c.BaseURL)
	if err != nil {
		return nil, apperrors.NewCatalogueUnavailable("failed to fetch release listing", err)
	}

	var releases []string
	walkAnchors(doc, func(href string) {
		if m := releasePattern.FindStringSubmatch(href); m != nil {
			releases = append(releases, m[1])
		}
	})
	sort.Strings(releases)

	if len(releases) == 0 {
		return nil, apperrors.NewCatalogueUnavailable("no releases found in directory listing", nil)
	}
	return releases, nil
}

// LatestRelease returns the lexicographically greatest release, which
// coincides with chronological order for the "YYYY-MM" format.
func (c *Client) LatestRelease(ctx context.Context) (string, error) {
	releases, err := c.ListReleases(ctx)
	if err != nil {
		return "", err
	}
	return releases[len(releases)-1], nil
}

// ListFiles returns every .zip archive listed for the given release.
func (c *Client) ListFiles(ctx context.Context, release string) ([]RemoteFile, error) {
	releaseURL := c.BaseURL + release + "/"
	doc, err := c.fetchDocument(ctx, releaseURL)
	if err != nil {
		return nil, apperrors.NewCatalogueUnavailable(fmt.Sprintf("failed to fetch listing for release %s", release), err)
	}

	var files []RemoteFile
	walkAnchors(doc, func(href string) {
		if !strings.HasSuffix(strings.ToLower(href), ".zip") {
			return
		}
		files = append(files, RemoteFile{
			Name: href,
			URL:  releaseURL + href,
		})
	})

	if len(files) == 0 {
		return nil, apperrors.NewCatalogueUnavailable(fmt.Sprintf("no files found for release %s", release), nil)
	}
	return files, nil
}

func (c *Client) fetchDocument(ctx context.Context, url string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return html.Parse(strings.NewReader(string(body)))
}

// walkAnchors calls fn with every <a href="..."> value found in doc.
func walkAnchors(doc *html.Node, fn func(href string)) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					fn(attr.Val)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
}
