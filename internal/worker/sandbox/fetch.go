package sandbox

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// maxFetchBytes bounds how much of a remote resource is read.
const maxFetchBytes = 4 << 20 // 4 MiB

// Fetcher retrieves web pages and files for the research and file-fetch
// workers. Page text extraction walks the HTML tree rather than regexing
// markup.
type Fetcher struct {
	client      *http.Client
	downloadDir string
}

// NewFetcher creates a fetcher that saves downloads under downloadDir.
func NewFetcher(downloadDir string) *Fetcher {
	return &Fetcher{
		client:      &http.Client{Timeout: 30 * time.Second},
		downloadDir: downloadDir,
	}
}

// Page is the extracted content of a fetched HTML document.
type Page struct {
	URL   string
	Title string
	Text  string
}

// FetchPage retrieves url and extracts its title and visible text.
func (f *Fetcher) FetchPage(ctx context.Context, url string) (Page, error) {
	body, _, err := f.get(ctx, url)
	if err != nil {
		return Page{}, err
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return Page{}, fmt.Errorf("failed to parse HTML: %w", err)
	}

	page := Page{URL: url}
	extractPage(doc, &page)
	page.Text = collapseWhitespace(page.Text)
	if len(page.Text) > 4000 {
		page.Text = page.Text[:4000] + "..."
	}
	return page, nil
}

// FetchFile downloads url into the download directory and returns the
// local path and size.
func (f *Fetcher) FetchFile(ctx context.Context, url string) (string, int64, error) {
	body, _, err := f.get(ctx, url)
	if err != nil {
		return "", 0, err
	}

	if err := os.MkdirAll(f.downloadDir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create download directory: %w", err)
	}

	name := path.Base(strings.SplitN(url, "?", 2)[0])
	if name == "" || name == "/" || name == "." {
		name = fmt.Sprintf("download-%d", time.Now().UnixNano())
	}
	dest := filepath.Join(f.downloadDir, name)

	if err := os.WriteFile(dest, body, 0644); err != nil {
		return "", 0, fmt.Errorf("failed to write file: %w", err)
	}
	return dest, int64(len(body)), nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL %s: %w", url, err)
	}
	req.Header.Set("User-Agent", "quorum/0.1")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch failed: status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read body: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// extractPage walks the node tree collecting the title and visible text.
func extractPage(n *html.Node, page *Page) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "title":
			if n.FirstChild != nil && page.Title == "" {
				page.Title = strings.TrimSpace(n.FirstChild.Data)
			}
		case "script", "style", "noscript":
			return
		}
	}
	if n.Type == html.TextNode {
		page.Text += n.Data + " "
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractPage(c, page)
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
