// Package probe measures a site's public front page: load time, transfer
// size, compression, and enough HTML structure for the request-count
// estimate and the SEO checks.
package probe

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"wpfleet/internal/domain"
)

const (
	DefaultTimeout = 20 * time.Second

	// maxPageBytes caps how much of a front page is read.
	maxPageBytes = 10 << 20
)

// Prober fetches and analyzes front pages. Safe for concurrent use.
type Prober struct {
	http    *http.Client
	timeout time.Duration
}

// New returns a prober with the given per-fetch timeout, or DefaultTimeout
// when zero.
func New(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		http: &http.Client{
			// Compression is negotiated manually so the Content-Encoding
			// header survives for gzip detection.
			Transport: &http.Transport{DisableCompression: true},
		},
		timeout: timeout,
	}
}

// FrontPage fetches the page at baseURL and derives its metrics. Load time
// covers the full fetch including reading the body.
func (p *Prober) FrontPage(ctx context.Context, baseURL string) (domain.PageMetrics, error) {
	var m domain.PageMetrics

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return m, err
	}
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", "wpfleet-probe/1.0")

	start := time.Now()
	resp, err := p.http.Do(req)
	if err != nil {
		return m, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 399 {
		return m, fmt.Errorf("front page returned status %d", resp.StatusCode)
	}

	body := io.Reader(io.LimitReader(resp.Body, maxPageBytes))
	m.GzipEnabled = strings.Contains(resp.Header.Get("Content-Encoding"), "gzip")
	if m.GzipEnabled {
		gz, err := gzip.NewReader(body)
		if err != nil {
			return m, fmt.Errorf("gzip body: %w", err)
		}
		defer gz.Close()
		body = gz
	}

	page, err := io.ReadAll(body)
	m.LoadTimeMS = time.Since(start).Milliseconds()
	if err != nil {
		return m, err
	}
	m.PageSizeBytes = int64(len(page))

	analyzeHTML(page, &m)
	return m, nil
}

// analyzeHTML walks the document and fills the structural fields. The
// request count is the page itself plus every referenced script, image and
// stylesheet.
func analyzeHTML(page []byte, m *domain.PageMetrics) {
	m.RequestCount = 1

	doc, err := html.Parse(strings.NewReader(string(page)))
	if err != nil {
		return
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if m.Title == "" {
					m.Title = strings.TrimSpace(textOf(n))
				}
			case "meta":
				if strings.EqualFold(attr(n, "name"), "description") {
					m.MetaDescription = strings.TrimSpace(attr(n, "content"))
				}
			case "h1":
				m.H1Count++
			case "h2":
				m.H2Count++
			case "script", "img":
				if attr(n, "src") != "" {
					m.RequestCount++
				}
			case "link":
				if strings.EqualFold(attr(n, "rel"), "stylesheet") && attr(n, "href") != "" {
					m.RequestCount++
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
