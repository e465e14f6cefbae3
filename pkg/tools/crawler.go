package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/graph"
	"github.com/maestro-ai/maestro/pkg/models"
)

// skippedTags are elements whose text is boilerplate, not content.
var skippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"nav":      true,
	"header":   true,
	"footer":   true,
	"aside":    true,
	"noscript": true,
}

// Crawler fetches a single page and extracts its readable text.
type Crawler struct {
	cfg    *config.CrawlerConfig
	client *http.Client
}

// NewCrawler creates the targeted_crawl adapter.
func NewCrawler(cfg *config.CrawlerConfig) *Crawler {
	return &Crawler{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Crawler) Kind() models.Tool { return models.ToolTargetedCrawl }

// Configured is always true: crawling needs no credentials.
func (c *Crawler) Configured() bool { return true }

// Run fetches opts.TargetURL (falling back to the query when it is
// itself a URL) and returns the page text as one evidence item.
func (c *Crawler) Run(ctx context.Context, query string, opts Options) ([]models.Evidence, error) {
	target := opts.TargetURL
	if target == "" {
		target = strings.TrimSpace(query)
	}
	if !ValidURL(target) {
		return nil, fmt.Errorf("targeted_crawl requires a valid http(s) URL, got %q", target)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build crawl request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &graph.TransientBackendError{Backend: "targeted_crawl", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &graph.TransientBackendError{Backend: "targeted_crawl",
			Err: fmt.Errorf("crawl target returned %d", resp.StatusCode)}
	default:
		return nil, fmt.Errorf("crawl target returned %d", resp.StatusCode)
	}

	text, err := c.extractText(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	if text == "" {
		return []models.Evidence{}, nil
	}

	return []models.Evidence{{Text: text, Source: target}}, nil
}

// extractText walks the HTML tree collecting visible text, skipping
// boilerplate elements, capped at the configured length.
func (c *Crawler) extractText(body io.Reader) (string, error) {
	root, err := html.Parse(body)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if sb.Len() >= c.cfg.MaxChars {
			return
		}
		if n.Type == html.ElementNode && skippedTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)

	// Cap on a rune boundary; a byte slice could split a multi-byte
	// character at the limit.
	text := sb.String()
	if runes := []rune(text); len(runes) > c.cfg.MaxChars {
		text = string(runes[:c.cfg.MaxChars])
	}
	return text, nil
}

// ValidURL reports whether s is an absolute http(s) URL. The router
// uses this to reject crawl decisions whose target is not fetchable.
func ValidURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
