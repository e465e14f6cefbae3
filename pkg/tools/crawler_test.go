package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/graph"
)

const crawlerTestPage = `<html>
<head><title>Release Notes</title><script>window.track()</script></head>
<body>
<nav>Home About Contact</nav>
<header>Site Header</header>
<article>
<h1>Version 2.0</h1>
<p>The streaming layer was rewritten.</p>
<p>Checkpoints are now incremental.</p>
</article>
<aside>Related links</aside>
<footer>Copyright</footer>
<noscript>Enable JavaScript</noscript>
</body>
</html>`

func crawlerConfig() *config.CrawlerConfig {
	return &config.CrawlerConfig{
		Timeout:   5 * time.Second,
		MaxChars:  15000,
		UserAgent: "Mozilla/5.0 (compatible; maestro/1.0)",
	}
}

func TestCrawler_Run(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Mozilla/5.0 (compatible; maestro/1.0)", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(crawlerTestPage))
	}))
	defer server.Close()

	crawler := NewCrawler(crawlerConfig())
	evidence, err := crawler.Run(context.Background(), "ignored", Options{TargetURL: server.URL})
	require.NoError(t, err)
	require.Len(t, evidence, 1)

	text := evidence[0].Text
	assert.Contains(t, text, "Version 2.0")
	assert.Contains(t, text, "The streaming layer was rewritten.")
	assert.Contains(t, text, "Checkpoints are now incremental.")
	assert.NotContains(t, text, "window.track")
	assert.NotContains(t, text, "Home About Contact")
	assert.NotContains(t, text, "Site Header")
	assert.NotContains(t, text, "Related links")
	assert.NotContains(t, text, "Copyright")
	assert.NotContains(t, text, "Enable JavaScript")
	assert.Equal(t, server.URL, evidence[0].Source)
}

func TestCrawler_QueryAsTarget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>hello</p></body></html>"))
	}))
	defer server.Close()

	crawler := NewCrawler(crawlerConfig())
	evidence, err := crawler.Run(context.Background(), "  "+server.URL+"  ", Options{})
	require.NoError(t, err)
	require.Len(t, evidence, 1)
	assert.Equal(t, "hello", evidence[0].Text)
}

func TestCrawler_MaxCharsCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>" + strings.Repeat("abcde ", 200) + "</p></body></html>"))
	}))
	defer server.Close()

	cfg := crawlerConfig()
	cfg.MaxChars = 100
	crawler := NewCrawler(cfg)

	evidence, err := crawler.Run(context.Background(), "", Options{TargetURL: server.URL})
	require.NoError(t, err)
	require.Len(t, evidence, 1)
	assert.LessOrEqual(t, len(evidence[0].Text), 100)
}

func TestCrawler_MaxCharsCapOnRuneBoundary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>" + strings.Repeat("héllo wörld ", 100) + "</p></body></html>"))
	}))
	defer server.Close()

	cfg := crawlerConfig()
	cfg.MaxChars = 97
	crawler := NewCrawler(cfg)

	evidence, err := crawler.Run(context.Background(), "", Options{TargetURL: server.URL})
	require.NoError(t, err)
	require.Len(t, evidence, 1)

	text := evidence[0].Text
	assert.True(t, utf8.ValidString(text))
	assert.Equal(t, 97, len([]rune(text)))
}

func TestCrawler_InvalidTarget(t *testing.T) {
	crawler := NewCrawler(crawlerConfig())
	for _, target := range []string{"", "not a url", "ftp://example.com/file", "what is the weather"} {
		_, err := crawler.Run(context.Background(), target, Options{})
		assert.Error(t, err, "target %q", target)
	}
}

func TestCrawler_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	crawler := NewCrawler(crawlerConfig())
	_, err := crawler.Run(context.Background(), "", Options{TargetURL: server.URL})
	assert.True(t, graph.Retryable(err))
}

func TestCrawler_NotFoundIsNotTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	crawler := NewCrawler(crawlerConfig())
	_, err := crawler.Run(context.Background(), "", Options{TargetURL: server.URL})
	require.Error(t, err)
	assert.False(t, graph.Retryable(err))
}

func TestValidURL(t *testing.T) {
	assert.True(t, ValidURL("http://example.com"))
	assert.True(t, ValidURL("https://example.com/path?q=1"))
	assert.False(t, ValidURL("example.com"))
	assert.False(t, ValidURL("ftp://example.com"))
	assert.False(t, ValidURL("https://"))
	assert.False(t, ValidURL(""))
}
