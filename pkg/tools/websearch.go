package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/graph"
	"github.com/maestro-ai/maestro/pkg/models"
)

// WebSearch queries a Tavily-style search API and returns result
// snippets as evidence.
type WebSearch struct {
	cfg    *config.WebSearchConfig
	client *http.Client
}

// NewWebSearch creates the web_search adapter.
func NewWebSearch(cfg *config.WebSearchConfig) *WebSearch {
	return &WebSearch{
		cfg:    cfg,
		client: &http.Client{},
	}
}

func (w *WebSearch) Kind() models.Tool { return models.ToolWebSearch }

// Configured reports whether the API key environment variable is set.
func (w *WebSearch) Configured() bool {
	return w.cfg.APIKeyEnv != "" && os.Getenv(w.cfg.APIKeyEnv) != ""
}

type searchRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type searchResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (w *WebSearch) Run(ctx context.Context, query string, opts Options) ([]models.Evidence, error) {
	if !w.Configured() {
		return nil, &graph.ConfigError{Component: "web_search", Reason: "search API key is not set"}
	}

	maxResults := w.cfg.MaxResults
	if opts.TopK > 0 {
		maxResults = opts.TopK
	}

	body, err := json.Marshal(searchRequest{
		APIKey:      os.Getenv(w.cfg.APIKeyEnv),
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: "advanced",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, &graph.TransientBackendError{Backend: "web_search", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &graph.TransientBackendError{Backend: "web_search",
			Err: fmt.Errorf("search API returned %d", resp.StatusCode)}
	default:
		return nil, fmt.Errorf("search API returned %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &graph.TransientBackendError{Backend: "web_search", Err: err}
	}

	var parsed searchResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	evidence := make([]models.Evidence, 0, len(parsed.Results))
	for _, result := range parsed.Results {
		if len(evidence) == maxResults {
			break
		}
		text := result.Content
		if result.Title != "" {
			text = result.Title + ": " + text
		}
		evidence = append(evidence, models.Evidence{
			Text:   text,
			Source: result.URL,
			Score:  result.Score,
		})
	}
	return evidence, nil
}
