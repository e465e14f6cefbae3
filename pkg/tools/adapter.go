// Package tools implements the execution backends behind routing
// decisions: web search, targeted crawling, internal retrieval, and the
// calculator. Adapters normalize every backend to evidence lists.
package tools

import (
	"context"
	"fmt"

	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/llm"
	"github.com/maestro-ai/maestro/pkg/models"
)

// Options carries per-call parameters that not every adapter uses.
type Options struct {
	// TargetURL is the page to fetch (targeted_crawl only).
	TargetURL string

	// TopK overrides the configured result count when positive.
	TopK int
}

// Adapter is one execution backend. Run returns normalized evidence;
// failures worth retrying are wrapped in graph.TransientBackendError.
type Adapter interface {
	// Run executes the backend for a query.
	Run(ctx context.Context, query string, opts Options) ([]models.Evidence, error)

	// Kind is the routing tool this adapter serves.
	Kind() models.Tool

	// Configured reports whether the backend has what it needs to run.
	// Unconfigured adapters stay out of routing instead of failing jobs.
	Configured() bool
}

// Registry maps routing tools to adapters, each wrapped with the
// timeout/retry policy.
type Registry struct {
	adapters map[models.Tool]Adapter
}

// NewRegistry builds the full adapter set. The LLM client supplies
// embeddings for internal retrieval.
func NewRegistry(cfg *config.ToolsConfig, llmClient llm.Client) (*Registry, error) {
	retriever, err := NewRetriever(cfg.Retriever, llmClient)
	if err != nil {
		return nil, fmt.Errorf("failed to build retriever: %w", err)
	}

	adapters := []Adapter{
		NewWebSearch(cfg.WebSearch),
		NewCrawler(cfg.Crawler),
		retriever,
		NewCalculator(),
	}

	reg := &Registry{adapters: make(map[models.Tool]Adapter, len(adapters))}
	for _, adapter := range adapters {
		reg.adapters[adapter.Kind()] = withRetry(adapter, cfg)
	}
	return reg, nil
}

// NewRegistryFromAdapters builds a registry over explicit adapters,
// without the retry wrapper. Used in tests.
func NewRegistryFromAdapters(adapters ...Adapter) *Registry {
	reg := &Registry{adapters: make(map[models.Tool]Adapter, len(adapters))}
	for _, adapter := range adapters {
		reg.adapters[adapter.Kind()] = adapter
	}
	return reg
}

// Get returns the adapter for a tool, or false when the tool has no
// backend (translate and direct_answer run inside the graph).
func (r *Registry) Get(tool models.Tool) (Adapter, bool) {
	adapter, ok := r.adapters[tool]
	return adapter, ok
}

// Configured reports whether the tool's backend is usable. Tools
// without a backend adapter are always considered configured.
func (r *Registry) Configured(tool models.Tool) bool {
	adapter, ok := r.adapters[tool]
	if !ok {
		return true
	}
	return adapter.Configured()
}
