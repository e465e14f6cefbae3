package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/graph"
	"github.com/maestro-ai/maestro/pkg/llm"
	"github.com/maestro-ai/maestro/pkg/models"
)

// Retriever answers queries from the local vector index. The index is
// opened lazily on first use so an unconfigured deployment pays nothing.
type Retriever struct {
	cfg      *config.RetrieverConfig
	embedder llm.Client

	once    sync.Once
	index   *VectorIndex
	openErr error
}

// NewRetriever creates the internal_retrieval adapter. The LLM client
// must support embeddings (pair Anthropic completions with an OpenAI
// provider entry).
func NewRetriever(cfg *config.RetrieverConfig, embedder llm.Client) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("retriever requires an embedding-capable LLM client")
	}
	return &Retriever{cfg: cfg, embedder: embedder}, nil
}

func (r *Retriever) Kind() models.Tool { return models.ToolInternalRetrieval }

// Configured reports whether an index path is set.
func (r *Retriever) Configured() bool {
	return r.cfg.IndexPath != ""
}

func (r *Retriever) Run(ctx context.Context, query string, opts Options) ([]models.Evidence, error) {
	if !r.Configured() {
		return nil, &graph.ConfigError{Component: "internal_retrieval", Reason: "retriever index path is not set"}
	}

	r.once.Do(func() {
		r.index, r.openErr = OpenVectorIndex(r.cfg.IndexPath, r.cfg.Collection, r.embedder)
	})
	if r.openErr != nil {
		return nil, fmt.Errorf("failed to open retrieval index: %w", r.openErr)
	}

	topK := r.cfg.TopK
	if opts.TopK > 0 {
		topK = opts.TopK
	}

	results, err := r.index.Query(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	evidence := make([]models.Evidence, 0, len(results))
	for _, result := range results {
		evidence = append(evidence, models.Evidence{
			Text:   result.Content,
			Source: result.Metadata["source"],
			Score:  float64(result.Similarity),
		})
	}
	return evidence, nil
}
