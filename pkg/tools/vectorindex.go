package tools

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/maestro-ai/maestro/pkg/llm"
)

// VectorIndex is the persistent chromem-go collection behind internal
// retrieval. Embeddings come from the LLM client, so queries and
// ingested documents share one embedding space.
type VectorIndex struct {
	db         *chromem.DB
	collection string
	embedder   llm.Client

	mu  sync.Mutex
	col *chromem.Collection
}

// OpenVectorIndex opens (or creates) the index at path. Compression is
// always on; the index is write-rarely, read-often.
func OpenVectorIndex(path, collection string, embedder llm.Client) (*VectorIndex, error) {
	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector index at %s: %w", path, err)
	}
	return &VectorIndex{db: db, collection: collection, embedder: embedder}, nil
}

// getCollection lazily creates the collection with an embedding
// function bridging to the LLM client.
func (v *VectorIndex) getCollection() (*chromem.Collection, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.col != nil {
		return v.col, nil
	}

	embeddingFunc := func(ctx context.Context, text string) ([]float32, error) {
		vectors, err := v.embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vectors) != 1 {
			return nil, fmt.Errorf("expected 1 embedding, got %d", len(vectors))
		}
		return vectors[0], nil
	}

	col, err := v.db.GetOrCreateCollection(v.collection, nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %q: %w", v.collection, err)
	}
	v.col = col
	return col, nil
}

// Document is one chunk to index.
type Document struct {
	ID       string
	Content  string
	Source   string
	Metadata map[string]string
}

// Add embeds and stores documents. Used by the ingest pipeline.
func (v *VectorIndex) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	col, err := v.getCollection()
	if err != nil {
		return err
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}
	vectors, err := v.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("expected %d embeddings, got %d", len(docs), len(vectors))
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		metadata := map[string]string{"source": doc.Source}
		for k, val := range doc.Metadata {
			metadata[k] = val
		}
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  metadata,
			Embedding: vectors[i],
		}
	}
	if err := col.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return fmt.Errorf("failed to index documents: %w", err)
	}
	return nil
}

// Query embeds the query and returns the topK nearest chunks.
func (v *VectorIndex) Query(ctx context.Context, query string, topK int) ([]chromem.Result, error) {
	col, err := v.getCollection()
	if err != nil {
		return nil, err
	}
	if count := col.Count(); count == 0 {
		return nil, nil
	} else if topK > count {
		topK = count
	}

	vectors, err := v.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	results, err := col.QueryEmbedding(ctx, vectors[0], topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}
	return results, nil
}

// Count returns the number of indexed chunks.
func (v *VectorIndex) Count() (int, error) {
	col, err := v.getCollection()
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}
