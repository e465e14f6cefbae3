package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/maestro-ai/maestro/pkg/tools"
)

// Stats summarizes one ingest run.
type Stats struct {
	Files  int
	Chunks int
	Failed []string
}

// Ingester chunks documents and writes them into a vector index.
type Ingester struct {
	index        *tools.VectorIndex
	chunkSize    int
	chunkOverlap int
}

// NewIngester returns an Ingester with the default chunking parameters.
func NewIngester(index *tools.VectorIndex) *Ingester {
	return &Ingester{
		index:        index,
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
	}
}

// IngestFolder indexes every supported file under root. Extraction
// failures are logged and collected in Stats.Failed without aborting
// the run; an indexing failure aborts, since later files would hit the
// same backend.
func (ing *Ingester) IngestFolder(ctx context.Context, root string) (*Stats, error) {
	files, err := DiscoverFiles(root)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no ingestable files under %s", root)
	}

	stats := &Stats{}
	for _, path := range files {
		chunks, err := ing.IngestFile(ctx, path)
		if err != nil {
			slog.Error("Failed to ingest file", "path", path, "error", err)
			stats.Failed = append(stats.Failed, path)
			continue
		}
		stats.Files++
		stats.Chunks += chunks
		slog.Info("Ingested file", "path", path, "chunks", chunks)
	}
	if stats.Files == 0 {
		return stats, fmt.Errorf("all %d files failed to ingest", len(files))
	}
	return stats, nil
}

// IngestFile extracts, chunks, and indexes one document. Returns the
// number of chunks written.
func (ing *Ingester) IngestFile(ctx context.Context, path string) (int, error) {
	text, err := ExtractText(path)
	if err != nil {
		return 0, err
	}

	chunks := SplitText(text, ing.chunkSize, ing.chunkOverlap)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("no text extracted from %s", path)
	}

	source := filepath.Base(path)
	docs := make([]tools.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = tools.Document{
			ID:      fmt.Sprintf("%s#chunk%d", source, i),
			Content: chunk,
			Source:  source,
		}
	}
	if err := ing.index.Add(ctx, docs); err != nil {
		return 0, fmt.Errorf("failed to index %s: %w", path, err)
	}
	return len(chunks), nil
}
