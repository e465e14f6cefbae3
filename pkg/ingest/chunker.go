// Package ingest loads documents (PDF, text, markdown) into the vector
// index behind internal retrieval: extract text, chunk it with overlap,
// embed, and store.
package ingest

import "strings"

// Chunk boundaries. Overlap keeps context that straddles a boundary
// retrievable from both sides.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// SplitText chunks text into pieces of at most chunkSize runes with the
// given overlap. Splits prefer paragraph, then sentence, then word
// boundaries near the chunk end; only unbroken runs force a hard cut.
func SplitText(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 5
	}

	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= chunkSize {
		return []string{string(runes)}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = splitPoint(runes, start, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}

		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// splitPoint finds the best boundary in (start, limit], scanning back
// from the limit for a paragraph break, then a sentence end, then any
// whitespace.
func splitPoint(runes []rune, start, limit int) int {
	// Scan at most the trailing fifth of the chunk; a boundary further
	// back wastes too much of the budget.
	floor := limit - (limit-start)/5
	if floor <= start {
		floor = start + 1
	}

	for i := limit - 1; i >= floor; i-- {
		if runes[i] == '\n' && i > 0 && runes[i-1] == '\n' {
			return i
		}
	}
	for i := limit - 1; i >= floor; i-- {
		if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' {
			return i + 1
		}
	}
	for i := limit - 1; i >= floor; i-- {
		if runes[i] == ' ' || runes[i] == '\n' || runes[i] == '\t' {
			return i
		}
	}
	return limit
}
