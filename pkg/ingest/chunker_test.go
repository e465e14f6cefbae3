package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitText_ShortTextSingleChunk(t *testing.T) {
	chunks := SplitText("a short paragraph", 1000, 200)
	require.Len(t, chunks, 1)
	assert.Equal(t, "a short paragraph", chunks[0])
}

func TestSplitText_EmptyText(t *testing.T) {
	assert.Nil(t, SplitText("", 1000, 200))
	assert.Nil(t, SplitText("   \n\t  ", 1000, 200))
}

func TestSplitText_PrefersParagraphBoundary(t *testing.T) {
	first := strings.Repeat("a", 80)
	second := strings.Repeat("b", 80)
	chunks := SplitText(first+"\n\n"+second, 100, 10)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, first, chunks[0])
	assert.False(t, strings.Contains(chunks[0], "b"))
}

func TestSplitText_PrefersSentenceBoundary(t *testing.T) {
	text := strings.Repeat("c", 85) + ". " + strings.Repeat("d", 85)
	chunks := SplitText(text, 100, 10)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.True(t, strings.HasSuffix(chunks[0], "."))
}

func TestSplitText_HardCutOnUnbrokenRun(t *testing.T) {
	text := strings.Repeat("x", 250)
	chunks := SplitText(text, 100, 20)

	require.GreaterOrEqual(t, len(chunks), 3)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 100)
	}
	// Reassembling after stripping the overlap recovers the input.
	joined := chunks[0]
	for _, chunk := range chunks[1:] {
		joined += chunk[20:]
	}
	assert.Equal(t, text, joined)
}

func TestSplitText_OverlapRepeatsBoundaryText(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("the quick brown fox jumps over the lazy dog. ")
	}
	chunks := SplitText(sb.String(), 300, 60)

	require.GreaterOrEqual(t, len(chunks), 2)
	tail := chunks[0][len(chunks[0])-30:]
	assert.Contains(t, chunks[1], strings.TrimSpace(tail))
}

func TestSplitText_DefaultsOnBadParameters(t *testing.T) {
	text := strings.Repeat("word ", 500)
	chunks := SplitText(text, 0, -1)
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), DefaultChunkSize)
	}
}

func TestSplitText_AlwaysMakesProgress(t *testing.T) {
	// Overlap nearly as large as the chunk must not loop forever.
	chunks := SplitText(strings.Repeat("y", 50), 10, 9)
	require.NotEmpty(t, chunks)
	assert.Less(t, len(chunks), 60)
}
