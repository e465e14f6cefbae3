// Package summarizer compresses conversation history into a rolling
// summary so long sessions fit in the generator's context. Short
// histories are summarized in one shot; long ones are chunked and
// map-reduced over a goroutine pool.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/pkoukk/tiktoken-go"

	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/llm"
	"github.com/maestro-ai/maestro/pkg/models"
)

const (
	summarySystemPrompt = "You compress conversation history into a concise summary. " +
		"Preserve user goals, stated facts, decisions, and unresolved questions. " +
		"Write in third person. Do not invent details."

	chunkSystemPrompt = "You summarize one segment of a longer conversation. " +
		"Preserve user goals, stated facts, decisions, and unresolved questions " +
		"from this segment only. Write in third person."

	metaSystemPrompt = "You merge partial conversation summaries into one coherent " +
		"summary. Keep chronological order and drop repetition. Write in third person."

	tokenEncoding = "cl100k_base"
)

// Summarizer produces rolling session summaries via the LLM client.
type Summarizer struct {
	cfg    *config.SummarizerConfig
	client llm.Client

	encOnce sync.Once
	encoder *tiktoken.Tiktoken

	// chunkHook, when set, observes hierarchical chunk boundaries.
	chunkHook func(chunks [][]models.Message)
}

// New creates a summarizer over the given LLM client.
func New(cfg *config.SummarizerConfig, client llm.Client) *Summarizer {
	return &Summarizer{cfg: cfg, client: client}
}

// Summarize folds the history prefix into a new summary, keeping the
// most recent messages out of the compression. Histories below the
// threshold return the prior summary unchanged.
func (s *Summarizer) Summarize(ctx context.Context, history []models.Message, priorSummary string) (string, error) {
	if len(history) < s.cfg.Threshold {
		return priorSummary, nil
	}

	prefix := history
	if len(history) > s.cfg.KeepRecentMessages {
		prefix = history[:len(history)-s.cfg.KeepRecentMessages]
	}

	var summary string
	var err error
	if len(history) >= s.cfg.HierarchicalThreshold {
		summary, err = s.hierarchical(ctx, prefix, priorSummary)
	} else {
		summary, err = s.oneShot(ctx, prefix, priorSummary)
	}
	if err != nil {
		return "", err
	}
	return truncateRunes(strings.TrimSpace(summary), s.cfg.CharCap), nil
}

// oneShot compresses the whole prefix in a single completion.
func (s *Summarizer) oneShot(ctx context.Context, prefix []models.Message, priorSummary string) (string, error) {
	var sb strings.Builder
	if priorSummary != "" {
		sb.WriteString("Summary of earlier conversation:\n")
		sb.WriteString(priorSummary)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Conversation to fold into the summary:\n")
	sb.WriteString(renderMessages(prefix))
	sb.WriteString("\n\nWrite the updated summary.")

	prompt := sb.String()
	s.logTokens("standard", prompt)

	summary, err := s.client.Complete(ctx, llm.Request{
		System:   summarySystemPrompt,
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to summarize history: %w", err)
	}
	return summary, nil
}

// hierarchical chunks the prefix, summarizes chunks concurrently, then
// merges the chunk summaries with the prior summary in order.
func (s *Summarizer) hierarchical(ctx context.Context, prefix []models.Message, priorSummary string) (string, error) {
	chunks := splitChunks(prefix, s.cfg.ChunkSize)
	if s.chunkHook != nil {
		s.chunkHook(chunks)
	}

	pool, err := ants.NewPool(s.cfg.PoolSize)
	if err != nil {
		return "", fmt.Errorf("failed to create summarizer pool: %w", err)
	}
	defer pool.Release()

	chunkSummaries := make([]string, len(chunks))
	chunkErrs := make([]error, len(chunks))
	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			chunkSummaries[i], chunkErrs[i] = s.summarizeChunk(ctx, i, chunk)
		})
		if submitErr != nil {
			wg.Done()
			chunkErrs[i] = fmt.Errorf("failed to submit chunk %d: %w", i, submitErr)
		}
	}
	wg.Wait()

	for i, chunkErr := range chunkErrs {
		if chunkErr != nil {
			return "", fmt.Errorf("chunk %d of %d failed: %w", i+1, len(chunks), chunkErr)
		}
	}

	var sb strings.Builder
	if priorSummary != "" {
		sb.WriteString("Summary of earlier conversation:\n")
		sb.WriteString(priorSummary)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Partial summaries, in chronological order:\n")
	for i, chunkSummary := range chunkSummaries {
		fmt.Fprintf(&sb, "\n[Part %d]\n%s\n", i+1, chunkSummary)
	}
	sb.WriteString("\nMerge these into one summary.")

	prompt := sb.String()
	s.logTokens("meta", prompt)

	summary, err := s.client.Complete(ctx, llm.Request{
		System:   metaSystemPrompt,
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to merge chunk summaries: %w", err)
	}
	return summary, nil
}

func (s *Summarizer) summarizeChunk(ctx context.Context, index int, chunk []models.Message) (string, error) {
	prompt := "Conversation segment:\n" + renderMessages(chunk) + "\n\nSummarize this segment."
	s.logTokens(fmt.Sprintf("chunk_%d", index), prompt)

	summary, err := s.client.Complete(ctx, llm.Request{
		System:   chunkSystemPrompt,
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(summary), nil
}

// logTokens records the prompt size in tokens at debug level. Token
// counting is best effort; encoder init failures only disable the log.
func (s *Summarizer) logTokens(stage, prompt string) {
	s.encOnce.Do(func() {
		encoder, err := tiktoken.GetEncoding(tokenEncoding)
		if err != nil {
			slog.Warn("Token encoder unavailable, skipping prompt size logging", "error", err)
			return
		}
		s.encoder = encoder
	})
	if s.encoder == nil {
		return
	}
	tokens := len(s.encoder.Encode(prompt, nil, nil))
	slog.Debug("Summarizer prompt built", "stage", stage, "tokens", tokens, "chars", len(prompt))
}

// splitChunks partitions messages into consecutive chunks of size n.
func splitChunks(messages []models.Message, n int) [][]models.Message {
	if n < 1 {
		n = 1
	}
	chunks := make([][]models.Message, 0, (len(messages)+n-1)/n)
	for start := 0; start < len(messages); start += n {
		end := start + n
		if end > len(messages) {
			end = len(messages)
		}
		chunks = append(chunks, messages[start:end])
	}
	return chunks
}

func renderMessages(messages []models.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		sb.WriteString(string(msg.Role))
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
