package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/maestro-ai/maestro/pkg/config"
)

// anthropicMaxTokensDefault is used when neither the request nor the
// provider config caps output; the Anthropic API requires a value.
const anthropicMaxTokensDefault = 4096

// anthropicClient backs the "anthropic" provider type.
type anthropicClient struct {
	client      anthropic.Client
	model       string
	temperature *float64
	maxTokens   int
}

func newAnthropicClient(cfg *config.LLMProviderConfig) (*anthropicClient, error) {
	key, err := apiKey(cfg)
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{option.WithAPIKey(key)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &anthropicClient{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (c *anthropicClient) Model() string { return c.model }

func (c *anthropicClient) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	maxTokens := int64(anthropicMaxTokensDefault)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	} else if c.maxTokens > 0 {
		maxTokens = int64(c.maxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	} else if c.temperature != nil {
		params.Temperature = anthropic.Float(*c.temperature)
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic completion failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// Embed is unsupported: Anthropic has no embeddings API. Deployments
// using Anthropic for completions pair it with an OpenAI provider entry
// for the retrieval index.
func (c *anthropicClient) Embed(_ context.Context, _ []string) ([][]float32, error) {
	return nil, ErrEmbeddingsUnsupported
}
