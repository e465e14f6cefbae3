// Package llm abstracts the language model providers behind a single
// client interface. One client handle is resolved per run; nodes never
// share process-global provider state.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/maestro-ai/maestro/pkg/config"
)

var (
	// ErrNotConfigured indicates the provider's API key is missing.
	ErrNotConfigured = errors.New("llm provider is not configured")

	// ErrEmbeddingsUnsupported indicates the provider has no embeddings API.
	ErrEmbeddingsUnsupported = errors.New("provider does not support embeddings")
)

// Message is one turn of a completion prompt.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// Request is a single completion call.
type Request struct {
	// System is the system prompt. Providers that take it as a separate
	// parameter (Anthropic) receive it there; others get a system message.
	System string

	Messages []Message

	// Temperature overrides the provider default when non-nil.
	Temperature *float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// Client is a language model handle bound to one provider and model.
type Client interface {
	// Complete runs a chat completion and returns the assistant text.
	Complete(ctx context.Context, req Request) (string, error)

	// Embed returns one embedding vector per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the model name for logging and feedback records.
	Model() string
}

// NewClient builds a client for the given provider configuration.
func NewClient(cfg *config.LLMProviderConfig) (Client, error) {
	switch cfg.Type {
	case config.LLMProviderOpenAI:
		return newOpenAIClient(cfg)
	case config.LLMProviderAnthropic:
		return newAnthropicClient(cfg)
	case config.LLMProviderStub:
		return NewScriptedClient(cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown llm provider type: %q", cfg.Type)
	}
}

// Configured reports whether the provider's API key is present without
// opening a connection. Used by the health endpoint.
func Configured(cfg *config.LLMProviderConfig) bool {
	if cfg == nil {
		return false
	}
	if cfg.Type == config.LLMProviderStub {
		return true
	}
	return cfg.APIKeyEnv != "" && os.Getenv(cfg.APIKeyEnv) != ""
}

// apiKey resolves the provider's API key from the environment.
func apiKey(cfg *config.LLMProviderConfig) (string, error) {
	if cfg.APIKeyEnv == "" {
		return "", fmt.Errorf("%w: no api_key_env set", ErrNotConfigured)
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNotConfigured, cfg.APIKeyEnv)
	}
	return key, nil
}
