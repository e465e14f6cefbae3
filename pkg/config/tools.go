package config

import "time"

// ToolsConfig groups tool adapter configuration.
type ToolsConfig struct {
	WebSearch *WebSearchConfig `yaml:"web_search"`
	Crawler   *CrawlerConfig   `yaml:"crawler"`
	Retriever *RetrieverConfig `yaml:"retriever"`

	// FallbackWebOnEmptyRetrieval enables the one-shot web_search fallback
	// when internal_retrieval returns nothing.
	FallbackWebOnEmptyRetrieval *bool `yaml:"fallback_web_on_empty_retrieval,omitempty"`

	// AdapterTimeout is the per-call deadline applied to every adapter
	// invocation by the retry wrapper.
	AdapterTimeout time.Duration `yaml:"adapter_timeout"`

	// AdapterRetryMax is the total attempt cap per adapter call
	// (first attempt + retries). Only transient errors are retried.
	AdapterRetryMax int `yaml:"adapter_retry_max"`

	// AdapterRetryBackoff is the initial backoff between adapter attempts,
	// doubling per retry (200ms → 400ms → 800ms).
	AdapterRetryBackoff time.Duration `yaml:"adapter_retry_backoff"`
}

// WebSearchConfig configures the web_search adapter.
type WebSearchConfig struct {
	// APIKeyEnv is the environment variable holding the search API key.
	// The adapter reports needs_configuration when the variable is empty.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// Endpoint is the search API URL.
	Endpoint string `yaml:"endpoint,omitempty"`

	// MaxResults caps the number of results per query.
	MaxResults int `yaml:"max_results"`
}

// CrawlerConfig configures the targeted_crawl adapter.
type CrawlerConfig struct {
	// Timeout is the HTTP fetch deadline for a single page.
	Timeout time.Duration `yaml:"timeout"`

	// MaxChars caps the extracted text length.
	MaxChars int `yaml:"max_chars"`

	// UserAgent is sent on crawl requests. Some sites reject
	// non-browser agents.
	UserAgent string `yaml:"user_agent,omitempty"`
}

// RetrieverConfig configures the internal_retrieval adapter.
type RetrieverConfig struct {
	// IndexPath is the on-disk location of the vector index. Empty means
	// internal retrieval is unconfigured. Overridable via
	// RETRIEVER_INDEX_PATH.
	IndexPath string `yaml:"index_path,omitempty"`

	// Collection is the index collection name.
	Collection string `yaml:"collection,omitempty"`

	// TopK is the number of nearest documents returned per query.
	TopK int `yaml:"top_k"`
}

// DefaultToolsConfig returns the built-in tool adapter defaults.
func DefaultToolsConfig() *ToolsConfig {
	fallback := true
	return &ToolsConfig{
		WebSearch: &WebSearchConfig{
			APIKeyEnv:  "WEB_SEARCH_KEY",
			Endpoint:   "https://api.tavily.com/search",
			MaxResults: 5,
		},
		Crawler: &CrawlerConfig{
			Timeout:   15 * time.Second,
			MaxChars:  15000,
			UserAgent: "Mozilla/5.0 (compatible; maestro/1.0)",
		},
		Retriever: &RetrieverConfig{
			Collection: "knowledge-base",
			TopK:       5,
		},
		FallbackWebOnEmptyRetrieval: &fallback,
		AdapterTimeout:              30 * time.Second,
		AdapterRetryMax:             2,
		AdapterRetryBackoff:         200 * time.Millisecond,
	}
}

// FallbackEnabled reports whether the empty-retrieval web fallback is on.
func (c *ToolsConfig) FallbackEnabled() bool {
	return c.FallbackWebOnEmptyRetrieval == nil || *c.FallbackWebOnEmptyRetrieval
}
