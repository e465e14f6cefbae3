// Package config loads and validates maestro configuration from YAML files
// with environment variable expansion and built-in defaults.
package config

// Config is the umbrella configuration object returned by Initialize()
// and threaded through the application.
type Config struct {
	configDir string // configuration directory path (for reference)

	// System-wide defaults
	Defaults *Defaults

	// Queue and worker pool configuration
	Queue *QueueConfig

	// Graph runtime configuration (timeouts, budgets)
	Graph *GraphConfig

	// Conversation summarization configuration
	Summarizer *SummarizerConfig

	// Tool adapter configuration
	Tools *ToolsConfig

	// Event broker configuration (publish retry, replay, grace)
	Broker *BrokerConfig

	// Data retention configuration
	Retention *RetentionConfig

	// LLM provider registry
	LLMProviderRegistry *LLMProviderRegistry
}

// Stats contains statistics about loaded configuration.
type Stats struct {
	LLMProviders int
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() Stats {
	s := Stats{}
	if c.LLMProviderRegistry != nil {
		s.LLMProviders = c.LLMProviderRegistry.Len()
	}
	return s
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetLLMProvider retrieves an LLM provider configuration by name.
// This is a convenience method that wraps LLMProviderRegistry.Get().
func (c *Config) GetLLMProvider(name string) (*LLMProviderConfig, error) {
	return c.LLMProviderRegistry.Get(name)
}

// DefaultLLMProvider returns the configured default provider.
func (c *Config) DefaultLLMProvider() (*LLMProviderConfig, error) {
	return c.LLMProviderRegistry.Get(c.Defaults.LLMProvider)
}
