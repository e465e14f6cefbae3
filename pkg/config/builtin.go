package config

// builtinLLMProviders returns the LLM providers that ship with maestro.
// User-defined providers with the same name override these.
func builtinLLMProviders() map[string]*LLMProviderConfig {
	return map[string]*LLMProviderConfig{
		"openai-default": {
			Type:           LLMProviderOpenAI,
			Model:          "gpt-4o-mini",
			APIKeyEnv:      "OPENAI_API_KEY",
			EmbeddingModel: "text-embedding-3-small",
		},
		"anthropic-default": {
			Type:      LLMProviderAnthropic,
			Model:     "claude-sonnet-4-5",
			APIKeyEnv: "ANTHROPIC_API_KEY",
		},
	}
}

// mergeLLMProviders merges user-defined providers over built-in ones.
func mergeLLMProviders(builtin map[string]*LLMProviderConfig, user map[string]LLMProviderConfig) map[string]*LLMProviderConfig {
	merged := make(map[string]*LLMProviderConfig, len(builtin)+len(user))
	for name, cfg := range builtin {
		c := *cfg
		merged[name] = &c
	}
	for name, cfg := range user {
		c := cfg
		merged[name] = &c
	}
	return merged
}
