package config

// Defaults contains system-wide default settings used when a request
// doesn't specify its own values.
type Defaults struct {
	// LLMProvider is the provider name used when a job doesn't request a
	// specific model.
	LLMProvider string `yaml:"llm_provider,omitempty"`

	// BaseLanguage is the language answers are drafted in. Translation is
	// skipped when the effective target language equals the base language.
	BaseLanguage string `yaml:"base_language,omitempty"`
}

// DefaultDefaults returns the built-in system defaults.
func DefaultDefaults() *Defaults {
	return &Defaults{
		LLMProvider:  "openai-default",
		BaseLanguage: "en",
	}
}
