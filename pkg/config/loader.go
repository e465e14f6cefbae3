package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// MaestroYAMLConfig represents the complete maestro.yaml file structure
type MaestroYAMLConfig struct {
	Defaults   *Defaults         `yaml:"defaults"`
	Queue      *QueueConfig      `yaml:"queue"`
	Graph      *GraphConfig      `yaml:"graph"`
	Summarizer *SummarizerConfig `yaml:"summarizer"`
	Tools      *ToolsConfig      `yaml:"tools"`
	Broker     *BrokerConfig     `yaml:"broker"`
	Retention  *RetentionConfig  `yaml:"retention"`
}

// LLMProvidersYAMLConfig represents the complete llm-providers.yaml file structure
type LLMProvidersYAMLConfig struct {
	LLMProviders map[string]LLMProviderConfig `yaml:"llm_providers"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load YAML files from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge built-in + user-defined configurations
//  5. Apply environment overrides (LLM_MODEL, RETRIEVER_INDEX_PATH, ...)
//  6. Validate all configuration
//  7. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"llm_providers", stats.LLMProviders,
		"default_provider", cfg.Defaults.LLMProvider,
		"workers", cfg.Queue.WorkerCount)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{
		configDir: configDir,
	}

	// 1. Load maestro.yaml (defaults, queue, graph, summarizer, tools, broker, retention)
	maestroConfig, err := loader.loadMaestroYAML()
	if err != nil {
		return nil, NewLoadError("maestro.yaml", err)
	}

	// 2. Load llm-providers.yaml
	llmProviders, err := loader.loadLLMProvidersYAML()
	if err != nil {
		return nil, NewLoadError("llm-providers.yaml", err)
	}

	// 3. Merge built-in + user-defined providers (user overrides built-in)
	llmProvidersMerged := mergeLLMProviders(builtinLLMProviders(), llmProviders)
	llmProviderRegistry := NewLLMProviderRegistry(llmProvidersMerged)

	// 4. Resolve each section: start with defaults, merge user config on top
	// so unset fields keep their built-in values.
	defaults, err := resolveSection(DefaultDefaults(), maestroConfig.Defaults, "defaults")
	if err != nil {
		return nil, err
	}
	queueConfig, err := resolveSection(DefaultQueueConfig(), maestroConfig.Queue, "queue")
	if err != nil {
		return nil, err
	}
	graphConfig, err := resolveSection(DefaultGraphConfig(), maestroConfig.Graph, "graph")
	if err != nil {
		return nil, err
	}
	summarizerConfig, err := resolveSection(DefaultSummarizerConfig(), maestroConfig.Summarizer, "summarizer")
	if err != nil {
		return nil, err
	}
	toolsConfig, err := resolveSection(DefaultToolsConfig(), maestroConfig.Tools, "tools")
	if err != nil {
		return nil, err
	}
	brokerConfig, err := resolveSection(DefaultBrokerConfig(), maestroConfig.Broker, "broker")
	if err != nil {
		return nil, err
	}
	retentionConfig, err := resolveSection(DefaultRetentionConfig(), maestroConfig.Retention, "retention")
	if err != nil {
		return nil, err
	}

	// 5. Environment overrides for deployment-time knobs
	applyEnvOverrides(defaults, toolsConfig, llmProviderRegistry)

	return &Config{
		configDir:           configDir,
		Defaults:            defaults,
		Queue:               queueConfig,
		Graph:               graphConfig,
		Summarizer:          summarizerConfig,
		Tools:               toolsConfig,
		Broker:              brokerConfig,
		Retention:           retentionConfig,
		LLMProviderRegistry: llmProviderRegistry,
	}, nil
}

// resolveSection merges a user-provided section into built-in defaults.
// Non-zero user values override defaults; unset values are preserved.
func resolveSection[T any](defaults *T, user *T, section string) (*T, error) {
	if user == nil {
		return defaults, nil
	}
	if err := mergo.Merge(defaults, user, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge %s config: %w", section, err)
	}
	return defaults, nil
}

// applyEnvOverrides applies deployment-time environment overrides that
// take precedence over YAML values.
func applyEnvOverrides(defaults *Defaults, tools *ToolsConfig, registry *LLMProviderRegistry) {
	if model := os.Getenv("LLM_MODEL"); model != "" {
		if provider, err := registry.Get(defaults.LLMProvider); err == nil {
			provider.Model = model
			slog.Info("LLM model overridden from environment", "model", model)
		}
	}
	if path := os.Getenv("RETRIEVER_INDEX_PATH"); path != "" {
		tools.Retriever.IndexPath = path
	}
	if v := os.Getenv("FALLBACK_WEB_ON_EMPTY_RETRIEVAL"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			tools.FallbackWebOnEmptyRetrieval = &enabled
		} else {
			slog.Warn("Invalid FALLBACK_WEB_ON_EMPTY_RETRIEVAL value, ignoring", "value", v)
		}
	}
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax
	// Note: ExpandEnv passes through original data on parse/execution errors,
	// allowing YAML parser to handle the content (or fail with clearer error message)
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadMaestroYAML() (*MaestroYAMLConfig, error) {
	var config MaestroYAMLConfig

	if err := l.loadYAML("maestro.yaml", &config); err != nil {
		return nil, err
	}

	return &config, nil
}

func (l *configLoader) loadLLMProvidersYAML() (map[string]LLMProviderConfig, error) {
	var config LLMProvidersYAMLConfig

	// Initialize map to avoid nil map
	config.LLMProviders = make(map[string]LLMProviderConfig)

	if err := l.loadYAML("llm-providers.yaml", &config); err != nil {
		return nil, err
	}

	return config.LLMProviders, nil
}
