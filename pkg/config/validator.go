package config

import (
	"errors"
	"fmt"
)

// Validator performs cross-section validation of a loaded Config.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given config.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every validation check and collects failures.
func (v *Validator) ValidateAll() error {
	var errs []error

	errs = append(errs, v.validateDefaults()...)
	errs = append(errs, v.validateLLMProviders()...)
	errs = append(errs, v.validateQueue()...)
	errs = append(errs, v.validateGraph()...)
	errs = append(errs, v.validateSummarizer()...)
	errs = append(errs, v.validateBroker()...)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrValidationFailed, errors.Join(errs...))
	}
	return nil
}

func (v *Validator) validateDefaults() []error {
	var errs []error
	d := v.cfg.Defaults
	if d.LLMProvider == "" {
		errs = append(errs, NewValidationError("defaults", "defaults", "llm_provider", ErrMissingRequiredField))
	} else if !v.cfg.LLMProviderRegistry.Has(d.LLMProvider) {
		errs = append(errs, NewValidationError("defaults", "defaults", "llm_provider",
			fmt.Errorf("%w: %s", ErrLLMProviderNotFound, d.LLMProvider)))
	}
	if d.BaseLanguage == "" {
		errs = append(errs, NewValidationError("defaults", "defaults", "base_language", ErrMissingRequiredField))
	}
	return errs
}

func (v *Validator) validateLLMProviders() []error {
	var errs []error
	for name, p := range v.cfg.LLMProviderRegistry.GetAll() {
		switch p.Type {
		case LLMProviderOpenAI, LLMProviderAnthropic, LLMProviderStub:
		default:
			errs = append(errs, NewValidationError("llm_provider", name, "type",
				fmt.Errorf("%w: %q", ErrInvalidValue, p.Type)))
		}
		if p.Model == "" {
			errs = append(errs, NewValidationError("llm_provider", name, "model", ErrMissingRequiredField))
		}
	}
	return errs
}

func (v *Validator) validateQueue() []error {
	var errs []error
	q := v.cfg.Queue
	if q.WorkerCount < 1 {
		errs = append(errs, NewValidationError("queue", "queue", "worker_count",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue)))
	}
	if q.MaxConcurrentJobs < q.WorkerCount {
		errs = append(errs, NewValidationError("queue", "queue", "max_concurrent_jobs",
			fmt.Errorf("%w: must be >= worker_count", ErrInvalidValue)))
	}
	if q.JobTimeout <= 0 {
		errs = append(errs, NewValidationError("queue", "queue", "job_timeout",
			fmt.Errorf("%w: must be positive", ErrInvalidValue)))
	}
	return errs
}

func (v *Validator) validateGraph() []error {
	var errs []error
	g := v.cfg.Graph
	if g.MaxRevisions < 0 {
		errs = append(errs, NewValidationError("graph", "graph", "max_revisions",
			fmt.Errorf("%w: must be non-negative", ErrInvalidValue)))
	}
	if g.MaxSteps < 1 {
		errs = append(errs, NewValidationError("graph", "graph", "max_steps",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue)))
	}
	if g.NodeTimeout <= 0 {
		errs = append(errs, NewValidationError("graph", "graph", "node_timeout",
			fmt.Errorf("%w: must be positive", ErrInvalidValue)))
	}
	if g.NodeRetryMax < 1 {
		errs = append(errs, NewValidationError("graph", "graph", "node_retry_max",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue)))
	}
	return errs
}

func (v *Validator) validateSummarizer() []error {
	var errs []error
	s := v.cfg.Summarizer
	if s.Threshold < 1 {
		errs = append(errs, NewValidationError("summarizer", "summarizer", "threshold",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue)))
	}
	if s.HierarchicalThreshold < s.Threshold {
		errs = append(errs, NewValidationError("summarizer", "summarizer", "hierarchical_threshold",
			fmt.Errorf("%w: must be >= threshold", ErrInvalidValue)))
	}
	if s.ChunkSize < 1 {
		errs = append(errs, NewValidationError("summarizer", "summarizer", "chunk_size",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue)))
	}
	if s.KeepRecentMessages < 0 {
		errs = append(errs, NewValidationError("summarizer", "summarizer", "keep_recent_messages",
			fmt.Errorf("%w: must be non-negative", ErrInvalidValue)))
	}
	return errs
}

func (v *Validator) validateBroker() []error {
	var errs []error
	b := v.cfg.Broker
	if b.ReplayBuffer < 1 {
		errs = append(errs, NewValidationError("broker", "broker", "replay_buffer",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue)))
	}
	if b.SubscriptionGrace <= 0 {
		errs = append(errs, NewValidationError("broker", "broker", "subscription_grace",
			fmt.Errorf("%w: must be positive", ErrInvalidValue)))
	}
	if v.cfg.Retention.EventTTL < b.SubscriptionGrace {
		errs = append(errs, NewValidationError("retention", "retention", "event_ttl",
			fmt.Errorf("%w: must be >= broker subscription_grace", ErrInvalidValue)))
	}
	return errs
}
