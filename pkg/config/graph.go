package config

import "time"

// GraphConfig controls the graph runtime: per-node timeouts, retry
// behavior, and loop budgets.
type GraphConfig struct {
	// MaxRevisions caps the critic→generator revision loop. When the
	// budget is exhausted the current draft proceeds to translation.
	MaxRevisions int `yaml:"max_revisions"`

	// MaxSteps is a hard cap on node executions per run, guarding against
	// transition-table bugs producing infinite walks.
	MaxSteps int `yaml:"max_steps"`

	// NodeTimeout is the default per-node execution deadline.
	NodeTimeout time.Duration `yaml:"node_timeout"`

	// RetrievalTimeout overrides NodeTimeout for the retrieval node
	// (network-bound: search APIs, crawls).
	RetrievalTimeout time.Duration `yaml:"retrieval_timeout"`

	// GeneratorTimeout overrides NodeTimeout for the generator node
	// (long LLM completions).
	GeneratorTimeout time.Duration `yaml:"generator_timeout"`

	// NodeRetryMax is the total attempt cap per node for retryable
	// failures (first attempt + retries).
	NodeRetryMax int `yaml:"node_retry_max"`

	// NodeRetryBackoff is the initial backoff between node attempts,
	// doubling per retry.
	NodeRetryBackoff time.Duration `yaml:"node_retry_backoff"`

	// Tracing emits a span per graph event through the global
	// OpenTelemetry tracer provider. Off by default; without a
	// configured provider the spans are no-ops anyway.
	Tracing bool `yaml:"tracing"`
}

// DefaultGraphConfig returns the built-in graph runtime defaults.
func DefaultGraphConfig() *GraphConfig {
	return &GraphConfig{
		MaxRevisions:     2,
		MaxSteps:         24,
		NodeTimeout:      60 * time.Second,
		RetrievalTimeout: 120 * time.Second,
		GeneratorTimeout: 180 * time.Second,
		NodeRetryMax:     2,
		NodeRetryBackoff: 200 * time.Millisecond,
	}
}

// TimeoutFor returns the effective deadline for the named node.
func (c *GraphConfig) TimeoutFor(node string) time.Duration {
	switch node {
	case "retrieval":
		if c.RetrievalTimeout > 0 {
			return c.RetrievalTimeout
		}
	case "generator":
		if c.GeneratorTimeout > 0 {
			return c.GeneratorTimeout
		}
	}
	return c.NodeTimeout
}
