package config

// SummarizerConfig controls conversation history compression.
type SummarizerConfig struct {
	// Threshold is the minimum history length (messages) before any
	// summarization happens. Below it the summarize node is a no-op.
	Threshold int `yaml:"threshold"`

	// HierarchicalThreshold is the history length at which summarization
	// switches from one-shot to chunked map-reduce.
	HierarchicalThreshold int `yaml:"hierarchical_threshold"`

	// ChunkSize is the number of messages per chunk in hierarchical mode.
	ChunkSize int `yaml:"chunk_size"`

	// KeepRecentMessages is the uncompressed tail: the most recent N
	// messages are never folded into the summary.
	KeepRecentMessages int `yaml:"keep_recent_messages"`

	// CharCap truncates the stored summary to this many runes.
	CharCap int `yaml:"char_cap"`

	// PoolSize is the goroutine pool size for concurrent chunk
	// summarization in hierarchical mode.
	PoolSize int `yaml:"pool_size"`
}

// DefaultSummarizerConfig returns the built-in summarizer defaults.
func DefaultSummarizerConfig() *SummarizerConfig {
	return &SummarizerConfig{
		Threshold:             10,
		HierarchicalThreshold: 100,
		ChunkSize:             20,
		KeepRecentMessages:    4,
		CharCap:               4096,
		PoolSize:              4,
	}
}
