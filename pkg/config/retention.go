package config

import "time"

// RetentionConfig controls data retention and cleanup behavior.
type RetentionConfig struct {
	// EventTTL is the maximum age of event rows past their request's
	// terminal event before the janitor deletes them. Must be at least
	// the broker's subscription grace or late subscribers lose replay.
	EventTTL time.Duration `yaml:"event_ttl"`

	// JobTTL is how long finished job rows are kept for inspection.
	JobTTL time.Duration `yaml:"job_ttl"`

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		EventTTL:        time.Hour,
		JobTTL:          7 * 24 * time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}
