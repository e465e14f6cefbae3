package config

import "time"

// BrokerConfig controls event publishing, replay, and subscription
// lifetime.
type BrokerConfig struct {
	// PublishRetryMax is the total attempt cap for persisting an event
	// before the publish surfaces a broker error.
	PublishRetryMax int `yaml:"publish_retry_max"`

	// PublishRetryBackoff is the pause between publish attempts.
	PublishRetryBackoff time.Duration `yaml:"publish_retry_backoff"`

	// ReplayBuffer is the maximum rows fetched per catchup batch when a
	// subscriber attaches to an in-flight or recently finished request.
	ReplayBuffer int `yaml:"replay_buffer"`

	// SubscriptionGrace is how long after a request's terminal event a
	// late subscriber can still attach and replay the stream. Past the
	// grace the request id is treated as unknown.
	SubscriptionGrace time.Duration `yaml:"subscription_grace"`

	// KeepaliveInterval is the SSE comment heartbeat period, keeping
	// intermediary proxies from idling out the connection.
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
}

// DefaultBrokerConfig returns the built-in broker defaults.
func DefaultBrokerConfig() *BrokerConfig {
	return &BrokerConfig{
		PublishRetryMax:     3,
		PublishRetryBackoff: 50 * time.Millisecond,
		ReplayBuffer:        64,
		SubscriptionGrace:   300 * time.Second,
		KeepaliveInterval:   15 * time.Second,
	}
}
