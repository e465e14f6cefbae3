package graph

import (
	"errors"
	"fmt"
)

// ConfigError reports a required backend or setting that is absent, so
// the selected execution path cannot run at all. Not retryable.
type ConfigError struct {
	Component string
	Reason    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Reason)
}

// TransientBackendError wraps a failure that is worth retrying: network
// timeouts, rate limits, 5xx responses.
type TransientBackendError struct {
	Backend string
	Err     error
}

func (e *TransientBackendError) Error() string {
	return fmt.Sprintf("transient %s failure: %v", e.Backend, e.Err)
}

func (e *TransientBackendError) Unwrap() error { return e.Err }

// NodeError wraps a failure inside a node with its position in the
// pipeline. Retryable mirrors the underlying cause.
type NodeError struct {
	Node      Node
	Stage     string
	Retryable bool
	Err       error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s failed at %s: %v", e.Node, e.Stage, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// CriticRejection is returned when the critic rejects a draft outright
// (safety) rather than requesting revision. Terminal, not retryable.
type CriticRejection struct {
	Reasons []string
}

func (e *CriticRejection) Error() string {
	return fmt.Sprintf("draft rejected by critic: %v", e.Reasons)
}

// BudgetExceeded reports an exhausted loop or step budget.
type BudgetExceeded struct {
	Budget string
	Limit  int
}

func (e *BudgetExceeded) Error() string {
	return fmt.Sprintf("%s budget exceeded (limit %d)", e.Budget, e.Limit)
}

// StoreError wraps checkpoint persistence failures.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// BrokerError wraps queue and event broker failures.
type BrokerError struct {
	Op  string
	Err error
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("broker %s failed: %v", e.Op, e.Err)
}

func (e *BrokerError) Unwrap() error { return e.Err }

// Retryable reports whether err is worth another attempt: transient
// backend failures and node errors marked retryable.
func Retryable(err error) bool {
	var transient *TransientBackendError
	if errors.As(err, &transient) {
		return true
	}
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		return nodeErr.Retryable
	}
	return false
}
