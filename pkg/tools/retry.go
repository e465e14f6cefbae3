package tools

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/graph"
	"github.com/maestro-ai/maestro/pkg/models"
)

// retryAdapter decorates an adapter with a per-call timeout and a retry
// loop over transient failures with doubling backoff.
type retryAdapter struct {
	inner    Adapter
	timeout  time.Duration
	attempts int
	backoff  time.Duration
}

// withRetry wraps an adapter with the registry-wide call policy.
func withRetry(inner Adapter, cfg *config.ToolsConfig) Adapter {
	attempts := cfg.AdapterRetryMax
	if attempts < 1 {
		attempts = 1
	}
	return &retryAdapter{
		inner:    inner,
		timeout:  cfg.AdapterTimeout,
		attempts: attempts,
		backoff:  cfg.AdapterRetryBackoff,
	}
}

func (a *retryAdapter) Kind() models.Tool { return a.inner.Kind() }

func (a *retryAdapter) Configured() bool { return a.inner.Configured() }

func (a *retryAdapter) Run(ctx context.Context, query string, opts Options) ([]models.Evidence, error) {
	var lastErr error
	for attempt := 1; attempt <= a.attempts; attempt++ {
		callCtx := ctx
		var cancel context.CancelFunc
		if a.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		}
		evidence, err := a.inner.Run(callCtx, query, opts)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			return evidence, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = &graph.TransientBackendError{Backend: string(a.inner.Kind()), Err: err}
		}
		lastErr = err
		if !graph.Retryable(err) || attempt == a.attempts {
			break
		}

		backoff := a.backoff << (attempt - 1)
		slog.Warn("Retrying tool adapter",
			"tool", a.inner.Kind(), "attempt", attempt, "backoff", backoff, "error", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
