package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/graph"
	"github.com/maestro-ai/maestro/pkg/models"
)

// flakyAdapter fails with scripted errors before succeeding.
type flakyAdapter struct {
	failures []error
	calls    int
}

func (f *flakyAdapter) Kind() models.Tool { return models.ToolWebSearch }

func (f *flakyAdapter) Configured() bool { return true }

func (f *flakyAdapter) Run(context.Context, string, Options) ([]models.Evidence, error) {
	f.calls++
	if f.calls <= len(f.failures) {
		return nil, f.failures[f.calls-1]
	}
	return []models.Evidence{{Text: "ok", Source: "fake"}}, nil
}

func retryConfig() *config.ToolsConfig {
	return &config.ToolsConfig{
		AdapterTimeout:      time.Second,
		AdapterRetryMax:     2,
		AdapterRetryBackoff: time.Millisecond,
	}
}

func TestRetryAdapter_TransientRetried(t *testing.T) {
	inner := &flakyAdapter{failures: []error{
		&graph.TransientBackendError{Backend: "web_search", Err: errors.New("503")},
	}}
	wrapped := withRetry(inner, retryConfig())

	evidence, err := wrapped.Run(context.Background(), "q", Options{})
	require.NoError(t, err)
	require.Len(t, evidence, 1)
	assert.Equal(t, 2, inner.calls)
}

func TestRetryAdapter_PermanentNotRetried(t *testing.T) {
	permanent := errors.New("bad request")
	inner := &flakyAdapter{failures: []error{permanent, permanent}}
	wrapped := withRetry(inner, retryConfig())

	_, err := wrapped.Run(context.Background(), "q", Options{})
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryAdapter_AttemptsExhausted(t *testing.T) {
	transient := &graph.TransientBackendError{Backend: "web_search", Err: errors.New("503")}
	inner := &flakyAdapter{failures: []error{transient, transient, transient}}
	wrapped := withRetry(inner, retryConfig())

	_, err := wrapped.Run(context.Background(), "q", Options{})
	require.Error(t, err)
	assert.True(t, graph.Retryable(err))
	assert.Equal(t, 2, inner.calls)
}

func TestRetryAdapter_CanceledContextStops(t *testing.T) {
	transient := &graph.TransientBackendError{Backend: "web_search", Err: errors.New("503")}
	inner := &flakyAdapter{failures: []error{transient, transient}}
	wrapped := withRetry(inner, retryConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := wrapped.Run(ctx, "q", Options{})
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestRegistry(t *testing.T) {
	inner := &flakyAdapter{}
	reg := NewRegistryFromAdapters(inner, NewCalculator())

	adapter, ok := reg.Get(models.ToolWebSearch)
	require.True(t, ok)
	assert.Equal(t, models.ToolWebSearch, adapter.Kind())

	_, ok = reg.Get(models.ToolDirectAnswer)
	assert.False(t, ok)

	assert.True(t, reg.Configured(models.ToolCalculator))
	// Tools with no backend adapter never block routing.
	assert.True(t, reg.Configured(models.ToolTranslate))
}
