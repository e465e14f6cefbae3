// Package cleanup enforces data retention: event rows past their
// replay window and finished job rows past their inspection window are
// deleted on a fixed interval. All operations are idempotent and safe
// to run from multiple pods.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/queue"
	"github.com/maestro-ai/maestro/pkg/services"
)

// Service is the background retention janitor.
type Service struct {
	config *config.RetentionConfig
	events *services.EventService
	jobs   *queue.Store

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a retention janitor over the event and job stores.
func NewService(cfg *config.RetentionConfig, events *services.EventService, jobs *queue.Store) *Service {
	return &Service{
		config: cfg,
		events: events,
		jobs:   jobs,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"event_ttl", s.config.EventTTL,
		"job_ttl", s.config.JobTTL,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.deleteExpiredEvents(ctx)
	s.deleteFinishedJobs(ctx)
}

func (s *Service) deleteExpiredEvents(ctx context.Context) {
	count, err := s.events.DeleteExpired(ctx, time.Now().Add(-s.config.EventTTL))
	if err != nil {
		slog.Error("Retention: event cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted expired events", "count", count)
	}
}

func (s *Service) deleteFinishedJobs(ctx context.Context) {
	count, err := s.jobs.DeleteFinishedBefore(ctx, time.Now().Add(-s.config.JobTTL))
	if err != nil {
		slog.Error("Retention: job cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted finished jobs", "count", count)
	}
}
