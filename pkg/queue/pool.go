package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/events"
	"github.com/maestro-ai/maestro/pkg/models"
)

// WorkerPool owns this pod's workers and the background orphan scan.
// It tracks in-flight jobs so shutdown can cancel what graceful
// draining did not finish.
type WorkerPool struct {
	store     *Store
	executor  JobExecutor
	publisher *events.Publisher
	cfg       *config.QueueConfig
	podID     string

	workers []*Worker

	mu     sync.Mutex
	active map[string]context.CancelFunc

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorkerPool creates a pool; Start launches it.
func NewWorkerPool(store *Store, executor JobExecutor, publisher *events.Publisher,
	cfg *config.QueueConfig, podID string) *WorkerPool {
	pool := &WorkerPool{
		store:     store,
		executor:  executor,
		publisher: publisher,
		cfg:       cfg,
		podID:     podID,
		active:    map[string]context.CancelFunc{},
		stopCh:    make(chan struct{}),
	}
	for i := 0; i < cfg.WorkerCount; i++ {
		pool.workers = append(pool.workers, NewWorker(i, podID, store, executor, cfg, pool))
	}
	return pool
}

// Start launches the workers and the orphan detection loop.
func (p *WorkerPool) Start() {
	slog.Info("Starting worker pool",
		"pod_id", p.podID, "workers", len(p.workers),
		"max_concurrent_jobs", p.cfg.MaxConcurrentJobs)

	for _, worker := range p.workers {
		worker.Start()
	}

	p.wg.Add(1)
	go p.detectOrphans()
}

// Stop drains the pool: workers stop claiming, in-flight jobs get the
// graceful window to finish, then whatever remains is cancelled. The
// cancelled jobs' contexts end and their workers mark them failed.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })

	done := make(chan struct{})
	go func() {
		for _, worker := range p.workers {
			worker.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool drained")
	case <-time.After(p.cfg.GracefulShutdownTimeout):
		p.mu.Lock()
		remaining := len(p.active)
		for _, cancel := range p.active {
			cancel()
		}
		p.mu.Unlock()
		slog.Warn("Graceful shutdown timed out; cancelled in-flight jobs", "count", remaining)
		<-done
	}

	p.wg.Wait()
}

// Health reports the pool, its workers, and the queue counters.
func (p *WorkerPool) Health(ctx context.Context) (*PoolHealth, error) {
	health := &PoolHealth{PodID: p.podID}
	for _, worker := range p.workers {
		health.Workers = append(health.Workers, worker.Health())
	}

	active, err := p.store.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	depth, err := p.store.QueueDepth(ctx)
	if err != nil {
		return nil, err
	}
	health.ActiveJobs = active
	health.QueueDepth = depth
	return health, nil
}

func (p *WorkerPool) registerJob(requestID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active[requestID] = cancel
}

func (p *WorkerPool) unregisterJob(requestID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, requestID)
}

// detectOrphans periodically fails claimed jobs whose worker stopped
// heartbeating and closes their streams with a terminal error, so
// clients of a dead pod are not left waiting on a silent stream.
func (p *WorkerPool) detectOrphans() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.recoverOrphansOnce()
		}
	}
}

func (p *WorkerPool) recoverOrphansOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	orphaned, err := p.store.RecoverOrphans(ctx, p.cfg.OrphanThreshold)
	if err != nil {
		slog.Error("Orphan detection failed", "error", err)
		return
	}
	if len(orphaned) == 0 {
		return
	}

	slog.Warn("Recovered orphaned jobs", "count", len(orphaned), "request_ids", orphaned)
	p.closeOrphanStreams(ctx, orphaned)
}

// CleanupStartup fails jobs left claimed by a previous life of this pod
// and closes their streams. Called once at boot, before Start.
func (p *WorkerPool) CleanupStartup(ctx context.Context) error {
	orphaned, err := p.store.CleanupStartupOrphans(ctx, p.podID)
	if err != nil {
		return err
	}
	if len(orphaned) > 0 {
		slog.Warn("Cleaned up jobs from previous pod life",
			"pod_id", p.podID, "count", len(orphaned))
		p.closeOrphanStreams(ctx, orphaned)
	}
	return nil
}

func (p *WorkerPool) closeOrphanStreams(ctx context.Context, requestIDs []string) {
	if p.publisher == nil {
		return
	}
	for _, requestID := range requestIDs {
		_, err := p.publisher.Publish(ctx, models.CreateEventRequest{
			RequestID: requestID,
			Kind:      events.KindError,
			Payload: map[string]any{
				"error": "worker stopped heartbeating; job abandoned",
				"stage": "orphan_recovery",
			},
			Terminal: true,
		})
		if err != nil {
			slog.Error("Failed to publish orphan terminal event",
				"request_id", requestID, "error", err)
		}
	}
}
