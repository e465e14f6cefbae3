package queue

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/models"
)

// Worker polls the queue, claims one job at a time, and runs it through
// the executor. Each worker is an independent claim loop; fairness comes
// from the store's FIFO claim, not from worker coordination.
type Worker struct {
	id       int
	podID    string
	store    *Store
	executor JobExecutor
	cfg      *config.QueueConfig
	pool     *WorkerPool

	mu        sync.Mutex
	requestID string
	startedAt time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorker creates a worker. It does not start polling until Start.
func NewWorker(id int, podID string, store *Store, executor JobExecutor,
	cfg *config.QueueConfig, pool *WorkerPool) *Worker {
	return &Worker{
		id:       id,
		podID:    podID,
		store:    store,
		executor: executor,
		cfg:      cfg,
		pool:     pool,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the polling loop.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
}

// Stop signals the loop to exit and waits for the in-flight job to
// finish. Safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health reports what the worker is doing.
func (w *Worker) Health() WorkerHealth {
	w.mu.Lock()
	defer w.mu.Unlock()

	health := WorkerHealth{ID: w.id, Status: WorkerStatusIdle}
	if w.requestID != "" {
		health.Status = WorkerStatusWorking
		health.RequestID = w.requestID
		started := w.startedAt
		health.StartedAt = &started
	}
	return health
}

func (w *Worker) run() {
	defer w.wg.Done()
	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker stopped")
			return
		default:
		}

		err := w.pollAndProcess()
		if err != nil {
			if errors.Is(err, ErrNoJobsAvailable) || errors.Is(err, ErrAtCapacity) {
				// Nothing to do: sleep with jitter so workers do not stampede
				// the jobs table in lockstep.
				select {
				case <-w.stopCh:
					log.Info("Worker stopped")
					return
				case <-time.After(w.pollInterval()):
				}
				continue
			}
			log.Error("Worker poll failed", "error", err)
			select {
			case <-w.stopCh:
				return
			case <-time.After(w.pollInterval()):
			}
		}
	}
}

// pollAndProcess claims and runs at most one job.
func (w *Worker) pollAndProcess() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	active, err := w.store.CountActive(ctx)
	cancel()
	if err != nil {
		return err
	}
	// The cap is global across pods; checked before claiming so an
	// at-capacity cluster leaves jobs pending instead of claiming past
	// the limit. Racy by a small margin, which is acceptable.
	if active >= w.cfg.MaxConcurrentJobs {
		return ErrAtCapacity
	}

	claimCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	job, err := w.store.Claim(claimCtx, w.podID)
	cancel()
	if err != nil {
		return err
	}

	w.process(job)
	return nil
}

// process runs one claimed job to its terminal state. Terminal writes
// use a background context so a spent job deadline cannot strand the
// row in claimed.
func (w *Worker) process(job *models.Job) {
	log := slog.With("worker_id", w.id, "request_id", job.RequestID, "session_id", job.SessionID)
	log.Info("Processing job", "queued_for", time.Since(job.EnqueuedAt).Round(time.Millisecond))

	w.mu.Lock()
	w.requestID = job.RequestID
	w.startedAt = time.Now()
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.requestID = ""
		w.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.JobTimeout)
	defer cancel()
	if w.pool != nil {
		w.pool.registerJob(job.RequestID, cancel)
		defer w.pool.unregisterJob(job.RequestID)
	}

	heartbeatDone := make(chan struct{})
	w.wg.Add(1)
	go w.heartbeat(ctx, job.RequestID, heartbeatDone)

	result := w.executor.Execute(ctx, job)
	close(heartbeatDone)

	finishCtx, finishCancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer finishCancel()

	switch result.Status {
	case models.JobStatusCompleted:
		if err := w.store.MarkCompleted(finishCtx, job.RequestID); err != nil {
			log.Error("Failed to mark job completed", "error", err)
		}
		log.Info("Job completed", "duration", time.Since(w.startedAt).Round(time.Millisecond))
	default:
		errMsg := "job failed"
		if result.Err != nil {
			errMsg = result.Err.Error()
		}
		if err := w.store.MarkFailed(finishCtx, job.RequestID, errMsg); err != nil {
			log.Error("Failed to mark job failed", "error", err)
		}
		log.Warn("Job failed", "error", errMsg)
	}
}

// heartbeat refreshes the claim's liveness timestamp until the job
// finishes or its context ends.
func (w *Worker) heartbeat(ctx context.Context, requestID string, done <-chan struct{}) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			hbCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := w.store.Heartbeat(hbCtx, requestID); err != nil {
				slog.Warn("Heartbeat failed", "request_id", requestID, "error", err)
			}
			cancel()
		}
	}
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.cfg.PollInterval
	jitter := w.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2*jitter))) - jitter
	interval := base + offset
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	return interval
}
