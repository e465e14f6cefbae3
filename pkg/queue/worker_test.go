package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/models"
	"github.com/maestro-ai/maestro/test/util"
)

// scriptedExecutor returns a fixed result and records the jobs it ran.
type scriptedExecutor struct {
	result ExecutionResult

	mu   sync.Mutex
	jobs []*models.Job
}

func (s *scriptedExecutor) Execute(_ context.Context, job *models.Job) *ExecutionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	result := s.result
	return &result
}

func (s *scriptedExecutor) executed() []*models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Job(nil), s.jobs...)
}

func fastQueueConfig() *config.QueueConfig {
	cfg := config.DefaultQueueConfig()
	cfg.WorkerCount = 2
	cfg.PollInterval = 10 * time.Millisecond
	cfg.PollIntervalJitter = 2 * time.Millisecond
	cfg.HeartbeatInterval = 10 * time.Millisecond
	cfg.JobTimeout = 5 * time.Second
	cfg.GracefulShutdownTimeout = 5 * time.Second
	return cfg
}

func waitForStatus(t *testing.T, store *Store, requestID, want string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		var status string
		err := store.db.QueryRowContext(context.Background(),
			`SELECT status FROM jobs WHERE request_id = $1`, requestID).Scan(&status)
		require.NoError(t, err)
		if status == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("job %s stuck in %q, want %q", requestID, status, want)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWorkerPool_ProcessesJobToCompletion(t *testing.T) {
	store := NewStore(util.SetupTestDatabase(t))
	executor := &scriptedExecutor{result: ExecutionResult{Status: models.JobStatusCompleted}}
	pool := NewWorkerPool(store, executor, nil, fastQueueConfig(), "pod-test")

	req := newJobRequest()
	_, err := store.Enqueue(context.Background(), req)
	require.NoError(t, err)

	pool.Start()
	defer pool.Stop()

	waitForStatus(t, store, req.RequestID, "completed")
	jobs := executor.executed()
	require.Len(t, jobs, 1)
	assert.Equal(t, req.RequestID, jobs[0].RequestID)
	assert.Equal(t, req.Query, jobs[0].Query)
}

func TestWorkerPool_MarksFailedJobs(t *testing.T) {
	db := util.SetupTestDatabase(t)
	store := NewStore(db)
	executor := &scriptedExecutor{result: ExecutionResult{
		Status: models.JobStatusFailed,
		Err:    errors.New("pipeline exploded"),
	}}
	pool := NewWorkerPool(store, executor, nil, fastQueueConfig(), "pod-test")

	req := newJobRequest()
	_, err := store.Enqueue(context.Background(), req)
	require.NoError(t, err)

	pool.Start()
	defer pool.Stop()

	waitForStatus(t, store, req.RequestID, "failed")
	var errMsg string
	require.NoError(t, db.QueryRowContext(context.Background(),
		`SELECT error_message FROM jobs WHERE request_id = $1`, req.RequestID).Scan(&errMsg))
	assert.Equal(t, "pipeline exploded", errMsg)
}

func TestWorkerPool_RespectsGlobalCapacity(t *testing.T) {
	store := NewStore(util.SetupTestDatabase(t))
	executor := &scriptedExecutor{result: ExecutionResult{Status: models.JobStatusCompleted}}
	cfg := fastQueueConfig()
	cfg.MaxConcurrentJobs = 1
	pool := NewWorkerPool(store, executor, nil, cfg, "pod-test")

	ctx := context.Background()
	// A job held claimed by another pod occupies the whole global budget.
	blocker := newJobRequest()
	_, err := store.Enqueue(ctx, blocker)
	require.NoError(t, err)
	_, err = store.Claim(ctx, "pod-other")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	waiting := newJobRequest()
	_, err = store.Enqueue(ctx, waiting)
	require.NoError(t, err)

	pool.Start()
	defer pool.Stop()

	// Several poll cycles pass without the pool claiming past the cap.
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, executor.executed())

	// Capacity frees up once the other pod's job finishes.
	require.NoError(t, store.MarkCompleted(ctx, blocker.RequestID))
	waitForStatus(t, store, waiting.RequestID, "completed")
}

func TestWorkerPool_Health(t *testing.T) {
	store := NewStore(util.SetupTestDatabase(t))
	executor := &scriptedExecutor{result: ExecutionResult{Status: models.JobStatusCompleted}}
	cfg := fastQueueConfig()
	pool := NewWorkerPool(store, executor, nil, cfg, "pod-test")

	health, err := pool.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pod-test", health.PodID)
	require.Len(t, health.Workers, cfg.WorkerCount)
	for _, worker := range health.Workers {
		assert.Equal(t, WorkerStatusIdle, worker.Status)
	}
	assert.Zero(t, health.ActiveJobs)
	assert.Zero(t, health.QueueDepth)
}
