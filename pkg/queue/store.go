// Package queue implements the Postgres-backed job queue and the worker
// pool that drains it: pending jobs are claimed exactly once with
// FOR UPDATE SKIP LOCKED, heartbeated while running, and marked terminal
// when the pipeline finishes.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/maestro-ai/maestro/pkg/models"
	"github.com/maestro-ai/maestro/pkg/services"
)

var (
	// ErrNoJobsAvailable signals an empty queue on claim.
	ErrNoJobsAvailable = errors.New("no pending jobs available")

	// ErrAtCapacity signals the global concurrent-job limit is reached.
	ErrAtCapacity = errors.New("maximum concurrent jobs reached")
)

// Store persists jobs and implements the claim protocol.
type Store struct {
	db *sql.DB
}

// NewStore creates a job store over the database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Enqueue inserts a pending job. A duplicate request_id is rejected
// with services.ErrAlreadyExists.
func (s *Store) Enqueue(ctx context.Context, req models.EnqueueJobRequest) (*models.Job, error) {
	if req.RequestID == "" {
		return nil, services.NewValidationError("request_id", "must not be empty")
	}
	if req.SessionID == "" {
		return nil, services.NewValidationError("session_id", "must not be empty")
	}
	if req.Query == "" {
		return nil, services.NewValidationError("query", "must not be empty")
	}

	job := &models.Job{
		RequestID:      req.RequestID,
		SessionID:      req.SessionID,
		Query:          req.Query,
		TargetLanguage: req.TargetLanguage,
		Model:          req.Model,
		Status:         models.JobStatusPending,
		EnqueuedAt:     time.Now(),
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (request_id, session_id, query, target_language, model, status, enqueued_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (request_id) DO NOTHING`,
		job.RequestID, job.SessionID, job.Query, job.TargetLanguage, job.Model,
		job.Status, job.EnqueuedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read enqueue result: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: request %s", services.ErrAlreadyExists, job.RequestID)
	}
	return job, nil
}

// Claim atomically takes the oldest pending job for this pod. The
// SELECT runs FOR UPDATE SKIP LOCKED so competing workers never claim
// the same row. A claimed job is never returned to pending.
func (s *Store) Claim(ctx context.Context, podID string) (*models.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT request_id, session_id, query, target_language, model, enqueued_at
		 FROM jobs
		 WHERE status = 'pending'
		 ORDER BY enqueued_at ASC
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED`)

	job := &models.Job{Status: models.JobStatusClaimed, PodID: podID}
	err = row.Scan(&job.RequestID, &job.SessionID, &job.Query,
		&job.TargetLanguage, &job.Model, &job.EnqueuedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoJobsAvailable
		}
		return nil, fmt.Errorf("failed to query pending job: %w", err)
	}

	now := time.Now()
	job.ClaimedAt = &now
	_, err = tx.ExecContext(ctx,
		`UPDATE jobs
		 SET status = 'claimed', pod_id = $2, claimed_at = $3, heartbeat_at = $3
		 WHERE request_id = $1`,
		job.RequestID, podID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return job, nil
}

// Heartbeat refreshes the claimed job's liveness timestamp for orphan
// detection.
func (s *Store) Heartbeat(ctx context.Context, requestID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET heartbeat_at = $2 WHERE request_id = $1 AND status = 'claimed'`,
		requestID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to heartbeat job: %w", err)
	}
	return nil
}

// MarkCompleted records a successful terminal state.
func (s *Store) MarkCompleted(ctx context.Context, requestID string) error {
	return s.finish(ctx, requestID, models.JobStatusCompleted, "")
}

// MarkFailed records a failed terminal state with the error message.
func (s *Store) MarkFailed(ctx context.Context, requestID, errMsg string) error {
	return s.finish(ctx, requestID, models.JobStatusFailed, errMsg)
}

func (s *Store) finish(ctx context.Context, requestID string, status models.JobStatus, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs
		 SET status = $2, finished_at = $3, error_message = $4
		 WHERE request_id = $1`,
		requestID, status, time.Now(), errMsg,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job %s: %w", status, err)
	}
	return nil
}

// CountActive returns the number of claimed jobs across all pods.
func (s *Store) CountActive(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM jobs WHERE status = 'claimed'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active jobs: %w", err)
	}
	return count, nil
}

// QueueDepth returns the number of pending jobs.
func (s *Store) QueueDepth(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM jobs WHERE status = 'pending'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending jobs: %w", err)
	}
	return count, nil
}

// RecoverOrphans fails claimed jobs whose heartbeat is older than the
// threshold (their pod died mid-run) and returns their request IDs so
// the caller can close the affected streams. Claimed jobs are never
// re-queued.
func (s *Store) RecoverOrphans(ctx context.Context, threshold time.Duration) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE jobs
		 SET status = 'failed', finished_at = $1,
		     error_message = 'worker stopped heartbeating; job abandoned'
		 WHERE status = 'claimed' AND heartbeat_at < $2
		 RETURNING request_id`,
		time.Now(), time.Now().Add(-threshold),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to recover orphaned jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orphaned []string
	for rows.Next() {
		var requestID string
		if err := rows.Scan(&requestID); err != nil {
			return nil, fmt.Errorf("failed to scan orphaned job: %w", err)
		}
		orphaned = append(orphaned, requestID)
	}
	return orphaned, rows.Err()
}

// DeleteFinishedBefore removes terminal job rows older than the cutoff.
// Used by the retention janitor. Returns the number of rows removed.
func (s *Store) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs
		 WHERE status IN ('completed', 'failed') AND finished_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete finished jobs: %w", err)
	}
	return res.RowsAffected()
}

// CleanupStartupOrphans fails jobs still claimed by this pod from a
// previous life. Called once at startup, before workers begin polling.
func (s *Store) CleanupStartupOrphans(ctx context.Context, podID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE jobs
		 SET status = 'failed', finished_at = $1,
		     error_message = 'pod restarted while job was running'
		 WHERE status = 'claimed' AND pod_id = $2
		 RETURNING request_id`,
		time.Now(), podID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to clean up startup orphans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orphaned []string
	for rows.Next() {
		var requestID string
		if err := rows.Scan(&requestID); err != nil {
			return nil, fmt.Errorf("failed to scan startup orphan: %w", err)
		}
		orphaned = append(orphaned, requestID)
	}
	return orphaned, rows.Err()
}
