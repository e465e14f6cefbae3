// Package services implements the persistence layer: sessions and their
// checkpointed agent state, feedback records, and stream event queries.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maestro-ai/maestro/pkg/models"
)

// summaryIndexLimit is how many runes of the summary are kept in the
// sessions index for listings. The full summary lives in the checkpoint.
const summaryIndexLimit = 200

// defaultListLimit bounds session listings when the caller passes none.
const defaultListLimit = 50

// SessionService owns sessions and their checkpoints. Checkpoints are
// sequenced monotonically per session; writes that lose the sequence
// race are rejected rather than silently reordered.
type SessionService struct {
	db *sql.DB
}

// NewSessionService creates a new session service.
func NewSessionService(db *sql.DB) *SessionService {
	return &SessionService{db: db}
}

// GetState returns the most recent checkpoint for a session, or
// ErrNotFound when the session has none.
func (s *SessionService) GetState(ctx context.Context, sessionID string) (*models.Checkpoint, error) {
	if sessionID == "" {
		return nil, NewValidationError("session_id", "must not be empty")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, sequence, state, created_at
		 FROM checkpoints
		 WHERE session_id = $1
		 ORDER BY sequence DESC
		 LIMIT 1`,
		sessionID,
	)

	var cp models.Checkpoint
	var stateJSON []byte
	if err := row.Scan(&cp.SessionID, &cp.Sequence, &stateJSON, &cp.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query checkpoint: %w", err)
	}

	cp.State = &models.AgentState{}
	if err := json.Unmarshal(stateJSON, cp.State); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint state: %w", err)
	}
	return &cp, nil
}

// SaveState writes a new checkpoint with sequence baseSequence+1 and
// refreshes the sessions index in the same transaction. baseSequence is
// the sequence the caller loaded (zero for a fresh session). If a
// checkpoint at or above the new sequence already exists the write is
// stale and rejected with ErrConcurrentModification.
func (s *SessionService) SaveState(ctx context.Context, sessionID string, state *models.AgentState, baseSequence int64) (*models.Checkpoint, error) {
	if sessionID == "" {
		return nil, NewValidationError("session_id", "must not be empty")
	}
	if state == nil {
		return nil, NewValidationError("state", "must not be nil")
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sequence := baseSequence + 1
	now := time.Now()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO checkpoints (session_id, sequence, state, created_at)
		 SELECT $1, $2, $3, $4
		 WHERE NOT EXISTS (
		     SELECT 1 FROM checkpoints WHERE session_id = $1 AND sequence >= $2
		 )`,
		sessionID, sequence, stateJSON, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read insert result: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: session %s already has sequence >= %d",
			ErrConcurrentModification, sessionID, sequence)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, summary, last_updated)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_id)
		 DO UPDATE SET summary = EXCLUDED.summary, last_updated = EXCLUDED.last_updated`,
		sessionID, truncateRunes(state.Summary, summaryIndexLimit), now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update sessions index: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit checkpoint: %w", err)
	}

	return &models.Checkpoint{
		SessionID: sessionID,
		Sequence:  sequence,
		State:     state,
		CreatedAt: now,
	}, nil
}

// ListSessions returns the sessions index ordered by last update,
// newest first.
func (s *SessionService) ListSessions(ctx context.Context, params models.SessionListParams) ([]models.SessionSummary, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT session_id, summary, last_updated FROM sessions`
	args := []any{}
	if params.Since != nil {
		query += ` WHERE last_updated >= $1`
		args = append(args, *params.Since)
	}
	query += fmt.Sprintf(` ORDER BY last_updated DESC LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]models.SessionSummary, 0)
	for rows.Next() {
		var sum models.SessionSummary
		if err := rows.Scan(&sum.SessionID, &sum.Summary, &sum.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, sum)
	}
	return sessions, rows.Err()
}

// GetHistory materializes the chat history and summary from the latest
// checkpoint. A session with no checkpoints (never seen, or deleted)
// has an empty history, not an error.
func (s *SessionService) GetHistory(ctx context.Context, sessionID string) ([]models.Message, string, error) {
	cp, err := s.GetState(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return []models.Message{}, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	history := cp.State.ChatHistory
	if history == nil {
		history = []models.Message{}
	}
	return history, cp.State.Summary, nil
}

// DeleteSession removes a session's checkpoints and index row. Feedback
// records are retained for analytics. Idempotent: deleting a session
// that does not exist succeeds.
func (s *SessionService) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return NewValidationError("session_id", "must not be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoints WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session index: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session delete: %w", err)
	}

	slog.Info("Session deleted", "session_id", sessionID)
	return nil
}

// DeleteAllSessions clears every session and checkpoint. Returns the
// number of sessions removed.
func (s *SessionService) DeleteAllSessions(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoints`); err != nil {
		return 0, fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read delete result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}

	slog.Info("All sessions deleted", "count", deleted)
	return deleted, nil
}

// truncateRunes shortens s to at most limit runes.
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
