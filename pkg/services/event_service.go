package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/maestro-ai/maestro/pkg/models"
)

// defaultCatchupLimit bounds catchup queries when the caller passes none.
const defaultCatchupLimit = 500

// StreamState classifies a request's stream for subscribers.
type StreamState string

const (
	// StreamActive means the request is pending or running; events may
	// still arrive.
	StreamActive StreamState = "active"
	// StreamFinished means the request reached a terminal state within
	// the replay grace window; the full event log is replayable.
	StreamFinished StreamState = "finished"
)

// EventService is the read side of the event log: catchup queries for
// late subscribers, single-event refetch for oversized notifications,
// and stream liveness checks against the jobs table.
type EventService struct {
	db    *sql.DB
	grace time.Duration
}

// NewEventService creates an event service. grace is how long after a
// request finishes its event log remains replayable.
func NewEventService(db *sql.DB, grace time.Duration) *EventService {
	return &EventService{db: db, grace: grace}
}

// GetEventsSince returns events for a request with id > afterID, in id
// order. afterID of zero replays from the beginning.
func (s *EventService) GetEventsSince(ctx context.Context, requestID string, afterID int64, limit int) ([]models.Event, error) {
	if requestID == "" {
		return nil, NewValidationError("request_id", "must not be empty")
	}
	if limit <= 0 {
		limit = defaultCatchupLimit
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, request_id, kind, payload, terminal, created_at
		 FROM events
		 WHERE request_id = $1 AND id > $2
		 ORDER BY id ASC
		 LIMIT %d`, limit),
		requestID, afterID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]models.Event, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// GetEvent fetches one event by id. Used to recover the full payload
// when a notification was too large for the NOTIFY channel and carried
// only an envelope.
func (s *EventService) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, request_id, kind, payload, terminal, created_at
		 FROM events WHERE id = $1`, id)

	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ev, nil
}

// StreamStatus reports whether a request's stream can be subscribed to.
// ErrNotFound when no such request was ever enqueued; ErrStreamExpired
// when the request finished longer than the grace window ago.
func (s *EventService) StreamStatus(ctx context.Context, requestID string) (StreamState, error) {
	if requestID == "" {
		return "", NewValidationError("request_id", "must not be empty")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT status, finished_at FROM jobs WHERE request_id = $1`, requestID)

	var status string
	var finishedAt sql.NullTime
	if err := row.Scan(&status, &finishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to query job status: %w", err)
	}

	switch models.JobStatus(status) {
	case models.JobStatusPending, models.JobStatusClaimed:
		return StreamActive, nil
	default:
		if finishedAt.Valid && time.Since(finishedAt.Time) > s.grace {
			return "", fmt.Errorf("%w: request %s finished at %s",
				ErrStreamExpired, requestID, finishedAt.Time.Format(time.RFC3339))
		}
		return StreamFinished, nil
	}
}

// DeleteExpired removes event rows for requests whose terminal event is
// older than the retention cutoff. Returns the number of rows removed.
func (s *EventService) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM events
		 WHERE request_id IN (
		     SELECT request_id FROM events
		     WHERE terminal = TRUE AND created_at < $1
		 )`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired events: %w", err)
	}
	return res.RowsAffected()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var ev models.Event
	var payload []byte
	if err := row.Scan(&ev.ID, &ev.RequestID, &ev.Kind, &payload, &ev.Terminal, &ev.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan event row: %w", err)
	}
	if err := json.Unmarshal(payload, &ev.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode event payload: %w", err)
	}
	return &ev, nil
}
