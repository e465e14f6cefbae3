package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/models"
)

// notifyByteLimit is the largest NOTIFY payload we send. PostgreSQL
// rejects payloads near 8000 bytes; anything bigger goes out as a
// truncation envelope and subscribers refetch the row.
const notifyByteLimit = 7900

// Publisher persists stream events and broadcasts them via NOTIFY.
// Persistence and broadcast happen in a single transaction (pg_notify
// is transactional and held until COMMIT), so a delivered notification
// always has a matching row.
//
// Events drive live streams, so a failed publish is retried per the
// broker config rather than surfaced straight to the worker.
type Publisher struct {
	db       *sql.DB
	attempts int
	backoff  time.Duration
}

// NewPublisher creates a new event publisher. The db parameter should
// be the *sql.DB from database.Client.DB(); a nil cfg uses the broker
// defaults.
func NewPublisher(db *sql.DB, cfg *config.BrokerConfig) *Publisher {
	if cfg == nil {
		cfg = config.DefaultBrokerConfig()
	}
	return &Publisher{
		db:       db,
		attempts: cfg.PublishRetryMax,
		backoff:  cfg.PublishRetryBackoff,
	}
}

// Publish persists an event and notifies the request's channel,
// retrying transient failures. Returns the persisted event with its
// assigned id.
func (p *Publisher) Publish(ctx context.Context, req models.CreateEventRequest) (*models.Event, error) {
	if req.RequestID == "" {
		return nil, fmt.Errorf("request_id must not be empty")
	}
	if TerminalKind(req.Kind) != req.Terminal {
		return nil, fmt.Errorf("terminal flag mismatch for kind %q", req.Kind)
	}
	if req.Payload == nil {
		req.Payload = map[string]any{}
	}

	var event *models.Event
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		event, err = p.persistAndNotify(ctx, req)
		if err == nil {
			return event, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		slog.Warn("Event publish failed, retrying",
			"request_id", req.RequestID, "kind", req.Kind,
			"attempt", attempt, "error", err)

		select {
		case <-time.After(p.backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("failed to publish event after %d attempts: %w", p.attempts, err)
}

// persistAndNotify inserts the event row and broadcasts via NOTIFY in a
// single transaction.
func (p *Publisher) persistAndNotify(ctx context.Context, req models.CreateEventRequest) (*models.Event, error) {
	payloadJSON, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	event := &models.Event{
		RequestID: req.RequestID,
		Kind:      req.Kind,
		Payload:   req.Payload,
		Terminal:  req.Terminal,
		CreatedAt: time.Now(),
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO events (request_id, kind, payload, terminal, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		req.RequestID, req.Kind, payloadJSON, req.Terminal, event.CreatedAt,
	).Scan(&event.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to persist event: %w", err)
	}

	notifyPayload, err := buildNotifyPayload(event)
	if err != nil {
		return nil, err
	}

	// pg_notify within the same transaction — held until COMMIT.
	_, err = tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", RequestChannel(req.RequestID), notifyPayload)
	if err != nil {
		return nil, fmt.Errorf("pg_notify failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit event transaction: %w", err)
	}
	return event, nil
}

// notifyEnvelope is the wire form of a notification. Oversized payloads
// are dropped and Truncated is set; the broker refetches by ID.
type notifyEnvelope struct {
	ID        int64          `json:"id"`
	RequestID string         `json:"request_id"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
	Terminal  bool           `json:"terminal"`
	Truncated bool           `json:"truncated,omitempty"`
}

// buildNotifyPayload marshals the full event for NOTIFY, falling back
// to a truncation envelope when it exceeds the payload limit.
func buildNotifyPayload(event *models.Event) (string, error) {
	full, err := json.Marshal(notifyEnvelope{
		ID:        event.ID,
		RequestID: event.RequestID,
		Kind:      event.Kind,
		Payload:   event.Payload,
		Terminal:  event.Terminal,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal notify payload: %w", err)
	}
	if len(full) <= notifyByteLimit {
		return string(full), nil
	}

	truncated, err := json.Marshal(notifyEnvelope{
		ID:        event.ID,
		RequestID: event.RequestID,
		Kind:      event.Kind,
		Terminal:  event.Terminal,
		Truncated: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal truncated notify payload: %w", err)
	}
	return string(truncated), nil
}
