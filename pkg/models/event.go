package models

import "time"

// Event is one persisted stream event row. The monotonic ID doubles as
// the catchup cursor for subscribers replaying missed events.
type Event struct {
	ID        int64          `json:"id"`
	RequestID string         `json:"request_id"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload"`
	Terminal  bool           `json:"terminal"`
	CreatedAt time.Time      `json:"created_at"`
}

// CreateEventRequest contains fields for persisting an event.
type CreateEventRequest struct {
	RequestID string         `json:"request_id"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload"`
	Terminal  bool           `json:"terminal"`
}
