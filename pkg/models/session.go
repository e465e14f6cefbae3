package models

import "time"

// SessionSummary is one row in the sessions index: the truncated summary
// shown in listings, maintained in the same transaction as checkpoint
// writes so the index never drifts from the checkpoints.
type SessionSummary struct {
	SessionID   string    `json:"session_id"`
	Summary     string    `json:"summary"`
	LastUpdated time.Time `json:"last_updated"`
}

// Checkpoint is one persisted snapshot of a session's agent state.
// Sequence is monotonic per session; the latest sequence wins and stale
// writes are rejected.
type Checkpoint struct {
	SessionID string      `json:"session_id"`
	Sequence  int64       `json:"sequence"`
	State     *AgentState `json:"state"`
	CreatedAt time.Time   `json:"created_at"`
}

// SessionListParams contains filtering options for listing sessions.
type SessionListParams struct {
	Since *time.Time `json:"since,omitempty"`
	Limit int        `json:"limit,omitempty"`
}
