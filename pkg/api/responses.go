package api

import "github.com/maestro-ai/maestro/pkg/models"

// QueueResponse is the body of a successful POST /api/queue.
type QueueResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	StreamURL string `json:"stream_url"`
}

// SessionListResponse is the body of GET /api/sessions.
type SessionListResponse struct {
	Success  bool                    `json:"success"`
	Sessions []models.SessionSummary `json:"sessions"`
}

// SessionHistoryResponse is the body of GET /api/sessions/{id}.
type SessionHistoryResponse struct {
	Success bool             `json:"success"`
	History []models.Message `json:"history"`
	Summary string           `json:"summary,omitempty"`
}

// DeleteResponse acknowledges a session delete.
type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// FeedbackResponse is the body of a successful POST /api/feedback.
type FeedbackResponse struct {
	Success    bool   `json:"success"`
	FeedbackID string `json:"feedback_id"`
}

// BackendHealth is one backend's entry in the health report.
type BackendHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string                   `json:"status"`
	Version  string                   `json:"version,omitempty"`
	Backends map[string]BackendHealth `json:"backends"`
}
