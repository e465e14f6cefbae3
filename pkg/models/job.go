package models

import "time"

// JobStatus is the lifecycle state of a queued job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusClaimed   JobStatus = "claimed"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job is one queued question-answering request. Jobs are claimed exactly
// once; a claimed job is never re-queued (crash recovery marks it failed).
type Job struct {
	RequestID      string     `json:"request_id"`
	SessionID      string     `json:"session_id"`
	Query          string     `json:"query"`
	TargetLanguage string     `json:"target_language,omitempty"`
	Model          string     `json:"model,omitempty"`
	Status         JobStatus  `json:"status"`
	EnqueuedAt     time.Time  `json:"enqueued_at"`
	ClaimedAt      *time.Time `json:"claimed_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	PodID          string     `json:"pod_id,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

// EnqueueJobRequest contains fields for enqueuing a new job.
type EnqueueJobRequest struct {
	RequestID      string `json:"request_id"`
	SessionID      string `json:"session_id"`
	Query          string `json:"query"`
	TargetLanguage string `json:"target_language,omitempty"`
	Model          string `json:"model,omitempty"`
}
