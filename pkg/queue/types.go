package queue

import "time"

// WorkerStatus is what a worker is doing right now.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth is one worker's slice of the pool health report.
type WorkerHealth struct {
	ID        int          `json:"id"`
	Status    WorkerStatus `json:"status"`
	RequestID string       `json:"request_id,omitempty"`
	StartedAt *time.Time   `json:"started_at,omitempty"`
}

// PoolHealth reports the pool and queue state for the health endpoint.
type PoolHealth struct {
	PodID      string         `json:"pod_id"`
	Workers    []WorkerHealth `json:"workers"`
	ActiveJobs int            `json:"active_jobs"`
	QueueDepth int            `json:"queue_depth"`
}
