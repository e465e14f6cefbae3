package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// StoreHealth reports connectivity and pool pressure for the job,
// session, and event store. The /health endpoint surfaces it as the
// store backend.
type StoreHealth struct {
	ResponseTime time.Duration
	InUse        int
	Idle         int
	MaxOpen      int
	Waits        int64
}

// Summary renders the pool figures for a health report message.
func (h *StoreHealth) Summary() string {
	return fmt.Sprintf("ping %dms, pool %d/%d in use, %d idle",
		h.ResponseTime.Milliseconds(), h.InUse, h.MaxOpen, h.Idle)
}

// CheckStore pings the store and collects pool statistics. A failed
// ping means jobs, checkpoints, and events are all unreachable, so the
// caller should report unhealthy.
func CheckStore(ctx context.Context, db *sql.DB) (*StoreHealth, error) {
	start := time.Now()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("store ping failed: %w", err)
	}

	stats := db.Stats()
	return &StoreHealth{
		ResponseTime: time.Since(start),
		InUse:        stats.InUse,
		Idle:         stats.Idle,
		MaxOpen:      stats.MaxOpenConnections,
		Waits:        stats.WaitCount,
	}, nil
}
