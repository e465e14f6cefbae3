package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-ai/maestro/pkg/models"
	"github.com/maestro-ai/maestro/test/util"
)

func insertTestEvent(t *testing.T, db *sql.DB, requestID, kind string, payload map[string]any, terminal bool, createdAt time.Time) int64 {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	var id int64
	err = db.QueryRow(
		`INSERT INTO events (request_id, kind, payload, terminal, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		requestID, kind, raw, terminal, createdAt,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func insertTestJob(t *testing.T, db *sql.DB, requestID string, status models.JobStatus, finishedAt *time.Time) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO jobs (request_id, session_id, query, status, finished_at)
		 VALUES ($1, $2, 'test query', $3, $4)`,
		requestID, uuid.NewString(), string(status), finishedAt)
	require.NoError(t, err)
}

func TestEventService_GetEventsSince(t *testing.T) {
	db := util.SetupTestDatabase(t)
	svc := NewEventService(db, 5*time.Minute)
	ctx := context.Background()
	requestID := uuid.NewString()
	now := time.Now()

	first := insertTestEvent(t, db, requestID, "node", map[string]any{"node": "router"}, false, now)
	insertTestEvent(t, db, uuid.NewString(), "node", map[string]any{"node": "other"}, false, now)
	second := insertTestEvent(t, db, requestID, "state_delta", map[string]any{"draft_answer": "x"}, false, now)
	third := insertTestEvent(t, db, requestID, "complete", map[string]any{"final_answer": "x"}, true, now)

	// Full replay from the beginning.
	events, err := svc.GetEventsSince(ctx, requestID, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []int64{first, second, third}, []int64{events[0].ID, events[1].ID, events[2].ID})
	assert.Equal(t, "router", events[0].Payload["node"])
	assert.True(t, events[2].Terminal)

	// Catchup after a known cursor.
	events, err = svc.GetEventsSince(ctx, requestID, first, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, second, events[0].ID)

	// Limit applies.
	events, err = svc.GetEventsSince(ctx, requestID, 0, 1)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	// Unknown request yields an empty slice, not an error.
	events, err = svc.GetEventsSince(ctx, uuid.NewString(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEventService_GetEvent(t *testing.T) {
	db := util.SetupTestDatabase(t)
	svc := NewEventService(db, 5*time.Minute)
	ctx := context.Background()
	requestID := uuid.NewString()

	id := insertTestEvent(t, db, requestID, "state_delta",
		map[string]any{"web_results": "a very large payload"}, false, time.Now())

	ev, err := svc.GetEvent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, requestID, ev.RequestID)
	assert.Equal(t, "a very large payload", ev.Payload["web_results"])

	_, err = svc.GetEvent(ctx, id+1000)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEventService_StreamStatus(t *testing.T) {
	db := util.SetupTestDatabase(t)
	grace := 5 * time.Minute
	svc := NewEventService(db, grace)
	ctx := context.Background()

	// Unknown request.
	_, err := svc.StreamStatus(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)

	// Pending and claimed jobs are active.
	pending := uuid.NewString()
	insertTestJob(t, db, pending, models.JobStatusPending, nil)
	state, err := svc.StreamStatus(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, StreamActive, state)

	claimed := uuid.NewString()
	insertTestJob(t, db, claimed, models.JobStatusClaimed, nil)
	state, err = svc.StreamStatus(ctx, claimed)
	require.NoError(t, err)
	assert.Equal(t, StreamActive, state)

	// Recently finished jobs are replayable.
	finished := uuid.NewString()
	recent := time.Now().Add(-time.Minute)
	insertTestJob(t, db, finished, models.JobStatusCompleted, &recent)
	state, err = svc.StreamStatus(ctx, finished)
	require.NoError(t, err)
	assert.Equal(t, StreamFinished, state)

	// Jobs past the grace window are expired.
	expired := uuid.NewString()
	old := time.Now().Add(-grace - time.Minute)
	insertTestJob(t, db, expired, models.JobStatusFailed, &old)
	_, err = svc.StreamStatus(ctx, expired)
	assert.ErrorIs(t, err, ErrStreamExpired)
}

func TestEventService_DeleteExpired(t *testing.T) {
	db := util.SetupTestDatabase(t)
	svc := NewEventService(db, 5*time.Minute)
	ctx := context.Background()
	now := time.Now()

	// Old finished request: all of its rows should go.
	oldReq := uuid.NewString()
	insertTestEvent(t, db, oldReq, "node", map[string]any{}, false, now.Add(-2*time.Hour))
	insertTestEvent(t, db, oldReq, "complete", map[string]any{}, true, now.Add(-2*time.Hour))

	// Recent finished request: terminal event is after the cutoff.
	recentReq := uuid.NewString()
	insertTestEvent(t, db, recentReq, "complete", map[string]any{}, true, now)

	// Unfinished request: no terminal row, never collected here.
	liveReq := uuid.NewString()
	insertTestEvent(t, db, liveReq, "node", map[string]any{}, false, now.Add(-2*time.Hour))

	deleted, err := svc.DeleteExpired(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining, err := svc.GetEventsSince(ctx, oldReq, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	remaining, err = svc.GetEventsSince(ctx, liveReq, 0, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
