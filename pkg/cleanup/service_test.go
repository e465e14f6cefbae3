package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/events"
	"github.com/maestro-ai/maestro/pkg/models"
	"github.com/maestro-ai/maestro/pkg/queue"
	"github.com/maestro-ai/maestro/pkg/services"
	"github.com/maestro-ai/maestro/test/util"
)

func testRetentionConfig() *config.RetentionConfig {
	return &config.RetentionConfig{
		EventTTL:        time.Hour,
		JobTTL:          24 * time.Hour,
		CleanupInterval: time.Hour,
	}
}

func TestService_DeletesExpiredEvents(t *testing.T) {
	db := util.SetupTestDatabase(t)
	ctx := context.Background()
	eventService := services.NewEventService(db, time.Hour)
	store := queue.NewStore(db)
	publisher := events.NewPublisher(db, nil)

	oldRequest := uuid.NewString()
	recentRequest := uuid.NewString()
	for _, requestID := range []string{oldRequest, recentRequest} {
		_, err := publisher.Publish(ctx, models.CreateEventRequest{
			RequestID: requestID,
			Kind:      events.KindComplete,
			Payload:   map[string]any{"final_answer": "done"},
			Terminal:  true,
		})
		require.NoError(t, err)
	}
	// Backdate the first request past the TTL.
	_, err := db.ExecContext(ctx,
		`UPDATE events SET created_at = $1 WHERE request_id = $2`,
		time.Now().Add(-2*time.Hour), oldRequest)
	require.NoError(t, err)

	svc := NewService(testRetentionConfig(), eventService, store)
	svc.runAll(ctx)

	expired, err := eventService.GetEventsSince(ctx, oldRequest, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, expired)

	kept, err := eventService.GetEventsSince(ctx, recentRequest, 0, 10)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestService_DeletesOldFinishedJobs(t *testing.T) {
	db := util.SetupTestDatabase(t)
	ctx := context.Background()
	eventService := services.NewEventService(db, time.Hour)
	store := queue.NewStore(db)

	enqueue := func() string {
		requestID := uuid.NewString()
		_, err := store.Enqueue(ctx, models.EnqueueJobRequest{
			RequestID: requestID,
			SessionID: uuid.NewString(),
			Query:     "retention check",
		})
		require.NoError(t, err)
		return requestID
	}

	enqueue()
	enqueue()
	stillPending := enqueue()

	first, err := store.Claim(ctx, "pod-test")
	require.NoError(t, err)
	require.NoError(t, store.MarkCompleted(ctx, first.RequestID))
	second, err := store.Claim(ctx, "pod-test")
	require.NoError(t, err)
	require.NoError(t, store.MarkCompleted(ctx, second.RequestID))

	oldDone, recentDone := first.RequestID, second.RequestID
	_, err = db.ExecContext(ctx,
		`UPDATE jobs SET finished_at = $1 WHERE request_id = $2`,
		time.Now().Add(-48*time.Hour), oldDone)
	require.NoError(t, err)

	svc := NewService(testRetentionConfig(), eventService, store)
	svc.runAll(ctx)

	var count int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT count(*) FROM jobs WHERE request_id = $1`, oldDone).Scan(&count))
	assert.Zero(t, count)

	for _, requestID := range []string{recentDone, stillPending} {
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT count(*) FROM jobs WHERE request_id = $1`, requestID).Scan(&count))
		assert.Equal(t, 1, count, requestID)
	}
}

func TestService_StartStop(t *testing.T) {
	db := util.SetupTestDatabase(t)
	cfg := testRetentionConfig()
	cfg.CleanupInterval = 10 * time.Millisecond

	svc := NewService(cfg, services.NewEventService(db, time.Hour), queue.NewStore(db))
	svc.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	svc.Stop()
}
