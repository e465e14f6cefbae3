package events

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/models"
	"github.com/maestro-ai/maestro/pkg/services"
	"github.com/maestro-ai/maestro/test/util"
)

// setupBroker wires a publisher, broker, and live NOTIFY listener
// against a migrated test schema.
func setupBroker(t *testing.T) (*Publisher, *SubscriptionBroker, func(requestID string)) {
	t.Helper()
	db := util.SetupTestDatabase(t)

	publisher := NewPublisher(db, nil)
	eventService := services.NewEventService(db, 5*time.Minute)
	broker := NewSubscriptionBroker(eventService, nil)

	// LISTEN rides a dedicated connection on the base connection string;
	// NOTIFY channels are database-global so the schema does not matter.
	listener := NewNotifyListener(util.GetBaseConnectionString(t), broker)
	require.NoError(t, listener.Start(context.Background()))
	t.Cleanup(func() { listener.Stop(context.Background()) })
	broker.SetListener(listener)

	// Streams are only subscribable once a job row exists.
	insertJob := func(requestID string) {
		_, err := db.Exec(
			`INSERT INTO jobs (request_id, session_id, query, status) VALUES ($1, $2, 'q', 'claimed')`,
			requestID, uuid.NewString())
		require.NoError(t, err)
	}
	return publisher, broker, insertJob
}

func waitForEvent(t *testing.T, sub *Subscription) models.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed before expected event")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return models.Event{}
	}
}

func TestBroker_LiveDelivery(t *testing.T) {
	publisher, broker, insertJob := setupBroker(t)
	ctx := context.Background()
	requestID := uuid.NewString()
	insertJob(requestID)

	sub, err := broker.Subscribe(ctx, requestID, 0)
	require.NoError(t, err)
	defer sub.Close()

	_, err = publisher.Publish(ctx, models.CreateEventRequest{
		RequestID: requestID,
		Kind:      KindNode,
		Payload:   map[string]any{"node": "router", "status": "started"},
	})
	require.NoError(t, err)

	ev := waitForEvent(t, sub)
	assert.Equal(t, KindNode, ev.Kind)
	assert.Equal(t, "router", ev.Payload["node"])
	assert.False(t, ev.Terminal)
}

func TestBroker_CatchupThenLive(t *testing.T) {
	publisher, broker, insertJob := setupBroker(t)
	ctx := context.Background()
	requestID := uuid.NewString()
	insertJob(requestID)

	// Publish before anyone subscribes.
	first, err := publisher.Publish(ctx, models.CreateEventRequest{
		RequestID: requestID, Kind: KindNode, Payload: map[string]any{"node": "router"},
	})
	require.NoError(t, err)
	_, err = publisher.Publish(ctx, models.CreateEventRequest{
		RequestID: requestID, Kind: KindStateDelta, Payload: map[string]any{"intent": "lookup"},
	})
	require.NoError(t, err)

	sub, err := broker.Subscribe(ctx, requestID, 0)
	require.NoError(t, err)
	defer sub.Close()

	// Both missed events replay in order.
	assert.Equal(t, first.ID, waitForEvent(t, sub).ID)
	assert.Equal(t, KindStateDelta, waitForEvent(t, sub).Kind)

	// Live events continue after the replay.
	_, err = publisher.Publish(ctx, models.CreateEventRequest{
		RequestID: requestID, Kind: KindNode, Payload: map[string]any{"node": "generator"},
	})
	require.NoError(t, err)
	assert.Equal(t, "generator", waitForEvent(t, sub).Payload["node"])
}

func TestBroker_ResumeFromCursor(t *testing.T) {
	publisher, broker, insertJob := setupBroker(t)
	ctx := context.Background()
	requestID := uuid.NewString()
	insertJob(requestID)

	first, err := publisher.Publish(ctx, models.CreateEventRequest{
		RequestID: requestID, Kind: KindNode, Payload: map[string]any{"node": "router"},
	})
	require.NoError(t, err)
	second, err := publisher.Publish(ctx, models.CreateEventRequest{
		RequestID: requestID, Kind: KindNode, Payload: map[string]any{"node": "planner"},
	})
	require.NoError(t, err)

	// Resuming after the first event replays only the second.
	sub, err := broker.Subscribe(ctx, requestID, first.ID)
	require.NoError(t, err)
	defer sub.Close()
	assert.Equal(t, second.ID, waitForEvent(t, sub).ID)
}

func TestBroker_TerminalClosesStream(t *testing.T) {
	publisher, broker, insertJob := setupBroker(t)
	ctx := context.Background()
	requestID := uuid.NewString()
	insertJob(requestID)

	sub, err := broker.Subscribe(ctx, requestID, 0)
	require.NoError(t, err)

	_, err = publisher.Publish(ctx, models.CreateEventRequest{
		RequestID: requestID, Kind: KindComplete, Terminal: true,
		Payload: map[string]any{"final_answer": "done"},
	})
	require.NoError(t, err)

	ev := waitForEvent(t, sub)
	assert.True(t, ev.Terminal)

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok, "channel should be closed after terminal event")
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after terminal event")
	}
}

func TestBroker_TruncatedNotificationRefetch(t *testing.T) {
	publisher, broker, insertJob := setupBroker(t)
	ctx := context.Background()
	requestID := uuid.NewString()
	insertJob(requestID)

	sub, err := broker.Subscribe(ctx, requestID, 0)
	require.NoError(t, err)
	defer sub.Close()

	// Over the NOTIFY byte limit: the wire carries an envelope and the
	// broker refetches the row.
	big := strings.Repeat("x", notifyByteLimit+1000)
	_, err = publisher.Publish(ctx, models.CreateEventRequest{
		RequestID: requestID, Kind: KindStateDelta,
		Payload: map[string]any{"web_results": big},
	})
	require.NoError(t, err)

	ev := waitForEvent(t, sub)
	assert.Equal(t, big, ev.Payload["web_results"])
}

func TestBroker_SubscribeUnknownRequest(t *testing.T) {
	_, broker, _ := setupBroker(t)

	_, err := broker.Subscribe(context.Background(), uuid.NewString(), 0)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

// discardDispatcher drops notifications; used where only the channel
// bookkeeping is under test.
type discardDispatcher struct{}

func (discardDispatcher) Broadcast(string, []byte) {}

func TestNotifyListener_ChannelLifecycle(t *testing.T) {
	ctx := context.Background()
	listener := NewNotifyListener(util.GetBaseConnectionString(t), discardDispatcher{})

	// Before Start, LISTEN is an error but UNLISTEN is a no-op.
	channel := RequestChannel(uuid.NewString())
	assert.Error(t, listener.Subscribe(ctx, channel))
	assert.NoError(t, listener.Unsubscribe(ctx, channel))

	require.NoError(t, listener.Start(ctx))
	t.Cleanup(func() { listener.Stop(ctx) })

	// LISTEN and re-LISTEN of the same request channel both succeed.
	require.NoError(t, listener.Subscribe(ctx, channel))
	require.NoError(t, listener.Subscribe(ctx, channel))

	// UNLISTEN, repeated, is idempotent.
	require.NoError(t, listener.Unsubscribe(ctx, channel))
	require.NoError(t, listener.Unsubscribe(ctx, channel))

	// Stop twice is safe.
	listener.Stop(ctx)
	listener.Stop(ctx)
}

func TestPublisher_RetryCountFromConfig(t *testing.T) {
	// A closed pool makes every persist attempt fail immediately, so the
	// error reports exactly the configured attempt count.
	db, err := sql.Open("pgx", util.GetBaseConnectionString(t))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	cfg := config.DefaultBrokerConfig()
	cfg.PublishRetryMax = 2
	cfg.PublishRetryBackoff = time.Millisecond
	publisher := NewPublisher(db, cfg)

	_, err = publisher.Publish(context.Background(), models.CreateEventRequest{
		RequestID: uuid.NewString(),
		Kind:      KindNode,
		Payload:   map[string]any{"node": "router"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestBroker_CatchupHonorsReplayBuffer(t *testing.T) {
	db := util.SetupTestDatabase(t)
	ctx := context.Background()

	publisher := NewPublisher(db, nil)
	eventService := services.NewEventService(db, 5*time.Minute)
	cfg := config.DefaultBrokerConfig()
	cfg.ReplayBuffer = 1
	broker := NewSubscriptionBroker(eventService, cfg)

	requestID := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO jobs (request_id, session_id, query, status) VALUES ($1, $2, 'q', 'claimed')`,
		requestID, uuid.NewString())
	require.NoError(t, err)

	var published []int64
	for _, node := range []string{"router", "planner", "generator"} {
		ev, err := publisher.Publish(ctx, models.CreateEventRequest{
			RequestID: requestID, Kind: KindNode, Payload: map[string]any{"node": node},
		})
		require.NoError(t, err)
		published = append(published, ev.ID)
	}

	// A one-row batch still drains the whole backlog, in order.
	sub, err := broker.Subscribe(ctx, requestID, 0)
	require.NoError(t, err)
	defer sub.Close()
	for _, id := range published {
		assert.Equal(t, id, waitForEvent(t, sub).ID)
	}
}

func TestPublisher_TerminalFlagMismatch(t *testing.T) {
	publisher := NewPublisher(nil, nil)
	ctx := context.Background()

	_, err := publisher.Publish(ctx, models.CreateEventRequest{
		RequestID: "r", Kind: KindComplete, Terminal: false,
	})
	assert.Error(t, err)

	_, err = publisher.Publish(ctx, models.CreateEventRequest{
		RequestID: "r", Kind: KindNode, Terminal: true,
	})
	assert.Error(t, err)
}
