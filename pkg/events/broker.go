package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/models"
	"github.com/maestro-ai/maestro/pkg/services"
)

// listenTimeout bounds how long a LISTEN command may block when
// subscribing to a new PG channel. Without this, a stalled connection
// would block the subscribing goroutine indefinitely.
const listenTimeout = 10 * time.Second

// subscriptionBuffer is the per-subscriber channel depth. A subscriber
// that falls this far behind is dropped rather than allowed to stall
// the broadcast path.
const subscriptionBuffer = 256

// refetchTimeout bounds the DB refetch of a truncated notification.
const refetchTimeout = 5 * time.Second

// Subscription is one live consumer of a request's event stream. Events
// arrive in id order with no duplicates; the channel is closed after a
// terminal event, on Close, or when the subscriber falls too far behind.
type Subscription struct {
	id        string
	requestID string
	ch        chan models.Event
	broker    *SubscriptionBroker

	mu            sync.Mutex
	lastDelivered int64
	closed        bool
}

// Events returns the ordered event stream. Closed when the stream ends.
func (s *Subscription) Events() <-chan models.Event {
	return s.ch
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.broker.remove(s)
}

// deliver hands one event to the subscriber, dropping duplicates and
// anything already replayed by catchup. Returns false if the
// subscription is finished.
func (s *Subscription) deliver(event models.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliverLocked(event)
}

func (s *Subscription) deliverLocked(event models.Event) bool {
	if s.closed {
		return false
	}
	if event.ID <= s.lastDelivered {
		return true
	}

	select {
	case s.ch <- event:
		s.lastDelivered = event.ID
	default:
		// Subscriber stalled — drop it rather than block broadcasts.
		slog.Warn("Dropping lagging subscriber",
			"subscription_id", s.id, "request_id", s.requestID)
		s.closeLocked()
		return false
	}

	if event.Terminal {
		s.closeLocked()
		return false
	}
	return true
}

func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	go s.broker.detach(s)
}

// SubscriptionBroker fans NOTIFY payloads out to local subscribers and
// replays missed events from the database. Each Go process (pod) has
// one broker instance; cross-pod delivery rides on LISTEN/NOTIFY.
type SubscriptionBroker struct {
	events *services.EventService

	// catchupLimit bounds rows per catchup query. The broker loops until
	// the backlog is drained, so it only bounds memory per round trip.
	catchupLimit int

	// NotifyListener for dynamic LISTEN/UNLISTEN (set after construction).
	listener   *NotifyListener
	listenerMu sync.RWMutex

	// Channel subscriptions: channel → subscription id → subscription.
	mu   sync.RWMutex
	subs map[string]map[string]*Subscription
}

// NewSubscriptionBroker creates a broker backed by the event service
// for catchup and truncation refetch. A nil cfg uses the broker
// defaults.
func NewSubscriptionBroker(events *services.EventService, cfg *config.BrokerConfig) *SubscriptionBroker {
	if cfg == nil {
		cfg = config.DefaultBrokerConfig()
	}
	return &SubscriptionBroker{
		events:       events,
		catchupLimit: cfg.ReplayBuffer,
		subs:         make(map[string]map[string]*Subscription),
	}
}

// SetListener wires the NotifyListener for dynamic LISTEN/UNLISTEN.
// Called once during startup after both broker and listener exist.
func (b *SubscriptionBroker) SetListener(l *NotifyListener) {
	b.listenerMu.Lock()
	defer b.listenerMu.Unlock()
	b.listener = l
}

// Subscribe attaches a consumer to a request's stream, replaying events
// with id > lastEventID before live delivery. Returns
// services.ErrNotFound for unknown requests and
// services.ErrStreamExpired when the stream has aged out.
func (b *SubscriptionBroker) Subscribe(ctx context.Context, requestID string, lastEventID int64) (*Subscription, error) {
	if _, err := b.events.StreamStatus(ctx, requestID); err != nil {
		return nil, err
	}

	channel := RequestChannel(requestID)
	sub := &Subscription{
		id:            uuid.NewString(),
		requestID:     requestID,
		ch:            make(chan models.Event, subscriptionBuffer),
		broker:        b,
		lastDelivered: lastEventID,
	}

	// Register before LISTEN and catchup: live events that race the
	// replay are deduplicated by id inside deliver.
	b.mu.Lock()
	needsListen := false
	if _, exists := b.subs[channel]; !exists {
		b.subs[channel] = make(map[string]*Subscription)
		needsListen = true
	}
	b.subs[channel][sub.id] = sub
	b.mu.Unlock()

	if needsListen {
		b.listenerMu.RLock()
		l := b.listener
		b.listenerMu.RUnlock()
		if l != nil {
			listenCtx, cancel := context.WithTimeout(context.Background(), listenTimeout)
			err := l.Subscribe(listenCtx, channel)
			cancel()
			if err != nil {
				b.remove(sub)
				return nil, fmt.Errorf("LISTEN on channel %s: %w", channel, err)
			}
		}
	}

	if err := b.catchup(ctx, sub); err != nil {
		b.remove(sub)
		return nil, err
	}
	return sub, nil
}

// catchup replays persisted events the subscriber has not seen yet.
// Live deliveries are blocked on the subscription mutex for the
// duration, so replayed and live events interleave in id order.
func (b *SubscriptionBroker) catchup(ctx context.Context, sub *Subscription) error {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	for {
		events, err := b.events.GetEventsSince(ctx, sub.requestID, sub.lastDelivered, b.catchupLimit)
		if err != nil {
			return fmt.Errorf("catchup query failed: %w", err)
		}
		for _, event := range events {
			if !sub.deliverLocked(event) {
				return nil
			}
		}
		if len(events) < b.catchupLimit {
			return nil
		}
	}
}

// Broadcast decodes one NOTIFY payload and fans it out to the channel's
// local subscribers. Truncated notifications are refetched from the
// database first. Implements Dispatcher.
func (b *SubscriptionBroker) Broadcast(channel string, payload []byte) {
	var env notifyEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		slog.Warn("Invalid NOTIFY payload", "channel", channel, "error", err)
		return
	}

	event := models.Event{
		ID:        env.ID,
		RequestID: env.RequestID,
		Kind:      env.Kind,
		Payload:   env.Payload,
		Terminal:  env.Terminal,
	}
	if env.Truncated {
		ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
		full, err := b.events.GetEvent(ctx, env.ID)
		cancel()
		if err != nil {
			slog.Error("Failed to refetch truncated event",
				"event_id", env.ID, "channel", channel, "error", err)
			return
		}
		event = *full
	}

	// Snapshot subscribers, then deliver without holding the map lock.
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subs[channel]))
	for _, sub := range b.subs[channel] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(event)
	}
}

// ActiveSubscriptions returns the count of live subscriptions.
func (b *SubscriptionBroker) ActiveSubscriptions() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, subs := range b.subs {
		n += len(subs)
	}
	return n
}

// remove closes a subscription and detaches it from the broker.
func (b *SubscriptionBroker) remove(sub *Subscription) {
	sub.mu.Lock()
	closed := sub.closed
	if !closed {
		sub.closed = true
		close(sub.ch)
	}
	sub.mu.Unlock()
	b.detach(sub)
}

// detach drops the subscription from the channel map and stops LISTEN
// when the last subscriber leaves.
func (b *SubscriptionBroker) detach(sub *Subscription) {
	channel := RequestChannel(sub.requestID)

	b.mu.Lock()
	if subs, exists := b.subs[channel]; exists {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(b.subs, channel)
			b.stopListening(channel)
		}
	}
	b.mu.Unlock()
}

// stopListening issues UNLISTEN unless the channel was re-subscribed in
// the meantime (rapid unsubscribe/resubscribe would otherwise drop the
// LISTEN for the new subscriber). Called with b.mu held; the UNLISTEN
// itself runs on a fresh goroutine.
func (b *SubscriptionBroker) stopListening(channel string) {
	b.listenerMu.RLock()
	l := b.listener
	b.listenerMu.RUnlock()
	if l == nil {
		return
	}
	go func() {
		b.mu.RLock()
		_, resubscribed := b.subs[channel]
		b.mu.RUnlock()
		if resubscribed {
			return
		}
		if err := l.Unsubscribe(context.Background(), channel); err != nil {
			slog.Error("Failed to UNLISTEN channel", "channel", channel, "error", err)
		}
	}()
}
