package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// notifyPollInterval bounds one WaitForNotification call so the loop
// regularly drains pending channel changes.
const notifyPollInterval = 100 * time.Millisecond

// Reconnect backoff bounds for the dedicated LISTEN connection.
const (
	reconnectBase = time.Second
	reconnectCap  = 30 * time.Second
)

// Dispatcher receives raw NOTIFY payloads for a request channel.
// Implemented by the SubscriptionBroker.
type Dispatcher interface {
	Broadcast(channel string, payload []byte)
}

// channelOp asks the receive loop to LISTEN or UNLISTEN one request
// channel. The loop is the sole user of the pgx connection, so channel
// changes are funneled through it instead of racing
// WaitForNotification with an Exec from another goroutine.
type channelOp struct {
	channel string
	listen  bool
	done    chan error
}

// NotifyListener owns a pod's dedicated LISTEN connection and feeds
// request-stream notifications to the broker. Streams come and go with
// their subscribers, so the listened channel set changes at runtime;
// after a reconnect every channel that still has subscribers is
// re-LISTENed before notifications resume.
type NotifyListener struct {
	connString string
	dispatcher Dispatcher
	ops        chan channelOp

	mu      sync.Mutex
	conn    *pgx.Conn
	active  map[string]struct{}
	started bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewNotifyListener creates a listener over a dedicated connection.
// The connString must be the base DSN; NOTIFY channels are global to
// the database, so the schema search path does not matter.
func NewNotifyListener(connString string, dispatcher Dispatcher) *NotifyListener {
	return &NotifyListener{
		connString: connString,
		dispatcher: dispatcher,
		ops:        make(chan channelOp, 16),
		active:     make(map[string]struct{}),
	}
}

// Start connects and launches the receive loop.
func (l *NotifyListener) Start(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return fmt.Errorf("notify listener connect: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.conn = conn
	l.started = true
	l.mu.Unlock()
	l.cancel = cancel
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)
		l.run(loopCtx)
	}()

	slog.Info("NOTIFY listener started")
	return nil
}

// Subscribe begins listening on a request channel. A channel already
// being listened on is a no-op.
func (l *NotifyListener) Subscribe(ctx context.Context, channel string) error {
	return l.request(ctx, channel, true)
}

// Unsubscribe stops listening on a request channel.
func (l *NotifyListener) Unsubscribe(ctx context.Context, channel string) error {
	return l.request(ctx, channel, false)
}

// request hands one channel change to the receive loop and waits for
// the outcome.
func (l *NotifyListener) request(ctx context.Context, channel string, listen bool) error {
	l.mu.Lock()
	_, listening := l.active[channel]
	started := l.started
	l.mu.Unlock()

	if listening == listen {
		return nil
	}
	if !started {
		if !listen {
			return nil
		}
		return fmt.Errorf("notify listener not started")
	}

	op := channelOp{channel: channel, listen: listen, done: make(chan error, 1)}
	select {
	case l.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-op.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run alternates between draining channel ops and waiting for
// notifications, reconnecting whenever the connection drops.
func (l *NotifyListener) run(ctx context.Context) {
	for ctx.Err() == nil {
		l.applyPendingOps(ctx)

		conn := l.currentConn()
		if conn == nil {
			l.reconnect(ctx)
			continue
		}

		waitCtx, cancel := context.WithTimeout(ctx, notifyPollInterval)
		notification, err := conn.WaitForNotification(waitCtx)
		cancel()
		switch {
		case err == nil:
			l.dispatcher.Broadcast(notification.Channel, []byte(notification.Payload))
		case ctx.Err() != nil:
			return
		case waitCtx.Err() != nil:
			// Poll expired; loop back for pending channel ops.
		default:
			slog.Error("NOTIFY receive failed", "error", err)
			l.dropConn(ctx)
			l.reconnect(ctx)
		}
	}
}

// applyPendingOps executes queued LISTEN/UNLISTEN changes and records
// the resulting channel set for reconnect replay.
func (l *NotifyListener) applyPendingOps(ctx context.Context) {
	for {
		select {
		case op := <-l.ops:
			op.done <- l.applyOp(ctx, op)
		default:
			return
		}
	}
}

func (l *NotifyListener) applyOp(ctx context.Context, op channelOp) error {
	conn := l.currentConn()
	if conn == nil {
		return fmt.Errorf("notify listener has no connection")
	}

	verb := "UNLISTEN "
	if op.listen {
		verb = "LISTEN "
	}
	if _, err := conn.Exec(ctx, verb+pgx.Identifier{op.channel}.Sanitize()); err != nil {
		return fmt.Errorf("%s%s: %w", verb, op.channel, err)
	}

	l.mu.Lock()
	if op.listen {
		l.active[op.channel] = struct{}{}
	} else {
		delete(l.active, op.channel)
	}
	l.mu.Unlock()

	slog.Debug("NOTIFY channel set changed", "channel", op.channel, "listen", op.listen)
	return nil
}

func (l *NotifyListener) currentConn() *pgx.Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}

func (l *NotifyListener) dropConn(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		_ = l.conn.Close(ctx)
		l.conn = nil
	}
}

// reconnect re-establishes the connection with exponential backoff and
// re-LISTENs every channel that still has subscribers, so in-flight
// request streams resume without client action.
func (l *NotifyListener) reconnect(ctx context.Context) {
	backoff := reconnectBase
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		conn, err := pgx.Connect(ctx, l.connString)
		if err != nil {
			slog.Error("NOTIFY reconnect failed", "error", err, "backoff", backoff)
			backoff = min(backoff*2, reconnectCap)
			continue
		}

		l.mu.Lock()
		channels := make([]string, 0, len(l.active))
		for ch := range l.active {
			channels = append(channels, ch)
		}
		l.conn = conn
		l.mu.Unlock()

		for _, ch := range channels {
			if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
				slog.Error("Re-LISTEN after reconnect failed", "channel", ch, "error", err)
			}
		}
		slog.Info("NOTIFY listener reconnected", "channels", len(channels))
		return
	}
}

// Stop shuts the receive loop down before closing the connection; the
// loop is the connection's only user, so this ordering avoids closing
// it out from under WaitForNotification.
func (l *NotifyListener) Stop(ctx context.Context) {
	l.mu.Lock()
	started := l.started
	l.started = false
	l.mu.Unlock()
	if !started {
		return
	}

	l.cancel()
	<-l.done
	l.dropConn(ctx)
}
