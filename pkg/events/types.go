// Package events provides real-time event delivery via Server-Sent
// Events and PostgreSQL NOTIFY/LISTEN for cross-pod distribution.
//
// Every event is persisted to the events table and broadcast via
// pg_notify in the same transaction, so subscribers on any pod see the
// same ordered log that late subscribers replay from the database. The
// serial row id is the catchup cursor.
//
// NOTIFY payloads are capped by PostgreSQL at 8000 bytes. Payloads that
// would exceed the cap are replaced on the wire with a truncation
// envelope carrying only the row id; the broker refetches the full row
// before delivering it to subscribers.
package events

// Event kinds carried on a request's stream.
const (
	// KindConnected is the synthetic first event of every SSE stream. It
	// is emitted by the handler, never persisted.
	KindConnected = "connected"

	// KindNode marks a graph node starting or finishing.
	KindNode = "node"

	// KindStateDelta carries the state fields a node changed.
	KindStateDelta = "state_delta"

	// KindError terminates a stream after a pipeline failure.
	KindError = "error"

	// KindComplete terminates a stream with the final answer.
	KindComplete = "complete"
)

// TerminalKind reports whether an event kind ends its request's stream.
func TerminalKind(kind string) bool {
	return kind == KindError || kind == KindComplete
}

// RequestChannel returns the NOTIFY channel for a request's events.
// Format: "request:{request_id}"
func RequestChannel(requestID string) string {
	return "request:" + requestID
}
