package transport

import (
	"context"
	"encoding/json"
	"errors"
)

// Synthetic local notifications, never sent on the wire. Connected fires
// on every successful (re)connection so owners can re-register interest;
// Disconnected fires on every transport-level drop.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
)

var (
	// ErrNotConnected is returned by Send during a disconnected window.
	// Delivery is at-most-once: nothing is buffered or replayed.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrClosed is returned after an explicit Disconnect, which is
	// terminal: the transport never reconnects on its own after it.
	ErrClosed = errors.New("transport: closed")
)

type Handler func(data json.RawMessage)

// Transport is a persistent bidirectional message channel multiplexing
// named event types over one connection to the relay endpoint.
type Transport interface {
	// Connect dials the endpoint. On transport-level drops the
	// connection is re-established automatically with backoff; a failed
	// initial dial surfaces the error and still arms the reconnect loop.
	Connect(ctx context.Context) error

	// Send emits one event. It fails with ErrNotConnected while the
	// link is down; events are never queued.
	Send(event string, payload interface{}) error

	// On registers a handler for an event type. Handlers for one
	// transport run sequentially on its read loop.
	On(event string, handler Handler)

	// Disconnect closes the link for good.
	Disconnect() error
}
