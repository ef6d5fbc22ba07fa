package tracking

import (
	"context"
	"encoding/json"
	"sync"

	"ridetrack/internal/models"
	"ridetrack/pkg/transport"
)

// fakeTransport records sends and lets tests drive connection events.
type fakeTransport struct {
	mu         sync.Mutex
	handlers   map[string][]transport.Handler
	sent       []sentEvent
	connectErr error
	sendErr    error
	connected  bool
	closed     bool
}

type sentEvent struct {
	event string
	data  []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string][]transport.Handler)}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return transport.ErrClosed
	}
	if f.connectErr != nil {
		err := f.connectErr
		f.mu.Unlock()
		return err
	}
	f.connected = true
	f.mu.Unlock()

	f.emit(transport.EventConnected, nil)
	return nil
}

func (f *fakeTransport) Send(event string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return transport.ErrClosed
	}
	if !f.connected {
		return transport.ErrNotConnected
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.sent = append(f.sent, sentEvent{event: event, data: data})
	return nil
}

func (f *fakeTransport) On(event string, handler transport.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], handler)
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.connected = false
	return nil
}

// emit synchronously invokes handlers the way a read loop would.
func (f *fakeTransport) emit(event string, payload interface{}) {
	var data json.RawMessage
	if payload != nil {
		data, _ = json.Marshal(payload)
	}
	f.mu.Lock()
	handlers := make([]transport.Handler, len(f.handlers[event]))
	copy(handlers, f.handlers[event])
	f.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
}

// drop simulates a transport-level disconnect followed by the built-in
// reconnect succeeding.
func (f *fakeTransport) drop() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.emit(transport.EventDisconnected, nil)
}

func (f *fakeTransport) reconnect() {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	f.emit(transport.EventConnected, nil)
}

func (f *fakeTransport) eventsOf(event string) []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEvent
	for _, e := range f.sent {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeTransport) locations() []models.GeoPoint {
	var out []models.GeoPoint
	for _, e := range f.eventsOf(models.EventDriverLocationUpdate) {
		var p models.LocationUpdatePayload
		if json.Unmarshal(e.data, &p) == nil {
			out = append(out, p.Location)
		}
	}
	return out
}
