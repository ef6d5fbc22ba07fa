package transport

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ridetrack/internal/models"
	"ridetrack/pkg/logger"
)

const (
	defaultInitialDelay = time.Second
	defaultMaxDelay     = 30 * time.Second
	writeWait           = 10 * time.Second
)

// WSTransport is a websocket-backed Transport. One instance owns exactly
// one connection; sessions hold their own instance rather than sharing a
// process-wide socket.
type WSTransport struct {
	endpoint     string
	dialer       *websocket.Dialer
	log          *logger.Logger
	initialDelay time.Duration
	maxDelay     time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	handlers  map[string][]Handler
	closed    bool
	reconning bool
}

type WSOption func(*WSTransport)

func WithLogger(log *logger.Logger) WSOption {
	return func(t *WSTransport) { t.log = log }
}

func WithBackoff(initial, max time.Duration) WSOption {
	return func(t *WSTransport) {
		t.initialDelay = initial
		t.maxDelay = max
	}
}

func NewWSTransport(endpoint string, opts ...WSOption) *WSTransport {
	t := &WSTransport{
		endpoint:     endpoint,
		dialer:       websocket.DefaultDialer,
		log:          logger.Discard(),
		initialDelay: defaultInitialDelay,
		maxDelay:     defaultMaxDelay,
		handlers:     make(map[string][]Handler),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *WSTransport) On(event string, handler Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[event] = append(t.handlers[event], handler)
}

func (t *WSTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.conn != nil {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	conn, _, err := t.dialer.DialContext(ctx, t.endpoint, nil)
	if err != nil {
		t.log.WithError(err).Warn("Initial websocket dial failed, scheduling reconnect")
		t.scheduleReconnect()
		return err
	}

	t.adopt(conn)
	return nil
}

// adopt installs a live connection, starts its read loop, and notifies
// connected handlers.
func (t *WSTransport) adopt(conn *websocket.Conn) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.conn = conn
	t.mu.Unlock()

	go t.readLoop(conn)
	t.dispatch(EventConnected, nil)
}

func (t *WSTransport) Send(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := models.Envelope{
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.conn == nil {
		return ErrNotConnected
	}
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteJSON(env)
}

func (t *WSTransport) Disconnect() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		return conn.Close()
	}
	return nil
}

func (t *WSTransport) readLoop(conn *websocket.Conn) {
	for {
		var env models.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.mu.Lock()
			stillCurrent := t.conn == conn
			if stillCurrent {
				t.conn = nil
			}
			closed := t.closed
			t.mu.Unlock()

			conn.Close()
			if closed || !stillCurrent {
				return
			}

			t.log.WithError(err).Warn("Websocket connection dropped")
			t.dispatch(EventDisconnected, nil)
			t.scheduleReconnect()
			return
		}

		t.dispatch(env.Event, env.Data)
	}
}

func (t *WSTransport) scheduleReconnect() {
	t.mu.Lock()
	if t.closed || t.reconning {
		t.mu.Unlock()
		return
	}
	t.reconning = true
	t.mu.Unlock()

	go t.reconnectLoop()
}

func (t *WSTransport) reconnectLoop() {
	delay := t.initialDelay
	for {
		// Jitter avoids a reconnect stampede against the relay.
		sleep := delay + time.Duration(rand.Int63n(int64(delay)/2+1))
		time.Sleep(sleep)

		t.mu.Lock()
		if t.closed {
			t.reconning = false
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()

		conn, _, err := t.dialer.Dial(t.endpoint, nil)
		if err == nil {
			t.mu.Lock()
			t.reconning = false
			t.mu.Unlock()
			t.log.Info("Websocket reconnected")
			t.adopt(conn)
			return
		}

		t.log.WithError(err).Debug("Websocket reconnect attempt failed")
		delay *= 2
		if delay > t.maxDelay {
			delay = t.maxDelay
		}
	}
}

func (t *WSTransport) dispatch(event string, data json.RawMessage) {
	t.mu.Lock()
	handlers := make([]Handler, len(t.handlers[event]))
	copy(handlers, t.handlers[event])
	t.mu.Unlock()

	for _, h := range handlers {
		h(data)
	}
}
