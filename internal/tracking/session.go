package tracking

import (
	"context"
	"encoding/json"
	"sync"

	"ridetrack/internal/models"
	"ridetrack/pkg/logger"
	"ridetrack/pkg/transport"
)

type SessionState int32

const (
	SessionConnecting SessionState = iota
	SessionJoined
	SessionLeft
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionJoined:
		return "joined"
	case SessionLeft:
		return "left"
	}
	return "unknown"
}

// TrackingSession is a passenger's subscription to one booking's
// location, status, and ETA stream. It caches last-write-wins values;
// no client-side ordering buffer is needed because the relay already
// discards stale points.
type TrackingSession struct {
	tr  transport.Transport
	log *logger.Logger

	mu         sync.Mutex
	state      SessionState
	bookingID  string
	lastPoint  *models.GeoPoint
	status     models.RideStatus
	etaMinutes *int
	degraded   bool
	ended      bool
}

func NewTrackingSession(tr transport.Transport, log *logger.Logger) *TrackingSession {
	if log == nil {
		log = logger.Discard()
	}
	s := &TrackingSession{
		tr:     tr,
		log:    log,
		state:  SessionConnecting,
		status: models.RideStatusNotStarted,
	}

	tr.On(transport.EventConnected, s.onConnected)
	tr.On(transport.EventDisconnected, s.onDisconnected)
	tr.On(models.EventDriverLocation, s.onDriverLocation)
	tr.On(models.EventRideStatusUpdate, s.onStatusUpdate)
	tr.On(models.EventETAUpdate, s.onETAUpdate)
	tr.On(models.EventTrackingEnded, s.onTrackingEnded)

	return s
}

// Join subscribes to the booking's stream. A transport connect failure
// is not terminal: the session surfaces a degraded connection and the
// transport's reconnect restores it.
func (s *TrackingSession) Join(ctx context.Context, bookingID string) error {
	s.mu.Lock()
	if s.state == SessionLeft {
		s.mu.Unlock()
		return ErrNotActive
	}
	s.bookingID = bookingID
	s.mu.Unlock()

	if err := s.tr.Connect(ctx); err != nil {
		s.mu.Lock()
		s.degraded = true
		s.mu.Unlock()
		s.log.WithBookingID(bookingID).WithError(err).Warn("Connection degraded, transport reconnecting")
		return nil
	}

	return nil
}

// onConnected fires on every (re)connection; join interest must be
// re-sent each time because the transport does not remember it.
func (s *TrackingSession) onConnected(json.RawMessage) {
	s.mu.Lock()
	if s.state == SessionLeft {
		s.mu.Unlock()
		return
	}
	s.state = SessionJoined
	s.degraded = false
	bookingID := s.bookingID
	s.mu.Unlock()

	if bookingID == "" {
		return
	}
	if err := s.tr.Send(models.EventJoinTracking, models.JoinTrackingPayload{BookingID: bookingID}); err != nil {
		s.log.WithBookingID(bookingID).WithError(err).Warn("Failed to send join")
	}
}

func (s *TrackingSession) onDisconnected(json.RawMessage) {
	s.mu.Lock()
	if s.state == SessionJoined {
		s.degraded = true
	}
	s.mu.Unlock()
}

func (s *TrackingSession) onDriverLocation(data json.RawMessage) {
	var p models.DriverLocationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.mu.Lock()
	loc := p.Location
	s.lastPoint = &loc
	if p.ETAMinutes != nil {
		eta := *p.ETAMinutes
		s.etaMinutes = &eta
	}
	s.mu.Unlock()
}

func (s *TrackingSession) onStatusUpdate(data json.RawMessage) {
	var p models.RideStatusUpdatePayload
	if err := json.Unmarshal(data, &p); err != nil || !p.Status.IsValid() {
		return
	}
	s.mu.Lock()
	s.status = p.Status
	s.mu.Unlock()
}

func (s *TrackingSession) onETAUpdate(data json.RawMessage) {
	var p models.ETAUpdatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.mu.Lock()
	eta := p.ETAMinutes
	s.etaMinutes = &eta
	s.mu.Unlock()
}

func (s *TrackingSession) onTrackingEnded(data json.RawMessage) {
	var p models.TrackingEndedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.mu.Lock()
	s.ended = true
	if p.Status.IsValid() {
		s.status = p.Status
	}
	s.mu.Unlock()
}

// Leave unsubscribes and closes the transport. Idempotent past the
// first call.
func (s *TrackingSession) Leave() error {
	s.mu.Lock()
	if s.state == SessionLeft {
		s.mu.Unlock()
		return nil
	}
	s.state = SessionLeft
	bookingID := s.bookingID
	s.mu.Unlock()

	if err := s.tr.Send(models.EventLeaveTracking, models.LeaveTrackingPayload{BookingID: bookingID}); err != nil {
		s.log.WithBookingID(bookingID).WithError(err).Debug("Leave not delivered")
	}
	return s.tr.Disconnect()
}

func (s *TrackingSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Degraded reports a transport-level outage that the transport is
// healing on its own.
func (s *TrackingSession) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Ended reports that the driver stopped tracking or the ride completed.
func (s *TrackingSession) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// LastPoint returns the most recent location received, nil before the
// first update.
func (s *TrackingSession) LastPoint() *models.GeoPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastPoint == nil {
		return nil
	}
	p := *s.lastPoint
	return &p
}

func (s *TrackingSession) Status() models.RideStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ETAMinutes returns the current estimate, nil before the first one.
func (s *TrackingSession) ETAMinutes() *int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.etaMinutes == nil {
		return nil
	}
	e := *s.etaMinutes
	return &e
}
