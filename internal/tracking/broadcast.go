package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"ridetrack/internal/config"
	"ridetrack/internal/geo"
	"ridetrack/internal/models"
	"ridetrack/pkg/logger"
	"ridetrack/pkg/transport"
)

type BroadcastState int32

const (
	BroadcastIdle BroadcastState = iota
	BroadcastConnecting
	BroadcastActive
	BroadcastStopped
)

func (s BroadcastState) String() string {
	switch s {
	case BroadcastIdle:
		return "idle"
	case BroadcastConnecting:
		return "connecting"
	case BroadcastActive:
		return "active"
	case BroadcastStopped:
		return "stopped"
	}
	return "unknown"
}

// BroadcastSession publishes one driver's location stream and status
// transitions into a ride-scoped channel. It owns its transport and its
// geo watch; Stop releases both unconditionally.
type BroadcastSession struct {
	tr  transport.Transport
	geo geo.Source
	cfg *config.TrackingConfig
	log *logger.Logger

	mu       sync.Mutex
	state    BroadcastState
	rideID   string
	watch    *geo.Watch
	lastSent *models.GeoPoint
	status   models.RideStatus
}

func NewBroadcastSession(tr transport.Transport, source geo.Source, cfg *config.TrackingConfig, log *logger.Logger) *BroadcastSession {
	if log == nil {
		log = logger.Discard()
	}
	s := &BroadcastSession{
		tr:     tr,
		geo:    source,
		cfg:    cfg,
		log:    log,
		state:  BroadcastIdle,
		status: models.RideStatusNotStarted,
	}

	// Each (re)connection re-registers the ride with the relay: the
	// transport does not remember interest across reconnects.
	tr.On(transport.EventConnected, s.onConnected)

	return s
}

// Start opens the channel and the geo watch for one ride. Calling it on
// an already active session is a no-op.
func (s *BroadcastSession) Start(ctx context.Context, rideID string) error {
	s.mu.Lock()
	switch s.state {
	case BroadcastActive:
		s.mu.Unlock()
		return nil
	case BroadcastStopped:
		s.mu.Unlock()
		return ErrNotActive
	}
	s.state = BroadcastConnecting
	s.rideID = rideID
	s.mu.Unlock()

	// A source that cannot produce a fix at all aborts the session
	// before anything touches the transport.
	if _, err := s.geo.Current(geo.Options{
		Accuracy:     s.accuracy(),
		MaxStaleness: s.cfg.MaxStaleness,
		Timeout:      s.cfg.PositionTimeout,
	}); err != nil {
		s.mu.Lock()
		s.state = BroadcastIdle
		s.mu.Unlock()
		return fmt.Errorf("geo source unusable: %w", err)
	}

	if err := s.tr.Connect(ctx); err != nil {
		// Transport-level connect failures are not fatal: the transport
		// keeps reconnecting and onConnected finishes the handshake.
		s.log.WithRideID(rideID).WithError(err).Warn("Transport connect failed, waiting for reconnect")
		return nil
	}

	return nil
}

// onConnected completes (or re-establishes) the broadcast handshake.
func (s *BroadcastSession) onConnected(json.RawMessage) {
	s.mu.Lock()
	if s.state != BroadcastConnecting && s.state != BroadcastActive {
		s.mu.Unlock()
		return
	}
	rideID := s.rideID
	firstActivation := s.state == BroadcastConnecting
	s.state = BroadcastActive
	s.mu.Unlock()

	if err := s.tr.Send(models.EventDriverStartTracking, models.StartTrackingPayload{RideID: rideID}); err != nil {
		s.log.WithRideID(rideID).WithError(err).Warn("Failed to announce tracking start")
	}

	if firstActivation {
		if err := s.openWatch(); err != nil {
			s.log.WithRideID(rideID).WithError(err).Error("Geo watch failed after connect")
			s.mu.Lock()
			s.state = BroadcastStopped
			s.mu.Unlock()
		}
	}
}

func (s *BroadcastSession) openWatch() error {
	watch, err := s.geo.Watch(geo.Options{
		Accuracy:     s.accuracy(),
		MaxStaleness: s.cfg.MaxStaleness,
		Timeout:      s.cfg.PositionTimeout,
	}, s.onPosition, s.onGeoError)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.watch = watch
	stopped := s.state == BroadcastStopped
	s.mu.Unlock()

	// Stop may have raced the watch setup.
	if stopped {
		watch.Cancel()
	}
	return nil
}

func (s *BroadcastSession) onPosition(p models.GeoPoint) {
	s.mu.Lock()
	if s.state != BroadcastActive {
		s.mu.Unlock()
		return
	}
	if s.lastSent != nil && !p.NewerThan(*s.lastSent) {
		s.mu.Unlock()
		return
	}
	point := p
	s.lastSent = &point
	rideID := s.rideID
	s.mu.Unlock()

	err := s.tr.Send(models.EventDriverLocationUpdate, models.LocationUpdatePayload{
		RideID:   rideID,
		Location: p,
	})
	if err != nil {
		// At-most-once: a sample lost to a disconnected window is gone.
		s.log.WithRideID(rideID).WithError(err).Debug("Location sample dropped")
	}
}

func (s *BroadcastSession) onGeoError(err error) {
	s.log.WithRideID(s.RideID()).WithError(err).Error("Geo watch error")
}

// UpdateStatus validates the transition against the lifecycle order and
// publishes it.
func (s *BroadcastSession) UpdateStatus(status models.RideStatus) error {
	if !status.IsValid() {
		return ErrInvalidStatus
	}

	s.mu.Lock()
	if s.state != BroadcastActive {
		s.mu.Unlock()
		return ErrNotActive
	}
	if !s.status.CanTransitionTo(status) {
		current := s.status
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrStatusRegression, current, status)
	}
	s.status = status
	rideID := s.rideID
	s.mu.Unlock()

	return s.tr.Send(models.EventUpdateRideStatus, models.RideStatusPayload{
		RideID: rideID,
		Status: status,
	})
}

// Stop tears the session down: the geo watch is cancelled synchronously
// before the relay is notified and the transport closed, so no update
// can be emitted after Stop returns and passengers are not left polling
// a dead source. Both resources are released even if a step fails.
func (s *BroadcastSession) Stop() error {
	s.mu.Lock()
	if s.state == BroadcastStopped {
		s.mu.Unlock()
		return nil
	}
	started := s.state == BroadcastActive || s.state == BroadcastConnecting
	s.state = BroadcastStopped
	watch := s.watch
	s.watch = nil
	rideID := s.rideID
	s.mu.Unlock()

	watch.Cancel()

	var firstErr error
	if started {
		if err := s.tr.Send(models.EventDriverStopTracking, models.StopTrackingPayload{RideID: rideID}); err != nil {
			firstErr = err
		}
	}
	if err := s.tr.Disconnect(); err != nil && firstErr == nil {
		firstErr = err
	}

	s.log.WithRideID(rideID).Info("Broadcast session stopped")
	return firstErr
}

func (s *BroadcastSession) State() BroadcastState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *BroadcastSession) RideID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rideID
}

// LastSent returns the most recent point published on this session.
func (s *BroadcastSession) LastSent() *models.GeoPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSent == nil {
		return nil
	}
	p := *s.lastSent
	return &p
}

func (s *BroadcastSession) accuracy() geo.Accuracy {
	if s.cfg.HighAccuracy {
		return geo.AccuracyHigh
	}
	return geo.AccuracyLow
}
