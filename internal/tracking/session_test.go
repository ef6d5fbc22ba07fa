package tracking

import (
	"context"
	"errors"
	"testing"

	"ridetrack/internal/models"
	"ridetrack/pkg/transport"
)

func joinedSession(t *testing.T) (*TrackingSession, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	s := NewTrackingSession(tr, nil)
	if err := s.Join(context.Background(), "B1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if s.State() != SessionJoined {
		t.Fatalf("expected joined, got %s", s.State())
	}
	return s, tr
}

func TestJoinSendsSubscription(t *testing.T) {
	s, tr := joinedSession(t)
	defer s.Leave()

	joins := tr.eventsOf(models.EventJoinTracking)
	if len(joins) != 1 {
		t.Fatalf("expected 1 join, got %d", len(joins))
	}
}

func TestCachedStateFollowsStream(t *testing.T) {
	s, tr := joinedSession(t)
	defer s.Leave()

	if s.LastPoint() != nil || s.ETAMinutes() != nil {
		t.Fatal("expected empty cache before first update")
	}

	eta := 3
	tr.emit(models.EventDriverLocation, models.DriverLocationPayload{
		Location:   models.GeoPoint{Latitude: 12.91, Longitude: 77.61, CapturedAt: 1000},
		ETAMinutes: &eta,
	})
	tr.emit(models.EventRideStatusUpdate, models.RideStatusUpdatePayload{Status: models.RideStatusOnWayToPickup})
	tr.emit(models.EventETAUpdate, models.ETAUpdatePayload{ETAMinutes: 2})

	p := s.LastPoint()
	if p == nil || p.Latitude != 12.91 {
		t.Fatalf("unexpected cached point: %+v", p)
	}
	if s.Status() != models.RideStatusOnWayToPickup {
		t.Fatalf("unexpected cached status: %s", s.Status())
	}
	if e := s.ETAMinutes(); e == nil || *e != 2 {
		t.Fatalf("unexpected cached eta: %v", e)
	}
}

func TestDegradedSurfacesAndHeals(t *testing.T) {
	s, tr := joinedSession(t)
	defer s.Leave()

	tr.drop()
	if !s.Degraded() {
		t.Fatal("expected degraded after transport drop")
	}

	tr.reconnect()
	if s.Degraded() {
		t.Fatal("expected degraded cleared after reconnect")
	}
	if s.State() != SessionJoined {
		t.Fatalf("expected joined after reconnect, got %s", s.State())
	}
}

func TestReconnectResendsJoin(t *testing.T) {
	s, tr := joinedSession(t)
	defer s.Leave()

	tr.drop()
	tr.reconnect()

	if got := len(tr.eventsOf(models.EventJoinTracking)); got != 2 {
		t.Fatalf("join must be re-sent after reconnect, got %d joins", got)
	}
}

func TestConnectErrorIsRecoverable(t *testing.T) {
	tr := newFakeTransport()
	tr.connectErr = errors.New("relay unreachable")

	s := NewTrackingSession(tr, nil)
	if err := s.Join(context.Background(), "B1"); err != nil {
		t.Fatalf("connect error must not be terminal, got %v", err)
	}
	if !s.Degraded() {
		t.Fatal("expected degraded while the transport reconnects")
	}

	// The transport's own reconnect eventually succeeds.
	tr.connectErr = nil
	tr.reconnect()
	if s.State() != SessionJoined {
		t.Fatalf("expected joined after transport recovery, got %s", s.State())
	}
	if len(tr.eventsOf(models.EventJoinTracking)) != 1 {
		t.Fatal("expected join sent on recovery")
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	s, tr := joinedSession(t)

	if err := s.Leave(); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	if s.State() != SessionLeft {
		t.Fatalf("expected left, got %s", s.State())
	}
	if err := s.Leave(); err != nil {
		t.Fatalf("second leave should be a no-op, got %v", err)
	}
	if got := len(tr.eventsOf(models.EventLeaveTracking)); got != 1 {
		t.Fatalf("expected exactly 1 leave sent, got %d", got)
	}
}

func TestNoRejoinAfterLeave(t *testing.T) {
	s, tr := joinedSession(t)

	if err := s.Leave(); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	tr.reconnect()

	if got := len(tr.eventsOf(models.EventJoinTracking)); got != 1 {
		t.Fatalf("a left session must not rejoin, got %d joins", got)
	}
	if err := s.Join(context.Background(), "B1"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive on join after leave, got %v", err)
	}
}

func TestTrackingEndedMarksSession(t *testing.T) {
	s, tr := joinedSession(t)
	defer s.Leave()

	tr.emit(models.EventTrackingEnded, models.TrackingEndedPayload{RideID: "R1", Status: models.RideStatusCompleted})

	if !s.Ended() {
		t.Fatal("expected session marked ended")
	}
	if s.Status() != models.RideStatusCompleted {
		t.Fatalf("expected terminal status cached, got %s", s.Status())
	}
}

var _ transport.Transport = (*fakeTransport)(nil)
