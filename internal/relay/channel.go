package relay

import (
	"sync"

	"ridetrack/internal/models"
)

// rideChannel is the routing scope for one ride. All of its state is
// owned by the relay and mutated only under its lock, which linearizes
// registration against fan-out for that ride while other rides proceed
// in parallel.
type rideChannel struct {
	rideID string

	mu          sync.Mutex
	driver      *Client
	subscribers map[*Client]string // client -> booking id
	lastPoint   *models.GeoPoint
	status      models.RideStatus
	etaMinutes  *int
	active      bool
}

func newRideChannel(rideID string) *rideChannel {
	return &rideChannel{
		rideID:      rideID,
		subscribers: make(map[*Client]string),
		status:      models.RideStatusNotStarted,
	}
}

// broadcastLocked sends one envelope to every subscriber. Callers hold
// ch.mu, so no subscriber can be half-registered while this runs.
func (ch *rideChannel) broadcastLocked(event string, payload interface{}) {
	message, err := marshalEnvelope(event, payload)
	if err != nil {
		return
	}
	for client := range ch.subscribers {
		if !client.enqueue(message) {
			client.log.WithRideID(ch.rideID).Warn("Subscriber send buffer full, dropping client")
			delete(ch.subscribers, client)
		}
	}
}

// replayLocked pushes the channel's current state to one freshly joined
// subscriber so it is not blind until the next delta.
func (ch *rideChannel) replayLocked(client *Client) {
	if ch.lastPoint != nil {
		if msg, err := marshalEnvelope(models.EventDriverLocation, models.DriverLocationPayload{
			Location:   *ch.lastPoint,
			ETAMinutes: ch.etaMinutes,
		}); err == nil {
			client.enqueue(msg)
		}
	}
	if msg, err := marshalEnvelope(models.EventRideStatusUpdate, models.RideStatusUpdatePayload{
		Status: ch.status,
	}); err == nil {
		client.enqueue(msg)
	}
	if ch.etaMinutes != nil {
		if msg, err := marshalEnvelope(models.EventETAUpdate, models.ETAUpdatePayload{
			ETAMinutes: *ch.etaMinutes,
		}); err == nil {
			client.enqueue(msg)
		}
	}
}

func (ch *rideChannel) snapshotLocked() *ChannelSnapshot {
	snap := &ChannelSnapshot{Status: ch.status}
	if ch.lastPoint != nil {
		p := *ch.lastPoint
		snap.Point = &p
	}
	if ch.etaMinutes != nil {
		e := *ch.etaMinutes
		snap.ETAMinutes = &e
	}
	return snap
}

func (ch *rideChannel) restoreLocked(snap *ChannelSnapshot) {
	if snap == nil {
		return
	}
	if ch.lastPoint == nil && snap.Point != nil {
		p := *snap.Point
		ch.lastPoint = &p
	}
	if snap.Status.IsValid() && ch.status.CanTransitionTo(snap.Status) {
		ch.status = snap.Status
	}
	if ch.etaMinutes == nil && snap.ETAMinutes != nil {
		e := *snap.ETAMinutes
		ch.etaMinutes = &e
	}
}
