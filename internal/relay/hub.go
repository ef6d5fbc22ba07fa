package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"ridetrack/internal/config"
	"ridetrack/internal/eta"
	"ridetrack/internal/models"
	"ridetrack/pkg/logger"
)

// BookingDirectory resolves a passenger's booking to the ride it tracks.
// Backed by the external ride service in production, by a static map in
// tests.
type BookingDirectory interface {
	RideForBooking(ctx context.Context, bookingID string) (string, error)
}

// SnapshotStore persists a channel's last-known state across relay
// restarts. Implementations are best-effort; the hub tolerates a nil
// store and any store error.
type SnapshotStore interface {
	Save(ctx context.Context, rideID string, snap *ChannelSnapshot) error
	Load(ctx context.Context, rideID string) (*ChannelSnapshot, error)
	Delete(ctx context.Context, rideID string) error
}

type ChannelSnapshot struct {
	Point      *models.GeoPoint  `json:"point,omitempty"`
	Status     models.RideStatus `json:"status"`
	ETAMinutes *int              `json:"eta_minutes,omitempty"`
}

// DistanceProvider supplies road distance between two fixes. When nil or
// failing, the hub falls back to haversine distance.
type DistanceProvider interface {
	RoadDistanceKM(ctx context.Context, from, to models.GeoPoint) (float64, error)
}

// AnomalyRecorder captures rejected backward status transitions for
// later review.
type AnomalyRecorder interface {
	RecordStatusAnomaly(ctx context.Context, anomaly *models.StatusAnomaly) error
}

// Hub routes events between one broadcasting driver and N tracking
// passengers per ride.
type Hub struct {
	cfg       *config.WebSocketConfig
	log       *logger.Logger
	directory BookingDirectory
	snapshots SnapshotStore
	distance  DistanceProvider
	anomalies AnomalyRecorder

	register   chan *Client
	unregister chan *Client

	mu       sync.RWMutex
	clients  map[*Client]bool
	channels map[string]*rideChannel
}

type HubOption func(*Hub)

func WithSnapshotStore(store SnapshotStore) HubOption {
	return func(h *Hub) { h.snapshots = store }
}

func WithDistanceProvider(provider DistanceProvider) HubOption {
	return func(h *Hub) { h.distance = provider }
}

func WithAnomalyRecorder(recorder AnomalyRecorder) HubOption {
	return func(h *Hub) { h.anomalies = recorder }
}

func NewHub(cfg *config.WebSocketConfig, directory BookingDirectory, log *logger.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		cfg:        cfg,
		log:        log,
		directory:  directory,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		channels:   make(map[string]*rideChannel),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	client.log.Debug("Client connected")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	h.mu.Unlock()

	// The client must leave its channel before its send chan closes:
	// a broadcast running on the driver's read goroutine could otherwise
	// enqueue into the closed channel and panic, taking the driver's
	// connection down with it.
	//
	// A dropped driver keeps its channel alive: the transport reconnects
	// and re-sends driver-start-tracking. Only the stale connection's
	// bindings are cleared.
	if client.rideID != "" {
		if ch := h.channel(client.rideID, false); ch != nil {
			ch.mu.Lock()
			if ch.driver == client {
				ch.driver = nil
			}
			ch.mu.Unlock()
		}
	}
	if client.joinedRide != "" {
		if ch := h.channel(client.joinedRide, false); ch != nil {
			ch.mu.Lock()
			delete(ch.subscribers, client)
			ch.mu.Unlock()
		}
	}

	close(client.send)

	client.log.Debug("Client disconnected")
}

func (h *Hub) channel(rideID string, create bool) *rideChannel {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.channels[rideID]
	if !ok && create {
		ch = newRideChannel(rideID)
		h.channels[rideID] = ch
	}
	return ch
}

func (h *Hub) dropChannel(rideID string) {
	h.mu.Lock()
	delete(h.channels, rideID)
	h.mu.Unlock()
}

// route dispatches one inbound envelope. It runs on the sending client's
// read goroutine; per-ride state is serialized by the channel lock.
func (h *Hub) route(client *Client, env *models.Envelope) {
	switch env.Event {
	case models.EventDriverStartTracking:
		var p models.StartTrackingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RideID == "" {
			return
		}
		h.handleStartTracking(client, p.RideID)

	case models.EventDriverLocationUpdate:
		var p models.LocationUpdatePayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RideID == "" {
			return
		}
		h.handleLocationUpdate(client, &p)

	case models.EventUpdateRideStatus:
		var p models.RideStatusPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RideID == "" {
			return
		}
		h.handleStatusUpdate(client, &p)

	case models.EventDriverStopTracking:
		var p models.StopTrackingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RideID == "" {
			return
		}
		h.handleStopTracking(client, p.RideID)

	case models.EventJoinTracking:
		var p models.JoinTrackingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.BookingID == "" {
			return
		}
		h.handleJoin(client, p.BookingID)

	case models.EventLeaveTracking:
		var p models.LeaveTrackingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		h.handleLeave(client)

	default:
		client.log.WithField("event", env.Event).Debug("Ignoring unknown event")
	}
}

func (h *Hub) handleStartTracking(client *Client, rideID string) {
	ch := h.channel(rideID, true)

	var restored *ChannelSnapshot
	if h.snapshots != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		restored, _ = h.snapshots.Load(ctx, rideID)
		cancel()
	}

	ch.mu.Lock()
	ch.driver = client
	ch.active = true
	if ch.lastPoint == nil {
		ch.restoreLocked(restored)
	}
	ch.mu.Unlock()

	client.rideID = rideID
	h.log.LogTrackingEvent(rideID, models.EventDriverStartTracking, map[string]interface{}{
		"client_id": client.ID,
	})
}

func (h *Hub) handleLocationUpdate(client *Client, p *models.LocationUpdatePayload) {
	ch := h.channel(p.RideID, false)
	if ch == nil {
		return
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	if !ch.active || ch.driver != client {
		return
	}

	// Stale samples are dropped, not forwarded: a subscriber must never
	// observe updates out of order relative to itself.
	if ch.lastPoint != nil && !p.Location.NewerThan(*ch.lastPoint) {
		client.log.WithRideID(p.RideID).Debug("Dropping stale location sample")
		return
	}

	if ch.lastPoint != nil {
		minutes := h.estimateETA(*ch.lastPoint, p.Location)
		ch.etaMinutes = &minutes
	}
	loc := p.Location
	ch.lastPoint = &loc

	ch.broadcastLocked(models.EventDriverLocation, models.DriverLocationPayload{
		Location:   loc,
		ETAMinutes: ch.etaMinutes,
	})
	if ch.etaMinutes != nil {
		ch.broadcastLocked(models.EventETAUpdate, models.ETAUpdatePayload{ETAMinutes: *ch.etaMinutes})
	}

	h.saveSnapshot(ch)
}

func (h *Hub) estimateETA(prev, curr models.GeoPoint) int {
	distanceKM := eta.PointDistanceKM(prev, curr)
	if h.distance != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if road, err := h.distance.RoadDistanceKM(ctx, prev, curr); err == nil && road > 0 {
			distanceKM = road
		}
		cancel()
	}
	return eta.EstimateMinutes(distanceKM, eta.InferSpeedKMH(prev, curr))
}

func (h *Hub) handleStatusUpdate(client *Client, p *models.RideStatusPayload) {
	ch := h.channel(p.RideID, false)
	if ch == nil || !p.Status.IsValid() {
		return
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	if !ch.active || ch.driver != client {
		return
	}

	if !ch.status.CanTransitionTo(p.Status) {
		h.log.WithRideID(p.RideID).WithFields(map[string]interface{}{
			"from": ch.status,
			"to":   p.Status,
		}).Warn("Rejecting backward ride status transition")
		h.recordAnomaly(p.RideID, ch.status, p.Status)
		return
	}

	ch.status = p.Status
	ch.broadcastLocked(models.EventRideStatusUpdate, models.RideStatusUpdatePayload{Status: p.Status})
	h.saveSnapshot(ch)
}

func (h *Hub) handleStopTracking(client *Client, rideID string) {
	ch := h.channel(rideID, false)
	if ch == nil {
		return
	}

	ch.mu.Lock()
	if ch.driver != client {
		ch.mu.Unlock()
		return
	}
	ch.active = false
	ch.driver = nil
	ch.broadcastLocked(models.EventTrackingEnded, models.TrackingEndedPayload{
		RideID: rideID,
		Status: ch.status,
	})
	// Subscriber bindings on the clients themselves are left alone: a
	// later leave or disconnect finds the channel gone, which is fine.
	for c := range ch.subscribers {
		delete(ch.subscribers, c)
	}
	ch.mu.Unlock()

	client.rideID = ""
	h.dropChannel(rideID)
	h.log.LogTrackingEvent(rideID, models.EventDriverStopTracking, nil)
}

func (h *Hub) handleJoin(client *Client, bookingID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	rideID, err := h.directory.RideForBooking(ctx, bookingID)
	cancel()
	if err != nil {
		client.log.WithBookingID(bookingID).WithError(err).Warn("Booking resolution failed, ignoring join")
		return
	}

	ch := h.channel(rideID, true)

	var restored *ChannelSnapshot
	if h.snapshots != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		restored, _ = h.snapshots.Load(ctx, rideID)
		cancel()
	}

	ch.mu.Lock()
	if ch.lastPoint == nil {
		ch.restoreLocked(restored)
	}
	ch.subscribers[client] = bookingID
	ch.replayLocked(client)
	ch.mu.Unlock()

	client.bookingID = bookingID
	client.joinedRide = rideID
	h.log.LogTrackingEvent(rideID, models.EventJoinTracking, map[string]interface{}{
		"booking_id": bookingID,
	})
}

func (h *Hub) handleLeave(client *Client) {
	if client.joinedRide == "" {
		return
	}
	if ch := h.channel(client.joinedRide, false); ch != nil {
		ch.mu.Lock()
		delete(ch.subscribers, client)
		ch.mu.Unlock()
	}
	h.log.LogTrackingEvent(client.joinedRide, models.EventLeaveTracking, map[string]interface{}{
		"booking_id": client.bookingID,
	})
	client.joinedRide = ""
	client.bookingID = ""
}

func (h *Hub) saveSnapshot(ch *rideChannel) {
	if h.snapshots == nil {
		return
	}
	snap := ch.snapshotLocked()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.snapshots.Save(ctx, ch.rideID, snap); err != nil {
			h.log.WithRideID(ch.rideID).WithError(err).Debug("Snapshot save failed")
		}
	}()
}

func (h *Hub) recordAnomaly(rideID string, from, to models.RideStatus) {
	if h.anomalies == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		err := h.anomalies.RecordStatusAnomaly(ctx, &models.StatusAnomaly{
			RideID:     rideID,
			FromStatus: from,
			ToStatus:   to,
			CreatedAt:  time.Now(),
		})
		if err != nil {
			h.log.WithRideID(rideID).WithError(err).Warn("Anomaly record failed")
		}
	}()
}

// ChannelStat is the introspection view of one active ride channel.
type ChannelStat struct {
	RideID      string            `json:"ride_id"`
	Active      bool              `json:"active"`
	Subscribers int               `json:"subscribers"`
	HasDriver   bool              `json:"has_driver"`
	Status      models.RideStatus `json:"status"`
}

func (h *Hub) Stats() []ChannelStat {
	h.mu.RLock()
	channels := make([]*rideChannel, 0, len(h.channels))
	for _, ch := range h.channels {
		channels = append(channels, ch)
	}
	h.mu.RUnlock()

	stats := make([]ChannelStat, 0, len(channels))
	for _, ch := range channels {
		ch.mu.Lock()
		stats = append(stats, ChannelStat{
			RideID:      ch.rideID,
			Active:      ch.active,
			Subscribers: len(ch.subscribers),
			HasDriver:   ch.driver != nil,
			Status:      ch.status,
		})
		ch.mu.Unlock()
	}
	return stats
}
