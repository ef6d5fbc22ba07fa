package models

import "encoding/json"

// Channel event names. The driver->relay and passenger->relay names are
// part of the wire contract with the mobile clients and must not change.
const (
	EventDriverStartTracking  = "driver-start-tracking"
	EventDriverLocationUpdate = "driver-location-update"
	EventUpdateRideStatus     = "update-ride-status"
	EventDriverStopTracking   = "driver-stop-tracking"

	EventJoinTracking  = "join-tracking"
	EventLeaveTracking = "leave-tracking"

	EventDriverLocation   = "driver-location"
	EventRideStatusUpdate = "ride-status-update"
	EventETAUpdate        = "eta-update"
	EventTrackingEnded    = "tracking-ended"
)

// Envelope is the framing for every message on the channel transport.
type Envelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type StartTrackingPayload struct {
	RideID string `json:"ride_id"`
}

type LocationUpdatePayload struct {
	RideID   string   `json:"ride_id"`
	Location GeoPoint `json:"location"`
}

type RideStatusPayload struct {
	RideID string     `json:"ride_id"`
	Status RideStatus `json:"status"`
}

type StopTrackingPayload struct {
	RideID string `json:"ride_id"`
}

type JoinTrackingPayload struct {
	BookingID string `json:"booking_id"`
}

type LeaveTrackingPayload struct {
	BookingID string `json:"booking_id"`
}

type DriverLocationPayload struct {
	Location   GeoPoint `json:"location"`
	ETAMinutes *int     `json:"eta_minutes,omitempty"`
}

type RideStatusUpdatePayload struct {
	Status RideStatus `json:"status"`
}

type ETAUpdatePayload struct {
	ETAMinutes int `json:"eta_minutes"`
}

type TrackingEndedPayload struct {
	RideID string     `json:"ride_id"`
	Status RideStatus `json:"status"`
}
