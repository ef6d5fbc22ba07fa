package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AlertAuditAction string

const (
	AlertAuditTriggered      AlertAuditAction = "triggered"
	AlertAuditDispatchFailed AlertAuditAction = "dispatch_failed"
	AlertAuditCancelled      AlertAuditAction = "cancelled"
	AlertAuditCancelDiverged AlertAuditAction = "cancel_diverged"
	AlertAuditResolved       AlertAuditAction = "resolved"
)

// AlertAuditEntry records one lifecycle transition of an emergency alert.
type AlertAuditEntry struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	AlertID   string             `json:"alert_id" bson:"alert_id"`
	BookingID string             `json:"booking_id,omitempty" bson:"booking_id,omitempty"`
	Action    AlertAuditAction   `json:"action" bson:"action"`
	Location  *GeoPoint          `json:"location,omitempty" bson:"location,omitempty"`
	Detail    string             `json:"detail,omitempty" bson:"detail,omitempty"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

// StatusAnomaly records a rejected backward ride-status transition.
type StatusAnomaly struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	RideID     string             `json:"ride_id" bson:"ride_id"`
	FromStatus RideStatus         `json:"from_status" bson:"from_status"`
	ToStatus   RideStatus         `json:"to_status" bson:"to_status"`
	CreatedAt  time.Time          `json:"created_at" bson:"created_at"`
}
