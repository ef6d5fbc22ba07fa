package models

type AlertType string
type AlertStatus string

const (
	AlertTypeSafety AlertType = "SAFETY"

	AlertStatusActive    AlertStatus = "active"
	AlertStatusCancelled AlertStatus = "cancelled"
	AlertStatusResolved  AlertStatus = "resolved"
)

// EmergencyAlert is the read-only view of an alert owned by the external
// safety service. The flow keeps it for UI state and cancellation; it
// never mutates the server-side record directly.
type EmergencyAlert struct {
	ID          string      `json:"id" bson:"alert_id"`
	TriggeredAt int64       `json:"triggered_at" bson:"triggered_at"`
	Location    *GeoPoint   `json:"location,omitempty" bson:"location,omitempty"`
	BookingID   string      `json:"booking_id,omitempty" bson:"booking_id,omitempty"`
	Status      AlertStatus `json:"status" bson:"status"`
	Description string      `json:"description,omitempty" bson:"description,omitempty"`
}

func (a *EmergencyAlert) IsTerminal() bool {
	return a.Status == AlertStatusCancelled || a.Status == AlertStatusResolved
}
