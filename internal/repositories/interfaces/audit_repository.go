package interfaces

import (
	"context"

	"ridetrack/internal/models"
)

// AuditRepository persists alert lifecycle entries and rejected ride
// status transitions. Writes are best effort from the callers' point of
// view; reads serve the safety review tooling.
type AuditRepository interface {
	RecordAlertEvent(ctx context.Context, entry *models.AlertAuditEntry) error
	ListAlertEvents(ctx context.Context, alertID string) ([]*models.AlertAuditEntry, error)

	RecordStatusAnomaly(ctx context.Context, anomaly *models.StatusAnomaly) error
	RecentAnomalies(ctx context.Context, rideID string, limit int64) ([]*models.StatusAnomaly, error)
}
