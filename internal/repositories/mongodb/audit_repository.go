package mongodb

import (
	"context"
	"fmt"
	"time"

	"ridetrack/internal/models"
	"ridetrack/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type auditRepository struct {
	alerts    *mongo.Collection
	anomalies *mongo.Collection
}

func NewAuditRepository(db *mongo.Database) interfaces.AuditRepository {
	return &auditRepository{
		alerts:    db.Collection("alert_audit"),
		anomalies: db.Collection("status_anomalies"),
	}
}

func (r *auditRepository) RecordAlertEvent(ctx context.Context, entry *models.AlertAuditEntry) error {
	entry.ID = primitive.NewObjectID()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := r.alerts.InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to record alert event: %w", err)
	}
	return nil
}

func (r *auditRepository) ListAlertEvents(ctx context.Context, alertID string) ([]*models.AlertAuditEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.alerts.Find(ctx, bson.M{"alert_id": alertID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert events: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*models.AlertAuditEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode alert events: %w", err)
	}
	return entries, nil
}

func (r *auditRepository) RecordStatusAnomaly(ctx context.Context, anomaly *models.StatusAnomaly) error {
	anomaly.ID = primitive.NewObjectID()
	if anomaly.CreatedAt.IsZero() {
		anomaly.CreatedAt = time.Now()
	}

	_, err := r.anomalies.InsertOne(ctx, anomaly)
	if err != nil {
		return fmt.Errorf("failed to record status anomaly: %w", err)
	}
	return nil
}

func (r *auditRepository) RecentAnomalies(ctx context.Context, rideID string, limit int64) ([]*models.StatusAnomaly, error) {
	if limit <= 0 {
		limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.anomalies.Find(ctx, bson.M{"ride_id": rideID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list anomalies: %w", err)
	}
	defer cursor.Close(ctx)

	var anomalies []*models.StatusAnomaly
	if err := cursor.All(ctx, &anomalies); err != nil {
		return nil, fmt.Errorf("failed to decode anomalies: %w", err)
	}
	return anomalies, nil
}
