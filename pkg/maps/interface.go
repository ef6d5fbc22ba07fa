package maps

import (
	"context"

	"ridetrack/internal/models"
)

// Provider supplies road distance between two fixes. ETA estimation
// falls back to straight-line distance when no provider is configured
// or a lookup fails.
type Provider interface {
	RoadDistanceKM(ctx context.Context, from, to models.GeoPoint) (float64, error)
}
