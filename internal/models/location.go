package models

import (
	"time"
)

// GeoPoint is a single position fix as emitted by a geo source.
// CapturedAt is epoch milliseconds; within one session's emitted
// sequence it is strictly increasing.
type GeoPoint struct {
	Latitude       float64 `json:"latitude" bson:"latitude"`
	Longitude      float64 `json:"longitude" bson:"longitude"`
	AccuracyMeters float64 `json:"accuracy_meters" bson:"accuracy_meters"`
	CapturedAt     int64   `json:"captured_at" bson:"captured_at"`
}

func NewGeoPoint(lat, lng, accuracyMeters float64) GeoPoint {
	return GeoPoint{
		Latitude:       lat,
		Longitude:      lng,
		AccuracyMeters: accuracyMeters,
		CapturedAt:     time.Now().UnixMilli(),
	}
}

// NewerThan reports whether p was captured strictly after q.
func (p GeoPoint) NewerThan(q GeoPoint) bool {
	return p.CapturedAt > q.CapturedAt
}

// Age returns how old the fix is relative to now.
func (p GeoPoint) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(p.CapturedAt))
}

func IsValidCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
