package eta

import (
	"math"
	"time"

	"ridetrack/internal/models"
)

const (
	EarthRadiusKM = 6371.0

	// DefaultSpeedKMH is the assumed city driving speed used when no
	// better estimate is available.
	DefaultSpeedKMH = 30.0

	// speedNoiseFloor is the minimum elapsed time between two fixes for
	// an inferred speed to be meaningful.
	speedNoiseFloor = time.Second

	// Inferred speeds outside this band are GPS jitter or a cold start,
	// not actual vehicle movement.
	minPlausibleSpeedKMH = 3.0
	maxPlausibleSpeedKMH = 120.0
)

// DistanceKM returns the haversine great-circle distance in kilometers.
func DistanceKM(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lon1Rad := lon1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	lon2Rad := lon2 * math.Pi / 180

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKM * c
}

// PointDistanceKM is DistanceKM over two GeoPoints.
func PointDistanceKM(from, to models.GeoPoint) float64 {
	return DistanceKM(from.Latitude, from.Longitude, to.Latitude, to.Longitude)
}

// EstimateMinutes maps a distance and an assumed speed to whole minutes,
// rounding up. A non-positive speed falls back to DefaultSpeedKMH.
func EstimateMinutes(distanceKM, speedKMH float64) int {
	if speedKMH <= 0 {
		speedKMH = DefaultSpeedKMH
	}
	if distanceKM <= 0 {
		return 0
	}
	return int(math.Ceil(distanceKM / speedKMH * 60))
}

// InferSpeedKMH derives a travel speed from two consecutive fixes. When
// the elapsed time is below the noise floor, or the implied speed is
// implausible for road travel, it falls back to DefaultSpeedKMH.
func InferSpeedKMH(prev, curr models.GeoPoint) float64 {
	elapsed := time.Duration(curr.CapturedAt-prev.CapturedAt) * time.Millisecond
	if elapsed < speedNoiseFloor {
		return DefaultSpeedKMH
	}
	speed := PointDistanceKM(prev, curr) / elapsed.Hours()
	if speed < minPlausibleSpeedKMH || speed > maxPlausibleSpeedKMH {
		return DefaultSpeedKMH
	}
	return speed
}

// EstimateFromFixes computes an ETA in minutes from the last two fixes
// of a driver's emitted sequence.
func EstimateFromFixes(prev, curr models.GeoPoint) int {
	distance := PointDistanceKM(prev, curr)
	return EstimateMinutes(distance, InferSpeedKMH(prev, curr))
}
