package rides

import (
	"context"
	"sync"
)

// StaticDirectory is an in-memory booking-to-ride map for local runs
// without a ride service.
type StaticDirectory struct {
	mu       sync.RWMutex
	bookings map[string]string
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{bookings: make(map[string]string)}
}

func (d *StaticDirectory) Bind(bookingID, rideID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bookings[bookingID] = rideID
}

func (d *StaticDirectory) RideForBooking(ctx context.Context, bookingID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rideID, ok := d.bookings[bookingID]
	if !ok {
		return "", ErrNotFound
	}
	return rideID, nil
}
