package models

type RideStatus string

const (
	RideStatusNotStarted      RideStatus = "not_started"
	RideStatusOnWayToPickup   RideStatus = "on_way_to_pickup"
	RideStatusArrivedAtPickup RideStatus = "arrived_at_pickup"
	RideStatusStarted         RideStatus = "ride_started"
	RideStatusCompleted       RideStatus = "completed"
)

// rideStatusRank defines the total order of the ride lifecycle.
var rideStatusRank = map[RideStatus]int{
	RideStatusNotStarted:      0,
	RideStatusOnWayToPickup:   1,
	RideStatusArrivedAtPickup: 2,
	RideStatusStarted:         3,
	RideStatusCompleted:       4,
}

func (s RideStatus) IsValid() bool {
	_, ok := rideStatusRank[s]
	return ok
}

func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted
}

// CanTransitionTo reports whether moving from s to next respects the
// lifecycle order. Transitions only need to be non-decreasing: skipping
// intermediate states is allowed, going backwards is not.
func (s RideStatus) CanTransitionTo(next RideStatus) bool {
	from, ok := rideStatusRank[s]
	if !ok {
		return false
	}
	to, ok := rideStatusRank[next]
	if !ok {
		return false
	}
	return to >= from
}
