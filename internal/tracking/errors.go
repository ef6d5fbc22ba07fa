package tracking

import "errors"

var (
	// ErrNotActive fails operations that require a running session.
	ErrNotActive = errors.New("tracking: session not active")

	// ErrStatusRegression rejects a ride status transition that moves
	// backwards in the lifecycle.
	ErrStatusRegression = errors.New("tracking: ride status moving backwards")

	// ErrInvalidStatus rejects a status outside the known lifecycle.
	ErrInvalidStatus = errors.New("tracking: unknown ride status")
)
