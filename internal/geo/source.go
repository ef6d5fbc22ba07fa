package geo

import (
	"errors"
	"sync"
	"time"

	"ridetrack/internal/models"
)

var (
	// ErrPermissionDenied is terminal for the source: callers must surface
	// it as a fatal session condition, never retry silently.
	ErrPermissionDenied = errors.New("geo: location permission denied")
	ErrUnavailable      = errors.New("geo: position unavailable")
	ErrTimeout          = errors.New("geo: position fetch timed out")
)

type Accuracy int

const (
	AccuracyLow Accuracy = iota
	AccuracyHigh
)

// Options bound a one-shot fetch or a watch subscription.
type Options struct {
	Accuracy Accuracy
	// MaxStaleness allows a cached fix younger than this to be returned
	// without a new sensor read.
	MaxStaleness time.Duration
	// Timeout bounds a one-shot fetch.
	Timeout time.Duration
}

// Source wraps platform geolocation: one-shot fetch plus continuous
// position-change subscription.
type Source interface {
	// Current returns a position fix within opts.Timeout. A cached fix
	// younger than opts.MaxStaleness may be returned immediately.
	Current(opts Options) (models.GeoPoint, error)

	// Watch delivers position updates to onUpdate until the returned
	// handle is cancelled. Terminal failures (permission denial) arrive
	// on onError and end delivery.
	Watch(opts Options, onUpdate func(models.GeoPoint), onError func(error)) (*Watch, error)
}

// Watch is a cancellable subscription handle. Cancel is idempotent and
// synchronous: no update is delivered after Cancel returns.
type Watch struct {
	once   sync.Once
	cancel func()
}

func newWatch(cancel func()) *Watch {
	return &Watch{cancel: cancel}
}

func (w *Watch) Cancel() {
	if w == nil {
		return
	}
	w.once.Do(w.cancel)
}
