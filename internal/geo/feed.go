package geo

import (
	"sync"
	"time"

	"ridetrack/internal/models"
)

// Feed is a Source fed by an external platform bridge: the mobile shell
// (or a test) pushes fixes in with Push, and sessions consume them
// through the Source contract. One Feed instance is owned per session,
// injected at construction.
type Feed struct {
	mu       sync.Mutex
	last     *models.GeoPoint
	denied   bool
	deniedCh chan struct{}
	watchers map[*watcher]struct{}
	waiters  map[chan models.GeoPoint]struct{}
}

type watcher struct {
	mu       sync.Mutex // held while delivering; Cancel waits on it
	active   bool
	onUpdate func(models.GeoPoint)
	onError  func(error)
}

func NewFeed() *Feed {
	return &Feed{
		deniedCh: make(chan struct{}),
		watchers: make(map[*watcher]struct{}),
		waiters:  make(map[chan models.GeoPoint]struct{}),
	}
}

// Push delivers a new fix to every watcher and any pending one-shot
// fetch. Fixes pushed after Deny are discarded.
func (f *Feed) Push(p models.GeoPoint) {
	f.mu.Lock()
	if f.denied {
		f.mu.Unlock()
		return
	}
	f.last = &p
	snapshot := make([]*watcher, 0, len(f.watchers))
	for w := range f.watchers {
		snapshot = append(snapshot, w)
	}
	for ch := range f.waiters {
		ch <- p
		delete(f.waiters, ch)
	}
	f.mu.Unlock()

	for _, w := range snapshot {
		w.deliver(p)
	}
}

// Fail reports a transient sensor failure to every watcher.
func (f *Feed) Fail(err error) {
	f.mu.Lock()
	snapshot := make([]*watcher, 0, len(f.watchers))
	for w := range f.watchers {
		snapshot = append(snapshot, w)
	}
	f.mu.Unlock()

	for _, w := range snapshot {
		w.fail(err)
	}
}

// Deny marks the source terminally denied: watchers receive
// ErrPermissionDenied once, pending and future fetches fail.
func (f *Feed) Deny() {
	f.mu.Lock()
	if f.denied {
		f.mu.Unlock()
		return
	}
	f.denied = true
	close(f.deniedCh)
	snapshot := make([]*watcher, 0, len(f.watchers))
	for w := range f.watchers {
		snapshot = append(snapshot, w)
		delete(f.watchers, w)
	}
	for ch := range f.waiters {
		delete(f.waiters, ch)
	}
	f.mu.Unlock()

	for _, w := range snapshot {
		w.fail(ErrPermissionDenied)
	}
}

func (f *Feed) Current(opts Options) (models.GeoPoint, error) {
	f.mu.Lock()
	if f.denied {
		f.mu.Unlock()
		return models.GeoPoint{}, ErrPermissionDenied
	}
	if f.last != nil && opts.MaxStaleness > 0 && f.last.Age(time.Now()) <= opts.MaxStaleness {
		p := *f.last
		f.mu.Unlock()
		return p, nil
	}
	if opts.Timeout <= 0 {
		f.mu.Unlock()
		return models.GeoPoint{}, ErrUnavailable
	}
	ch := make(chan models.GeoPoint, 1)
	f.waiters[ch] = struct{}{}
	f.mu.Unlock()

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()

	select {
	case p := <-ch:
		return p, nil
	case <-f.deniedCh:
		return models.GeoPoint{}, ErrPermissionDenied
	case <-timer.C:
		f.mu.Lock()
		delete(f.waiters, ch)
		f.mu.Unlock()
		// A push may have raced the timer.
		select {
		case p := <-ch:
			return p, nil
		default:
		}
		return models.GeoPoint{}, ErrTimeout
	}
}

func (f *Feed) Watch(opts Options, onUpdate func(models.GeoPoint), onError func(error)) (*Watch, error) {
	f.mu.Lock()
	if f.denied {
		f.mu.Unlock()
		return nil, ErrPermissionDenied
	}
	w := &watcher{active: true, onUpdate: onUpdate, onError: onError}
	f.watchers[w] = struct{}{}
	var replay *models.GeoPoint
	if f.last != nil && opts.MaxStaleness > 0 && f.last.Age(time.Now()) <= opts.MaxStaleness {
		p := *f.last
		replay = &p
	}
	f.mu.Unlock()

	if replay != nil {
		w.deliver(*replay)
	}

	return newWatch(func() {
		f.mu.Lock()
		delete(f.watchers, w)
		f.mu.Unlock()
		// Waits out an in-flight delivery so no update lands after
		// Cancel returns.
		w.mu.Lock()
		w.active = false
		w.mu.Unlock()
	}), nil
}

func (w *watcher) deliver(p models.GeoPoint) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active {
		return
	}
	w.onUpdate(p)
}

func (w *watcher) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active {
		return
	}
	if w.onError != nil {
		w.onError(err)
	}
	if err == ErrPermissionDenied {
		w.active = false
	}
}
