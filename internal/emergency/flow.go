package emergency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ridetrack/internal/config"
	"ridetrack/internal/geo"
	"ridetrack/internal/models"
	"ridetrack/pkg/logger"
	"ridetrack/pkg/safety"
	"ridetrack/pkg/sms"
)

type FlowState int32

const (
	FlowIdle FlowState = iota
	FlowArming
	FlowTriggering
	FlowActive
	FlowCancelled
	FlowResolved
)

func (s FlowState) String() string {
	switch s {
	case FlowIdle:
		return "idle"
	case FlowArming:
		return "arming"
	case FlowTriggering:
		return "triggering"
	case FlowActive:
		return "active"
	case FlowCancelled:
		return "cancelled"
	case FlowResolved:
		return "resolved"
	}
	return "unknown"
}

// AuditRecorder persists alert lifecycle transitions for later review.
type AuditRecorder interface {
	RecordAlertEvent(ctx context.Context, entry *models.AlertAuditEntry) error
}

// Flow drives a single user's SOS lifecycle: a cancellable countdown,
// the trigger call to the safety service, contact notification, and
// cancellation. The alert record itself is owned by the safety service;
// the flow only mirrors it.
type Flow struct {
	client   safety.Client
	src      geo.Source
	smsProv  sms.Provider
	audit    AuditRecorder
	log      *logger.Logger
	cfg      *config.EmergencyConfig
	contacts []string

	// lastKnown, when set, supplies the most recent broadcast fix so a
	// trigger does not wait on a fresh sensor read.
	lastKnown func() *models.GeoPoint
	onTick    func(remaining int)

	mu         sync.Mutex
	state      FlowState
	generation uint64
	ticksLeft  int
	inFlight   bool
	bookingID  string
	alert      *models.EmergencyAlert
}

type FlowOption func(*Flow)

func WithLogger(log *logger.Logger) FlowOption {
	return func(f *Flow) { f.log = log }
}

func WithGeoSource(src geo.Source) FlowOption {
	return func(f *Flow) { f.src = src }
}

func WithLastKnown(fn func() *models.GeoPoint) FlowOption {
	return func(f *Flow) { f.lastKnown = fn }
}

func WithContactNotifier(prov sms.Provider, contacts []string) FlowOption {
	return func(f *Flow) {
		f.smsProv = prov
		f.contacts = contacts
	}
}

func WithAuditRecorder(rec AuditRecorder) FlowOption {
	return func(f *Flow) { f.audit = rec }
}

// WithTickCallback reports countdown progress, remaining ticks after
// each one. Called outside the flow lock.
func WithTickCallback(fn func(remaining int)) FlowOption {
	return func(f *Flow) { f.onTick = fn }
}

func NewFlow(client safety.Client, cfg *config.EmergencyConfig, opts ...FlowOption) *Flow {
	if cfg == nil {
		cfg = &config.EmergencyConfig{
			CountdownTicks:  10,
			TickInterval:    time.Second,
			LocationTimeout: 5 * time.Second,
		}
	}
	f := &Flow{
		client: client,
		cfg:    cfg,
		state:  FlowIdle,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = logger.Discard()
	}
	if len(f.contacts) == 0 {
		f.contacts = cfg.Contacts
	}
	return f
}

// NewFlowFromConfig assembles a flow from application config: the
// safety-service client, the configured SMS backend for contact
// notification, and the countdown parameters.
func NewFlowFromConfig(cfg *config.Config, opts ...FlowOption) (*Flow, error) {
	client := safety.NewHTTPClient(cfg.Safety.BaseURL, cfg.Safety.Timeout)

	if cfg.SMS != nil && cfg.SMS.Provider != "" {
		prov, err := sms.NewProvider(cfg.SMS)
		if err != nil {
			return nil, err
		}
		opts = append([]FlowOption{WithContactNotifier(prov, cfg.Emergency.Contacts)}, opts...)
	}

	return NewFlow(client, cfg.Emergency, opts...), nil
}

// Arm starts the countdown. When it expires without a Disarm the alert
// triggers automatically. Arming while a countdown is already running
// is a no-op; arming over a live alert is rejected.
func (f *Flow) Arm(bookingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case FlowTriggering, FlowActive:
		return ErrAlreadyActive
	case FlowArming:
		return nil
	}

	f.state = FlowArming
	f.bookingID = bookingID
	f.ticksLeft = f.cfg.CountdownTicks
	f.alert = nil
	f.generation++

	go f.countdown(f.generation)
	return nil
}

// Disarm stops the countdown before it fires. Outside the arming window
// it is a no-op: a countdown that already expired has handed off to the
// trigger path, and a live alert must go through Cancel.
func (f *Flow) Disarm() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != FlowArming {
		return nil
	}
	f.state = FlowIdle
	f.generation++
	return nil
}

func (f *Flow) countdown(gen uint64) {
	ticker := time.NewTicker(f.cfg.TickInterval)
	defer ticker.Stop()

	for range ticker.C {
		f.mu.Lock()
		if f.generation != gen || f.state != FlowArming {
			f.mu.Unlock()
			return
		}
		f.ticksLeft--
		remaining := f.ticksLeft
		onTick := f.onTick
		f.mu.Unlock()

		if onTick != nil {
			onTick(remaining)
		}
		if remaining <= 0 {
			// The handoff to triggering happens inside the expiry
			// check: a Disarm that wins the lock first still cancels,
			// and one that loses observes triggering, never idle with
			// a dispatch in flight.
			f.mu.Lock()
			if f.generation != gen || f.state != FlowArming || f.inFlight {
				f.mu.Unlock()
				return
			}
			f.inFlight = true
			f.state = FlowTriggering
			f.generation++
			bookingID := f.bookingID
			f.mu.Unlock()

			ctx, cancel := context.WithTimeout(context.Background(), f.cfg.LocationTimeout+10*time.Second)
			if _, err := f.dispatch(ctx, bookingID, "countdown expired"); err != nil {
				f.log.WithError(err).Error("Automatic emergency trigger failed")
			}
			cancel()
			return
		}
	}
}

// Trigger raises the alert now, skipping any remaining countdown. A
// dispatch failure leaves the flow in triggering so the caller may
// retry; only one trigger call runs at a time.
func (f *Flow) Trigger(ctx context.Context, description string) (*models.EmergencyAlert, error) {
	f.mu.Lock()
	if f.state == FlowActive || f.inFlight {
		f.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	f.inFlight = true
	f.state = FlowTriggering
	f.generation++
	bookingID := f.bookingID
	f.mu.Unlock()

	return f.dispatch(ctx, bookingID, description)
}

// dispatch performs the safety-service call. The caller has already
// moved the flow to triggering and claimed the in-flight slot.
func (f *Flow) dispatch(ctx context.Context, bookingID, description string) (*models.EmergencyAlert, error) {
	defer func() {
		f.mu.Lock()
		f.inFlight = false
		f.mu.Unlock()
	}()

	loc := f.snapshotLocation()

	alert, err := f.client.TriggerAlert(ctx, &safety.TriggerRequest{
		Type:        models.AlertTypeSafety,
		BookingID:   bookingID,
		Location:    loc,
		Description: description,
	})
	if err != nil {
		f.log.WithBookingID(bookingID).WithError(err).Error("Emergency alert dispatch failed")
		f.recordAudit("", bookingID, models.AlertAuditDispatchFailed, loc, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrAlertDispatchFailed, err)
	}

	f.mu.Lock()
	f.state = FlowActive
	f.alert = alert
	f.mu.Unlock()

	f.log.LogAlertEvent(alert.ID, "triggered", map[string]interface{}{
		"booking_id":   bookingID,
		"has_location": loc != nil,
	})
	f.recordAudit(alert.ID, bookingID, models.AlertAuditTriggered, loc, description)
	f.notifyContacts(alert, loc)

	return alert, nil
}

// snapshotLocation attaches a position to the alert on a best-effort
// basis. A missing fix never delays the trigger.
func (f *Flow) snapshotLocation() *models.GeoPoint {
	if f.lastKnown != nil {
		if p := f.lastKnown(); p != nil {
			return p
		}
	}
	if f.src == nil {
		return nil
	}
	p, err := f.src.Current(geo.Options{
		Accuracy:     geo.AccuracyHigh,
		MaxStaleness: f.cfg.LocationTimeout,
		Timeout:      f.cfg.LocationTimeout,
	})
	if err != nil {
		f.log.WithError(err).Warn("Triggering alert without location")
		return nil
	}
	return &p
}

// Cancel withdraws a live alert. When the safety service cannot be
// reached the local state still flips to cancelled: the user said stop,
// and the divergence is logged for reconciliation.
func (f *Flow) Cancel(ctx context.Context, reason string) error {
	f.mu.Lock()
	if f.state != FlowActive || f.alert == nil {
		f.mu.Unlock()
		return ErrNoActiveAlert
	}
	alert := f.alert
	f.mu.Unlock()

	err := f.client.CancelAlert(ctx, alert.ID, reason)

	f.mu.Lock()
	f.state = FlowCancelled
	f.alert.Status = models.AlertStatusCancelled
	bookingID := f.bookingID
	f.mu.Unlock()

	if err != nil {
		f.log.WithAlertID(alert.ID).WithError(err).Warn("Alert cancelled locally, server cancel failed")
		f.recordAudit(alert.ID, bookingID, models.AlertAuditCancelDiverged, nil, err.Error())
		return nil
	}

	f.log.LogAlertEvent(alert.ID, "cancelled", map[string]interface{}{"reason": reason})
	f.recordAudit(alert.ID, bookingID, models.AlertAuditCancelled, nil, reason)
	return nil
}

// NoteResolved records that responders closed the alert server-side.
func (f *Flow) NoteResolved() error {
	f.mu.Lock()
	if f.state != FlowActive || f.alert == nil {
		f.mu.Unlock()
		return ErrNoActiveAlert
	}
	f.state = FlowResolved
	f.alert.Status = models.AlertStatusResolved
	alertID := f.alert.ID
	bookingID := f.bookingID
	f.mu.Unlock()

	f.recordAudit(alertID, bookingID, models.AlertAuditResolved, nil, "")
	return nil
}

func (f *Flow) notifyContacts(alert *models.EmergencyAlert, loc *models.GeoPoint) {
	if f.smsProv == nil || len(f.contacts) == 0 {
		return
	}

	body := "Emergency alert raised from a ride in progress."
	if loc != nil {
		body = fmt.Sprintf("Emergency alert raised. Last position: %.5f,%.5f", loc.Latitude, loc.Longitude)
	}
	msgs := make([]*sms.Message, len(f.contacts))
	for i, to := range f.contacts {
		msgs[i] = &sms.Message{To: to, Body: body}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for _, r := range f.smsProv.SendBulk(ctx, msgs) {
			if r.Status == "failed" {
				f.log.WithAlertID(alert.ID).WithField("to", r.To).Warn("Contact notification failed")
			}
		}
	}()
}

func (f *Flow) recordAudit(alertID, bookingID string, action models.AlertAuditAction, loc *models.GeoPoint, detail string) {
	if f.audit == nil {
		return
	}
	entry := &models.AlertAuditEntry{
		AlertID:   alertID,
		BookingID: bookingID,
		Action:    action,
		Location:  loc,
		Detail:    detail,
		CreatedAt: time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := f.audit.RecordAlertEvent(ctx, entry); err != nil {
			f.log.WithAlertID(alertID).WithError(err).Warn("Failed to record alert audit entry")
		}
	}()
}

func (f *Flow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// TicksRemaining reports countdown progress, zero outside arming.
func (f *Flow) TicksRemaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != FlowArming {
		return 0
	}
	return f.ticksLeft
}

// Alert returns the mirrored alert record, nil before the first trigger.
func (f *Flow) Alert() *models.EmergencyAlert {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.alert == nil {
		return nil
	}
	a := *f.alert
	return &a
}
