package emergency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ridetrack/internal/config"
	"ridetrack/internal/geo"
	"ridetrack/internal/models"
	"ridetrack/pkg/safety"
	"ridetrack/pkg/sms"
)

type fakeSafetyClient struct {
	mu         sync.Mutex
	triggerErr error
	cancelErr  error
	triggers   []*safety.TriggerRequest
	cancels    []string
	nextID     int
}

func (c *fakeSafetyClient) TriggerAlert(ctx context.Context, req *safety.TriggerRequest) (*models.EmergencyAlert, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.triggerErr != nil {
		return nil, c.triggerErr
	}
	c.nextID++
	c.triggers = append(c.triggers, req)
	return &models.EmergencyAlert{
		ID:        "E" + string(rune('0'+c.nextID)),
		BookingID: req.BookingID,
		Location:  req.Location,
		Status:    models.AlertStatusActive,
	}, nil
}

func (c *fakeSafetyClient) CancelAlert(ctx context.Context, alertID, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelErr != nil {
		return c.cancelErr
	}
	c.cancels = append(c.cancels, alertID)
	return nil
}

func (c *fakeSafetyClient) triggerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.triggers)
}

func (c *fakeSafetyClient) lastTrigger() *safety.TriggerRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.triggers) == 0 {
		return nil
	}
	return c.triggers[len(c.triggers)-1]
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []*models.AlertAuditEntry
}

func (a *memoryAudit) RecordAlertEvent(ctx context.Context, entry *models.AlertAuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *memoryAudit) has(action models.AlertAuditAction) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.entries {
		if e.Action == action {
			return true
		}
	}
	return false
}

type fakeSMS struct {
	mu   sync.Mutex
	sent []*sms.Message
}

func (f *fakeSMS) SendSMS(ctx context.Context, msg *sms.Message) (*sms.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return &sms.Receipt{To: msg.To, Status: "sent"}, nil
}

func (f *fakeSMS) SendBulk(ctx context.Context, msgs []*sms.Message) []*sms.Receipt {
	out := make([]*sms.Receipt, len(msgs))
	for i, m := range msgs {
		out[i], _ = f.SendSMS(ctx, m)
	}
	return out
}

func (f *fakeSMS) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func testConfig() *config.EmergencyConfig {
	return &config.EmergencyConfig{
		CountdownTicks:  3,
		TickInterval:    5 * time.Millisecond,
		LocationTimeout: 50 * time.Millisecond,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCountdownExpiryTriggersOnce(t *testing.T) {
	client := &fakeSafetyClient{}
	flow := NewFlow(client, testConfig())

	if err := flow.Arm("B1"); err != nil {
		t.Fatalf("arm failed: %v", err)
	}
	if flow.State() != FlowArming {
		t.Fatalf("expected arming, got %s", flow.State())
	}

	waitFor(t, "automatic trigger", func() bool { return flow.State() == FlowActive })
	time.Sleep(20 * time.Millisecond)

	if got := client.triggerCount(); got != 1 {
		t.Fatalf("expected exactly 1 trigger, got %d", got)
	}
	if req := client.lastTrigger(); req.BookingID != "B1" || req.Type != models.AlertTypeSafety {
		t.Fatalf("unexpected trigger request: %+v", req)
	}
	if a := flow.Alert(); a == nil || a.Status != models.AlertStatusActive {
		t.Fatalf("unexpected alert: %+v", flow.Alert())
	}
}

func TestDisarmDuringCountdownNeverCallsService(t *testing.T) {
	client := &fakeSafetyClient{}
	cfg := testConfig()
	cfg.CountdownTicks = 1000
	flow := NewFlow(client, cfg)

	if err := flow.Arm("B1"); err != nil {
		t.Fatalf("arm failed: %v", err)
	}
	if err := flow.Disarm(); err != nil {
		t.Fatalf("disarm failed: %v", err)
	}
	if flow.State() != FlowIdle {
		t.Fatalf("expected idle, got %s", flow.State())
	}

	time.Sleep(50 * time.Millisecond)
	if got := client.triggerCount(); got != 0 {
		t.Fatalf("disarmed flow must not trigger, got %d calls", got)
	}
}

func TestDisarmOutsideCountdownIsNoOp(t *testing.T) {
	flow := NewFlow(&fakeSafetyClient{}, testConfig())
	if err := flow.Disarm(); err != nil {
		t.Fatalf("disarm outside arming must be a no-op, got %v", err)
	}
	if flow.State() != FlowIdle {
		t.Fatalf("expected idle, got %s", flow.State())
	}
}

func TestDisarmRacingExpiryNeverFiresFromIdle(t *testing.T) {
	for i := 0; i < 50; i++ {
		client := &fakeSafetyClient{}
		cfg := testConfig()
		cfg.CountdownTicks = 1
		cfg.TickInterval = time.Millisecond
		flow := NewFlow(client, cfg)

		if err := flow.Arm("B1"); err != nil {
			t.Fatalf("arm failed: %v", err)
		}
		// Land the disarm as close to the expiry instant as possible.
		time.Sleep(time.Millisecond)
		if err := flow.Disarm(); err != nil {
			t.Fatalf("disarm failed: %v", err)
		}

		// Give any handed-off dispatch time to settle.
		time.Sleep(20 * time.Millisecond)
		switch flow.State() {
		case FlowIdle:
			if n := client.triggerCount(); n != 0 {
				t.Fatalf("iteration %d: disarmed flow dispatched %d alerts", i, n)
			}
		case FlowActive:
			// The expiry won the handoff; the alert is live and the
			// disarm was a no-op, which is consistent.
		default:
			t.Fatalf("iteration %d: unexpected state %s", i, flow.State())
		}
	}
}

func TestRearmIsNoOpWhileArming(t *testing.T) {
	client := &fakeSafetyClient{}
	cfg := testConfig()
	cfg.CountdownTicks = 1000
	flow := NewFlow(client, cfg)

	if err := flow.Arm("B1"); err != nil {
		t.Fatalf("arm failed: %v", err)
	}
	if err := flow.Arm("B1"); err != nil {
		t.Fatalf("re-arm while arming should be a no-op, got %v", err)
	}
	flow.Disarm()
}

func TestTriggerWhileActiveRejected(t *testing.T) {
	client := &fakeSafetyClient{}
	flow := NewFlow(client, testConfig())

	if _, err := flow.Trigger(context.Background(), "sos"); err != nil {
		t.Fatalf("trigger failed: %v", err)
	}
	if _, err := flow.Trigger(context.Background(), "sos again"); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
	if got := client.triggerCount(); got != 1 {
		t.Fatalf("expected 1 trigger, got %d", got)
	}
}

func TestDispatchFailureAllowsRetry(t *testing.T) {
	client := &fakeSafetyClient{triggerErr: errors.New("service down")}
	audit := &memoryAudit{}
	flow := NewFlow(client, testConfig(), WithAuditRecorder(audit))

	if _, err := flow.Trigger(context.Background(), "sos"); !errors.Is(err, ErrAlertDispatchFailed) {
		t.Fatalf("expected ErrAlertDispatchFailed, got %v", err)
	}
	if flow.State() != FlowTriggering {
		t.Fatalf("failed dispatch must stay in triggering, got %s", flow.State())
	}
	waitFor(t, "dispatch_failed audit entry", func() bool { return audit.has(models.AlertAuditDispatchFailed) })

	client.mu.Lock()
	client.triggerErr = nil
	client.mu.Unlock()

	if _, err := flow.Trigger(context.Background(), "sos"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if flow.State() != FlowActive {
		t.Fatalf("expected active after retry, got %s", flow.State())
	}
	waitFor(t, "triggered audit entry", func() bool { return audit.has(models.AlertAuditTriggered) })
}

func TestTriggerAttachesLastKnownLocation(t *testing.T) {
	client := &fakeSafetyClient{}
	fix := &models.GeoPoint{Latitude: 12.9716, Longitude: 77.5946, CapturedAt: 4000}
	flow := NewFlow(client, testConfig(), WithLastKnown(func() *models.GeoPoint { return fix }))

	if _, err := flow.Trigger(context.Background(), "sos"); err != nil {
		t.Fatalf("trigger failed: %v", err)
	}
	req := client.lastTrigger()
	if req.Location == nil || req.Location.Latitude != fix.Latitude {
		t.Fatalf("expected last-known location on trigger, got %+v", req.Location)
	}
}

func TestTriggerFallsBackToGeoSource(t *testing.T) {
	client := &fakeSafetyClient{}
	feed := geo.NewFeed()
	feed.Push(models.GeoPoint{Latitude: 12.9, Longitude: 77.6, CapturedAt: time.Now().UnixMilli()})
	flow := NewFlow(client, testConfig(), WithGeoSource(feed))

	if _, err := flow.Trigger(context.Background(), "sos"); err != nil {
		t.Fatalf("trigger failed: %v", err)
	}
	req := client.lastTrigger()
	if req.Location == nil || req.Location.Latitude != 12.9 {
		t.Fatalf("expected geo source fix on trigger, got %+v", req.Location)
	}
}

func TestTriggerProceedsWithoutLocation(t *testing.T) {
	client := &fakeSafetyClient{}
	feed := geo.NewFeed()
	flow := NewFlow(client, testConfig(), WithGeoSource(feed))

	if _, err := flow.Trigger(context.Background(), "sos"); err != nil {
		t.Fatalf("trigger must not fail on a missing fix: %v", err)
	}
	if req := client.lastTrigger(); req.Location != nil {
		t.Fatalf("expected nil location, got %+v", req.Location)
	}
}

func TestTriggerNotifiesContacts(t *testing.T) {
	client := &fakeSafetyClient{}
	smsProv := &fakeSMS{}
	flow := NewFlow(client, testConfig(),
		WithContactNotifier(smsProv, []string{"+15550001111", "+15550002222"}))

	if _, err := flow.Trigger(context.Background(), "sos"); err != nil {
		t.Fatalf("trigger failed: %v", err)
	}
	waitFor(t, "contact notifications", func() bool { return smsProv.count() == 2 })
}

func TestCancelWithdrawsAlert(t *testing.T) {
	client := &fakeSafetyClient{}
	audit := &memoryAudit{}
	flow := NewFlow(client, testConfig(), WithAuditRecorder(audit))

	alert, err := flow.Trigger(context.Background(), "sos")
	if err != nil {
		t.Fatalf("trigger failed: %v", err)
	}
	if err := flow.Cancel(context.Background(), "false alarm"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if flow.State() != FlowCancelled {
		t.Fatalf("expected cancelled, got %s", flow.State())
	}
	if a := flow.Alert(); a.Status != models.AlertStatusCancelled {
		t.Fatalf("expected cancelled alert, got %s", a.Status)
	}

	client.mu.Lock()
	cancelled := len(client.cancels) == 1 && client.cancels[0] == alert.ID
	client.mu.Unlock()
	if !cancelled {
		t.Fatal("expected server-side cancel for the alert")
	}
	waitFor(t, "cancelled audit entry", func() bool { return audit.has(models.AlertAuditCancelled) })
}

func TestCancelHonoursLocalIntentOnNetworkFailure(t *testing.T) {
	client := &fakeSafetyClient{cancelErr: errors.New("timeout")}
	audit := &memoryAudit{}
	flow := NewFlow(client, testConfig(), WithAuditRecorder(audit))

	if _, err := flow.Trigger(context.Background(), "sos"); err != nil {
		t.Fatalf("trigger failed: %v", err)
	}
	if err := flow.Cancel(context.Background(), "false alarm"); err != nil {
		t.Fatalf("local cancel must succeed despite server failure, got %v", err)
	}
	if flow.State() != FlowCancelled {
		t.Fatalf("expected cancelled, got %s", flow.State())
	}
	waitFor(t, "divergence audit entry", func() bool { return audit.has(models.AlertAuditCancelDiverged) })
}

func TestCancelWithoutActiveAlert(t *testing.T) {
	flow := NewFlow(&fakeSafetyClient{}, testConfig())
	if err := flow.Cancel(context.Background(), "nothing"); !errors.Is(err, ErrNoActiveAlert) {
		t.Fatalf("expected ErrNoActiveAlert, got %v", err)
	}
}

func TestNoteResolved(t *testing.T) {
	client := &fakeSafetyClient{}
	flow := NewFlow(client, testConfig())

	if _, err := flow.Trigger(context.Background(), "sos"); err != nil {
		t.Fatalf("trigger failed: %v", err)
	}
	if err := flow.NoteResolved(); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if flow.State() != FlowResolved {
		t.Fatalf("expected resolved, got %s", flow.State())
	}

	// A resolved flow can arm again for a later incident.
	if err := flow.Arm("B2"); err != nil {
		t.Fatalf("re-arm after resolve failed: %v", err)
	}
	flow.Disarm()
}

func TestNewFlowFromConfig(t *testing.T) {
	cfg := &config.Config{
		Safety:    &config.SafetyConfig{BaseURL: "http://safety.local", Timeout: time.Second},
		Emergency: &config.EmergencyConfig{CountdownTicks: 5, TickInterval: time.Second, Contacts: []string{"+15550001111"}},
		SMS: &config.SMSConfig{
			Provider: "twilio",
			Twilio:   &config.TwilioConfig{AccountSID: "AC1", AuthToken: "tok", FromNumber: "+15550000000"},
		},
	}

	flow, err := NewFlowFromConfig(cfg)
	if err != nil {
		t.Fatalf("assembly failed: %v", err)
	}
	if flow.client == nil || flow.smsProv == nil {
		t.Fatal("expected safety client and sms provider wired")
	}
	if len(flow.contacts) != 1 {
		t.Fatalf("expected contacts from config, got %v", flow.contacts)
	}
	if flow.cfg.CountdownTicks != 5 {
		t.Fatalf("expected countdown config carried, got %d", flow.cfg.CountdownTicks)
	}
}

func TestNewFlowFromConfigRejectsUnknownSMSProvider(t *testing.T) {
	cfg := &config.Config{
		Safety:    &config.SafetyConfig{BaseURL: "http://safety.local", Timeout: time.Second},
		Emergency: &config.EmergencyConfig{CountdownTicks: 5, TickInterval: time.Second},
		SMS:       &config.SMSConfig{Provider: "pigeon"},
	}
	if _, err := NewFlowFromConfig(cfg); err == nil {
		t.Fatal("expected error for unknown sms provider")
	}
}

func TestTickCallbackReportsProgress(t *testing.T) {
	client := &fakeSafetyClient{}
	var mu sync.Mutex
	var ticks []int
	flow := NewFlow(client, testConfig(), WithTickCallback(func(remaining int) {
		mu.Lock()
		ticks = append(ticks, remaining)
		mu.Unlock()
	}))

	if err := flow.Arm("B1"); err != nil {
		t.Fatalf("arm failed: %v", err)
	}
	waitFor(t, "countdown expiry", func() bool { return flow.State() == FlowActive })

	mu.Lock()
	defer mu.Unlock()
	if len(ticks) != 3 || ticks[len(ticks)-1] != 0 {
		t.Fatalf("unexpected tick sequence: %v", ticks)
	}
}
