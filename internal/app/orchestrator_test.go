package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"alertcenter/internal/channel"
	"alertcenter/internal/clock"
	"alertcenter/internal/domain"
	"alertcenter/internal/store"
)

type fakeChannel struct {
	name     string
	enabled  bool
	failWith string

	mu        sync.Mutex
	delivered []domain.Notification
	users     []string
}

func (f *fakeChannel) Name() string  { return f.name }
func (f *fakeChannel) Enabled() bool { return f.enabled }

func (f *fakeChannel) Deliver(_ context.Context, notification domain.Notification, recipient domain.Recipient) channel.DeliveryResult {
	if f.failWith != "" {
		return channel.DeliveryResult{Delivered: false, Error: f.failWith}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, notification)
	f.users = append(f.users, recipient.ID)
	return channel.DeliveryResult{Delivered: true}
}

func (f *fakeChannel) deliveredUsers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.users))
	copy(out, f.users)
	return out
}

type orchestratorFixture struct {
	store        *store.MemoryStore
	orchestrator *Orchestrator
	primary      *fakeChannel
	secondary    *fakeChannel
	now          *time.Time
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	fixture := &orchestratorFixture{
		store:     store.NewMemoryStore(),
		primary:   &fakeChannel{name: "primary", enabled: true},
		secondary: &fakeChannel{name: "secondary", enabled: true},
		now:       &now,
	}

	registry := channel.NewRegistry(fixture.primary, fixture.secondary)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fixture.orchestrator = NewOrchestrator(fixture.store, registry, clock.Func(func() time.Time { return *fixture.now }), OrchestratorOptions{
		ReminderInterval: 2 * time.Hour,
		DefaultSnooze:    24 * time.Hour,
		MaxSnooze:        168 * time.Hour,
	}, logger)
	return fixture
}

func (f *orchestratorFixture) seed(t *testing.T, alert domain.Alert, recipients ...domain.Recipient) {
	t.Helper()
	if err := f.store.CreateAlert(context.Background(), alert); err != nil {
		t.Fatalf("create alert: %v", err)
	}
	for _, recipient := range recipients {
		if err := f.store.PutRecipient(context.Background(), recipient); err != nil {
			t.Fatalf("put recipient %q: %v", recipient.ID, err)
		}
	}
}

func (f *orchestratorFixture) advance(d time.Duration) {
	*f.now = f.now.Add(d)
}

func orgAlert(id string) domain.Alert {
	return domain.Alert{
		ID:               id,
		Title:            "incident declared",
		Message:          "api error rate above threshold",
		Severity:         domain.SeverityCritical,
		Visibility:       domain.VisibilityOrganization,
		RemindersEnabled: true,
	}
}

func TestDeliverAlertFansOutToAllRecipientsAndChannels(t *testing.T) {
	t.Parallel()

	fixture := newOrchestratorFixture(t)
	fixture.seed(t, orgAlert("a1"),
		domain.Recipient{ID: "u1"},
		domain.Recipient{ID: "u2"},
		domain.Recipient{ID: "u3"},
	)

	if err := fixture.orchestrator.DeliverAlert(context.Background(), "a1"); err != nil {
		t.Fatalf("deliver alert: %v", err)
	}

	if len(fixture.primary.users) != 3 || len(fixture.secondary.users) != 3 {
		t.Fatalf("expected 3 deliveries per channel, got %d/%d",
			len(fixture.primary.users), len(fixture.secondary.users))
	}

	rows, err := fixture.store.ListDeliveries(context.Background(), "a1", "")
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(rows) != 6 {
		t.Fatalf("expected 6 delivery rows, got %d", len(rows))
	}

	for _, userID := range []string{"u1", "u2", "u3"} {
		if _, err := fixture.store.GetPreference(context.Background(), userID, "a1"); err != nil {
			t.Fatalf("expected preference row for %q: %v", userID, err)
		}
	}
}

func TestDeliverAlertRecordsChannelFailuresAndContinues(t *testing.T) {
	t.Parallel()

	fixture := newOrchestratorFixture(t)
	fixture.primary.failWith = "smtp unreachable"
	fixture.seed(t, orgAlert("a1"), domain.Recipient{ID: "u1"})

	if err := fixture.orchestrator.DeliverAlert(context.Background(), "a1"); err != nil {
		t.Fatalf("deliver alert: %v", err)
	}

	rows, err := fixture.store.ListDeliveries(context.Background(), "a1", "u1")
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected both channels recorded, got %d", len(rows))
	}
	statuses := map[string]domain.DeliveryStatus{}
	for _, row := range rows {
		statuses[row.Channel] = row.Status
	}
	if statuses["primary"] != domain.DeliveryStatusFailed {
		t.Fatalf("expected primary failure recorded, got %v", statuses)
	}
	if statuses["secondary"] != domain.DeliveryStatusDelivered {
		t.Fatalf("expected secondary delivery recorded, got %v", statuses)
	}
	if rows[0].Metadata["error"] == "" && rows[1].Metadata["error"] == "" {
		t.Fatalf("expected failure reason in metadata")
	}
}

func TestDeliverAlertVisibilityScoping(t *testing.T) {
	t.Parallel()

	fixture := newOrchestratorFixture(t)
	alert := orgAlert("a1")
	alert.Visibility = domain.VisibilityTeam
	alert.VisibilityTarget = "sre"
	fixture.seed(t, alert,
		domain.Recipient{ID: "u1", TeamID: "sre"},
		domain.Recipient{ID: "u2", TeamID: "billing"},
		domain.Recipient{ID: "u3", TeamID: "sre"},
	)

	if err := fixture.orchestrator.DeliverAlert(context.Background(), "a1"); err != nil {
		t.Fatalf("deliver alert: %v", err)
	}
	if len(fixture.primary.users) != 2 {
		t.Fatalf("expected only sre team members, got %v", fixture.primary.users)
	}
	for _, userID := range fixture.primary.users {
		if userID == "u2" {
			t.Fatalf("billing member must not receive team alert")
		}
	}
}

func TestDeliverAlertRejectsMissingAndArchived(t *testing.T) {
	t.Parallel()

	fixture := newOrchestratorFixture(t)
	if err := fixture.orchestrator.DeliverAlert(context.Background(), "ghost"); !store.IsNotFound(err) {
		t.Fatalf("expected not found for missing alert, got %v", err)
	}

	fixture.seed(t, orgAlert("a1"), domain.Recipient{ID: "u1"})
	if err := fixture.store.ArchiveAlert(context.Background(), "a1", *fixture.now); err != nil {
		t.Fatalf("archive alert: %v", err)
	}
	if err := fixture.orchestrator.DeliverAlert(context.Background(), "a1"); !store.IsNotFound(err) {
		t.Fatalf("expected not found for archived alert, got %v", err)
	}
}

func TestDeliverToUserSkipsExpiredWithoutError(t *testing.T) {
	t.Parallel()

	fixture := newOrchestratorFixture(t)
	alert := orgAlert("a1")
	expiry := fixture.now.Add(-time.Minute)
	alert.ExpiresAt = &expiry
	fixture.seed(t, alert, domain.Recipient{ID: "u1"})

	if err := fixture.orchestrator.DeliverToUser(context.Background(), "a1", "u1"); err != nil {
		t.Fatalf("expected silent no-op, got %v", err)
	}
	if len(fixture.primary.users) != 0 {
		t.Fatalf("expected no delivery for expired alert")
	}
	rows, err := fixture.store.ListDeliveries(context.Background(), "a1", "u1")
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no delivery rows, got %d", len(rows))
	}
}

func TestProcessRemindersSpacing(t *testing.T) {
	t.Parallel()

	fixture := newOrchestratorFixture(t)
	fixture.seed(t, orgAlert("a1"), domain.Recipient{ID: "u1"})

	if err := fixture.orchestrator.DeliverAlert(context.Background(), "a1"); err != nil {
		t.Fatalf("initial delivery: %v", err)
	}
	if len(fixture.primary.users) != 1 {
		t.Fatalf("expected initial delivery")
	}

	fixture.advance(60 * time.Minute)
	if err := fixture.orchestrator.ProcessReminders(context.Background()); err != nil {
		t.Fatalf("reminder pass: %v", err)
	}
	if len(fixture.primary.users) != 1 {
		t.Fatalf("expected no reminder before the interval elapses")
	}

	fixture.advance(61 * time.Minute)
	if err := fixture.orchestrator.ProcessReminders(context.Background()); err != nil {
		t.Fatalf("reminder pass: %v", err)
	}
	if len(fixture.primary.users) != 2 {
		t.Fatalf("expected one reminder after the interval, got %d deliveries", len(fixture.primary.users))
	}

	// A second pass at the same instant must not double-remind.
	if err := fixture.orchestrator.ProcessReminders(context.Background()); err != nil {
		t.Fatalf("repeat reminder pass: %v", err)
	}
	if len(fixture.primary.users) != 2 {
		t.Fatalf("expected reminder spacing to reset, got %d deliveries", len(fixture.primary.users))
	}
}

func TestProcessRemindersNeverDeliveredWaitsOneInterval(t *testing.T) {
	t.Parallel()

	fixture := newOrchestratorFixture(t)
	fixture.seed(t, orgAlert("a1"), domain.Recipient{ID: "u1"})

	if err := fixture.orchestrator.ProcessReminders(context.Background()); err != nil {
		t.Fatalf("reminder pass: %v", err)
	}
	if len(fixture.primary.users) != 0 {
		t.Fatalf("expected no immediate reminder for a never-delivered alert")
	}
}

func TestProcessRemindersSkipsReadAndSnoozed(t *testing.T) {
	t.Parallel()

	fixture := newOrchestratorFixture(t)
	fixture.seed(t, orgAlert("a1"),
		domain.Recipient{ID: "reader"},
		domain.Recipient{ID: "sleeper"},
		domain.Recipient{ID: "active"},
	)

	if err := fixture.orchestrator.DeliverAlert(context.Background(), "a1"); err != nil {
		t.Fatalf("initial delivery: %v", err)
	}
	if err := fixture.orchestrator.MarkAsRead(context.Background(), "reader", "a1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := fixture.orchestrator.Snooze(context.Background(), "sleeper", "a1", 0); err != nil {
		t.Fatalf("snooze: %v", err)
	}

	fixture.advance(3 * time.Hour)
	if err := fixture.orchestrator.ProcessReminders(context.Background()); err != nil {
		t.Fatalf("reminder pass: %v", err)
	}

	reminded := fixture.primary.users[3:]
	if len(reminded) != 1 || reminded[0] != "active" {
		t.Fatalf("expected only the active user reminded, got %v", reminded)
	}

	// The default snooze is 24h; once it elapses reminders resume.
	fixture.advance(22 * time.Hour)
	if err := fixture.orchestrator.ProcessReminders(context.Background()); err != nil {
		t.Fatalf("reminder pass after snooze: %v", err)
	}
	resumed := fixture.primary.users[4:]
	found := false
	for _, userID := range resumed {
		if userID == "sleeper" {
			found = true
		}
		if userID == "reader" {
			t.Fatalf("read alerts must never be reminded")
		}
	}
	if !found {
		t.Fatalf("expected sleeper reminded after snooze elapsed, got %v", resumed)
	}
}

func TestSnoozeClampsToMaximum(t *testing.T) {
	t.Parallel()

	fixture := newOrchestratorFixture(t)
	fixture.seed(t, orgAlert("a1"), domain.Recipient{ID: "u1"})

	if err := fixture.orchestrator.Snooze(context.Background(), "u1", "a1", 500); err != nil {
		t.Fatalf("snooze: %v", err)
	}

	pref, err := fixture.store.GetPreference(context.Background(), "u1", "a1")
	if err != nil {
		t.Fatalf("get preference: %v", err)
	}
	want := fixture.now.Add(168 * time.Hour)
	if pref.SnoozedUntil == nil || !pref.SnoozedUntil.Equal(want) {
		t.Fatalf("expected snooze clamped to %v, got %v", want, pref.SnoozedUntil)
	}
}

func TestDeliverIsNoOpForReadRecipients(t *testing.T) {
	t.Parallel()

	fixture := newOrchestratorFixture(t)
	fixture.seed(t, orgAlert("a1"), domain.Recipient{ID: "u1"})

	if err := fixture.orchestrator.DeliverAlert(context.Background(), "a1"); err != nil {
		t.Fatalf("initial delivery: %v", err)
	}
	rows, err := fixture.store.ListDeliveries(context.Background(), "a1", "u1")
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	before := len(rows)
	if before == 0 {
		t.Fatalf("expected initial delivery rows")
	}

	if err := fixture.orchestrator.MarkAsRead(context.Background(), "u1", "a1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	if err := fixture.orchestrator.DeliverToUser(context.Background(), "a1", "u1"); err != nil {
		t.Fatalf("redeliver to read user: %v", err)
	}
	if err := fixture.orchestrator.DeliverAlert(context.Background(), "a1"); err != nil {
		t.Fatalf("refan-out: %v", err)
	}

	rows, err = fixture.store.ListDeliveries(context.Background(), "a1", "u1")
	if err != nil {
		t.Fatalf("list deliveries after read: %v", err)
	}
	if len(rows) != before {
		t.Fatalf("read recipient re-delivered: rows %d -> %d", before, len(rows))
	}
}

// recordFailStore fails RecordDelivery for one user to exercise fan-out isolation.
type recordFailStore struct {
	store.Store
	failUser string
}

func (s *recordFailStore) RecordDelivery(ctx context.Context, delivery domain.Delivery) error {
	if delivery.UserID == s.failUser {
		return errors.New("kv write rejected")
	}
	return s.Store.RecordDelivery(ctx, delivery)
}

func TestDeliverAlertIsolatesRecipientStoreFailures(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	backing := store.NewMemoryStore()
	failing := &recordFailStore{Store: backing, failUser: "u1"}
	sink := &fakeChannel{name: "sink", enabled: true}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orchestrator := NewOrchestrator(failing, channel.NewRegistry(sink), clock.Func(func() time.Time { return now }), OrchestratorOptions{
		ReminderInterval: 2 * time.Hour,
		DefaultSnooze:    24 * time.Hour,
		MaxSnooze:        168 * time.Hour,
	}, logger)

	if err := backing.CreateAlert(context.Background(), orgAlert("a1")); err != nil {
		t.Fatalf("create alert: %v", err)
	}
	for _, id := range []string{"u1", "u2", "u3"} {
		if err := backing.PutRecipient(context.Background(), domain.Recipient{ID: id}); err != nil {
			t.Fatalf("put recipient %q: %v", id, err)
		}
	}

	if err := orchestrator.DeliverAlert(context.Background(), "a1"); err != nil {
		t.Fatalf("expected fan-out to absorb the recipient failure, got %v", err)
	}

	if users := sink.deliveredUsers(); len(users) != 3 {
		t.Fatalf("expected all recipients processed, channel saw %v", users)
	}
	for _, id := range []string{"u2", "u3"} {
		rows, err := backing.ListDeliveries(context.Background(), "a1", id)
		if err != nil {
			t.Fatalf("list deliveries for %q: %v", id, err)
		}
		if len(rows) != 1 {
			t.Fatalf("expected delivery row for %q, got %d", id, len(rows))
		}
	}
}

func TestMarkAsReadRequiresExistingAlert(t *testing.T) {
	t.Parallel()

	fixture := newOrchestratorFixture(t)
	if err := fixture.orchestrator.MarkAsRead(context.Background(), "u1", "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
