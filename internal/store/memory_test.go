package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"alertcenter/internal/domain"
)

func TestMemoryStoreAlertLifecycle(t *testing.T) {
	t.Parallel()

	st := NewMemoryStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	alert := domain.Alert{
		ID:         "a1",
		Title:      "db lag",
		Severity:   domain.SeverityCritical,
		Visibility: domain.VisibilityOrganization,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := st.CreateAlert(context.Background(), alert); err != nil {
		t.Fatalf("create alert: %v", err)
	}
	if err := st.CreateAlert(context.Background(), alert); err == nil {
		t.Fatalf("expected duplicate create to fail")
	}

	loaded, err := st.GetAlert(context.Background(), "a1")
	if err != nil {
		t.Fatalf("get alert: %v", err)
	}
	if loaded.Title != alert.Title {
		t.Fatalf("unexpected alert load: %+v", loaded)
	}

	if err := st.ArchiveAlert(context.Background(), "a1", now.Add(time.Hour)); err != nil {
		t.Fatalf("archive alert: %v", err)
	}
	loaded, err = st.GetAlert(context.Background(), "a1")
	if err != nil {
		t.Fatalf("get archived alert: %v", err)
	}
	if !loaded.Archived() {
		t.Fatalf("expected alert to be archived")
	}

	if _, err := st.GetAlert(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreListActiveReminderAlerts(t *testing.T) {
	t.Parallel()

	st := NewMemoryStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	alerts := []domain.Alert{
		{ID: "live", Severity: domain.SeverityInfo, Visibility: domain.VisibilityOrganization, RemindersEnabled: true},
		{ID: "quiet", Severity: domain.SeverityInfo, Visibility: domain.VisibilityOrganization},
		{ID: "gone", Severity: domain.SeverityInfo, Visibility: domain.VisibilityOrganization, RemindersEnabled: true, ExpiresAt: &expired},
		{ID: "later", Severity: domain.SeverityInfo, Visibility: domain.VisibilityOrganization, RemindersEnabled: true, StartsAt: &future},
		{ID: "shelved", Severity: domain.SeverityInfo, Visibility: domain.VisibilityOrganization, RemindersEnabled: true},
	}
	for _, alert := range alerts {
		if err := st.CreateAlert(context.Background(), alert); err != nil {
			t.Fatalf("create alert %q: %v", alert.ID, err)
		}
	}
	if err := st.ArchiveAlert(context.Background(), "shelved", now); err != nil {
		t.Fatalf("archive alert: %v", err)
	}

	listed, err := st.ListActiveReminderAlerts(context.Background(), now)
	if err != nil {
		t.Fatalf("list reminder alerts: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "live" {
		t.Fatalf("expected only the live alert, got %+v", listed)
	}
}

func TestMemoryStoreEligibleRecipients(t *testing.T) {
	t.Parallel()

	st := NewMemoryStore()
	recipients := []domain.Recipient{
		{ID: "u1", TeamID: "sre"},
		{ID: "u2", TeamID: "sre"},
		{ID: "u3", TeamID: "billing"},
	}
	for _, r := range recipients {
		if err := st.PutRecipient(context.Background(), r); err != nil {
			t.Fatalf("put recipient %q: %v", r.ID, err)
		}
	}

	org := domain.Alert{ID: "a1", Visibility: domain.VisibilityOrganization}
	got, err := st.ListEligibleRecipients(context.Background(), org)
	if err != nil {
		t.Fatalf("list org recipients: %v", err)
	}
	if len(got) != 3 || got[0].ID != "u1" || got[2].ID != "u3" {
		t.Fatalf("expected all recipients sorted by id, got %+v", got)
	}

	team := domain.Alert{ID: "a2", Visibility: domain.VisibilityTeam, VisibilityTarget: "sre"}
	got, err = st.ListEligibleRecipients(context.Background(), team)
	if err != nil {
		t.Fatalf("list team recipients: %v", err)
	}
	if len(got) != 2 || got[0].ID != "u1" || got[1].ID != "u2" {
		t.Fatalf("expected the sre team, got %+v", got)
	}

	user := domain.Alert{ID: "a3", Visibility: domain.VisibilityUser, VisibilityTarget: "u3"}
	got, err = st.ListEligibleRecipients(context.Background(), user)
	if err != nil {
		t.Fatalf("list user recipient: %v", err)
	}
	if len(got) != 1 || got[0].ID != "u3" {
		t.Fatalf("expected only u3, got %+v", got)
	}

	ghost := domain.Alert{ID: "a4", Visibility: domain.VisibilityUser, VisibilityTarget: "nobody"}
	got, err = st.ListEligibleRecipients(context.Background(), ghost)
	if err != nil {
		t.Fatalf("list missing user: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty set for unknown user, got %+v", got)
	}
}

func TestMemoryStorePreferenceSemantics(t *testing.T) {
	t.Parallel()

	st := NewMemoryStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if _, err := st.GetPreference(context.Background(), "u1", "a1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found before ensure, got %v", err)
	}

	if err := st.EnsurePreference(context.Background(), "u1", "a1", now); err != nil {
		t.Fatalf("ensure preference: %v", err)
	}
	pref, err := st.GetPreference(context.Background(), "u1", "a1")
	if err != nil {
		t.Fatalf("get preference: %v", err)
	}
	if pref.IsRead || pref.SnoozedUntil != nil {
		t.Fatalf("expected fresh preference, got %+v", pref)
	}

	until := now.Add(24 * time.Hour)
	if err := st.SetSnooze(context.Background(), "u1", "a1", until, now); err != nil {
		t.Fatalf("set snooze: %v", err)
	}
	shorter := now.Add(2 * time.Hour)
	if err := st.SetSnooze(context.Background(), "u1", "a1", shorter, now); err != nil {
		t.Fatalf("replace snooze: %v", err)
	}
	pref, err = st.GetPreference(context.Background(), "u1", "a1")
	if err != nil {
		t.Fatalf("get preference after snooze: %v", err)
	}
	if pref.SnoozedUntil == nil || !pref.SnoozedUntil.Equal(shorter) {
		t.Fatalf("expected snooze replaced with %v, got %+v", shorter, pref.SnoozedUntil)
	}

	if err := st.MarkRead(context.Background(), "u1", "a1", now); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := st.MarkRead(context.Background(), "u1", "a1", now.Add(time.Minute)); err != nil {
		t.Fatalf("repeat mark read: %v", err)
	}
	pref, err = st.GetPreference(context.Background(), "u1", "a1")
	if err != nil {
		t.Fatalf("get preference after read: %v", err)
	}
	if !pref.IsRead {
		t.Fatalf("expected is_read to stick")
	}

	// MarkRead for a pair with no row creates one.
	if err := st.MarkRead(context.Background(), "u2", "a1", now); err != nil {
		t.Fatalf("mark read without row: %v", err)
	}
	pref, err = st.GetPreference(context.Background(), "u2", "a1")
	if err != nil {
		t.Fatalf("get created preference: %v", err)
	}
	if !pref.IsRead {
		t.Fatalf("expected created preference to be read")
	}
}

func TestMemoryStoreDeliveryHistory(t *testing.T) {
	t.Parallel()

	st := NewMemoryStore()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if _, found, err := st.LastDeliveryTime(context.Background(), "a1", "u1"); err != nil || found {
		t.Fatalf("expected no delivery yet, found=%v err=%v", found, err)
	}

	rows := []domain.Delivery{
		{ID: "d1", AlertID: "a1", UserID: "u1", Channel: "in_app", Status: domain.DeliveryStatusDelivered, DeliveredAt: base},
		{ID: "d2", AlertID: "a1", UserID: "u1", Channel: "email", Status: domain.DeliveryStatusFailed, DeliveredAt: base.Add(time.Hour)},
		{ID: "d3", AlertID: "a1", UserID: "u2", Channel: "in_app", Status: domain.DeliveryStatusDelivered, DeliveredAt: base.Add(2 * time.Hour)},
	}
	for _, row := range rows {
		if err := st.RecordDelivery(context.Background(), row); err != nil {
			t.Fatalf("record delivery %q: %v", row.ID, err)
		}
	}

	last, found, err := st.LastDeliveryTime(context.Background(), "a1", "u1")
	if err != nil {
		t.Fatalf("last delivery: %v", err)
	}
	if !found || !last.Equal(base.Add(time.Hour)) {
		t.Fatalf("expected failed rows to count toward last delivery, got %v found=%v", last, found)
	}

	all, err := st.ListDeliveries(context.Background(), "a1", "")
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 delivery rows, got %d", len(all))
	}

	mine, err := st.ListDeliveries(context.Background(), "a1", "u1")
	if err != nil {
		t.Fatalf("list user deliveries: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 rows for u1, got %d", len(mine))
	}
}
