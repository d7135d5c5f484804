package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"alertcenter/internal/domain"
)

// MemoryStore keeps alerts, recipients, preferences, and deliveries in
// process memory for single-instance mode and tests.
// Params: in-memory maps guarded by one RW mutex.
// Returns: store implementation without external dependencies.
type MemoryStore struct {
	mu         sync.RWMutex
	alerts     map[string]domain.Alert
	recipients map[string]domain.Recipient
	prefs      map[prefKey]domain.Preference
	deliveries []domain.Delivery
}

type prefKey struct {
	userID  string
	alertID string
}

// NewMemoryStore creates an empty in-memory store.
// Params: none.
// Returns: initialized store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts:     make(map[string]domain.Alert),
		recipients: make(map[string]domain.Recipient),
		prefs:      make(map[prefKey]domain.Preference),
	}
}

// CreateAlert stores one new alert record.
// Params: validated alert payload.
// Returns: nil (in-memory write).
func (s *MemoryStore) CreateAlert(_ context.Context, alert domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[alert.ID]; ok {
		return fmt.Errorf("alert %q already exists", alert.ID)
	}
	s.alerts[alert.ID] = alert
	return nil
}

// GetAlert returns one alert by id.
// Params: alert id key.
// Returns: alert record or ErrNotFound.
func (s *MemoryStore) GetAlert(_ context.Context, alertID string) (domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alert, ok := s.alerts[alertID]
	if !ok {
		return domain.Alert{}, ErrNotFound
	}
	return alert, nil
}

// UpdateAlert replaces one existing alert record.
// Params: replacement alert payload.
// Returns: ErrNotFound when the alert does not exist.
func (s *MemoryStore) UpdateAlert(_ context.Context, alert domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[alert.ID]; !ok {
		return ErrNotFound
	}
	s.alerts[alert.ID] = alert
	return nil
}

// ArchiveAlert sets the archival timestamp on one alert.
// Params: alert id key and archival time.
// Returns: ErrNotFound when the alert does not exist.
func (s *MemoryStore) ArchiveAlert(_ context.Context, alertID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[alertID]
	if !ok {
		return ErrNotFound
	}
	if alert.ArchivedAt == nil {
		archivedAt := at
		alert.ArchivedAt = &archivedAt
		alert.UpdatedAt = at
		s.alerts[alertID] = alert
	}
	return nil
}

// ListActiveReminderAlerts lists reminder-enabled alerts live at now.
// Params: evaluation time.
// Returns: matching alerts sorted by id for deterministic scans.
func (s *MemoryStore) ListActiveReminderAlerts(_ context.Context, now time.Time) ([]domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Alert, 0)
	for _, alert := range s.alerts {
		if alert.Archived() || !alert.RemindersEnabled {
			continue
		}
		if !alert.InWindow(now) {
			continue
		}
		out = append(out, alert)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutRecipient stores or replaces one recipient record.
// Params: recipient payload.
// Returns: nil (in-memory write).
func (s *MemoryStore) PutRecipient(_ context.Context, recipient domain.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients[recipient.ID] = recipient
	return nil
}

// GetRecipient returns one recipient by id.
// Params: user id key.
// Returns: recipient record or ErrNotFound.
func (s *MemoryStore) GetRecipient(_ context.Context, userID string) (domain.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recipient, ok := s.recipients[userID]
	if !ok {
		return domain.Recipient{}, ErrNotFound
	}
	return recipient, nil
}

// ListEligibleRecipients resolves alert visibility into the recipient set.
// Params: alert carrying visibility scope and optional target.
// Returns: matching recipients sorted by id; unknown scope yields empty set.
func (s *MemoryStore) ListEligibleRecipients(_ context.Context, alert domain.Alert) ([]domain.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Recipient, 0)
	switch alert.Visibility {
	case domain.VisibilityOrganization:
		for _, recipient := range s.recipients {
			out = append(out, recipient)
		}
	case domain.VisibilityTeam:
		for _, recipient := range s.recipients {
			if recipient.TeamID == alert.VisibilityTarget {
				out = append(out, recipient)
			}
		}
	case domain.VisibilityUser:
		if recipient, ok := s.recipients[alert.VisibilityTarget]; ok {
			out = append(out, recipient)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetPreference returns the (user, alert) preference row.
// Params: user and alert id keys.
// Returns: preference record or ErrNotFound.
func (s *MemoryStore) GetPreference(_ context.Context, userID, alertID string) (domain.Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pref, ok := s.prefs[prefKey{userID: userID, alertID: alertID}]
	if !ok {
		return domain.Preference{}, ErrNotFound
	}
	return pref, nil
}

// EnsurePreference creates an unread preference row when absent.
// Params: user/alert id keys and creation time.
// Returns: nil; existing rows are left untouched.
func (s *MemoryStore) EnsurePreference(_ context.Context, userID, alertID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := prefKey{userID: userID, alertID: alertID}
	if _, ok := s.prefs[key]; ok {
		return nil
	}
	s.prefs[key] = domain.Preference{
		UserID:    userID,
		AlertID:   alertID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

// MarkRead sets the monotonic read flag, creating the row when absent.
// Params: user/alert id keys and mutation time.
// Returns: nil; repeated calls are no-ops.
func (s *MemoryStore) MarkRead(_ context.Context, userID, alertID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := prefKey{userID: userID, alertID: alertID}
	pref, ok := s.prefs[key]
	if !ok {
		pref = domain.Preference{UserID: userID, AlertID: alertID, CreatedAt: now}
	}
	if !pref.IsRead {
		pref.IsRead = true
		pref.UpdatedAt = now
	}
	s.prefs[key] = pref
	return nil
}

// SetSnooze replaces the snooze deadline, creating the row when absent.
// Params: user/alert id keys, snooze deadline, and mutation time.
// Returns: nil; a new call extends or shortens the previous snooze.
func (s *MemoryStore) SetSnooze(_ context.Context, userID, alertID string, until time.Time, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := prefKey{userID: userID, alertID: alertID}
	pref, ok := s.prefs[key]
	if !ok {
		pref = domain.Preference{UserID: userID, AlertID: alertID, CreatedAt: now}
	}
	snoozedUntil := until
	pref.SnoozedUntil = &snoozedUntil
	pref.UpdatedAt = now
	s.prefs[key] = pref
	return nil
}

// RecordDelivery appends one immutable delivery record.
// Params: delivery row with outcome and metadata.
// Returns: nil (append-only write).
func (s *MemoryStore) RecordDelivery(_ context.Context, delivery domain.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, delivery)
	return nil
}

// LastDeliveryTime returns the newest delivery timestamp for (alert, user).
// Params: alert and user id keys.
// Returns: maximum delivered_at across channels, or found=false.
func (s *MemoryStore) LastDeliveryTime(_ context.Context, alertID, userID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last time.Time
	found := false
	for _, delivery := range s.deliveries {
		if delivery.AlertID != alertID || delivery.UserID != userID {
			continue
		}
		if !found || delivery.DeliveredAt.After(last) {
			last = delivery.DeliveredAt
			found = true
		}
	}
	return last, found, nil
}

// ListDeliveries returns delivery history for one alert in insertion order,
// optionally narrowed to one user.
// Params: alert id key and optional user id filter (empty for all users).
// Returns: matching delivery rows.
func (s *MemoryStore) ListDeliveries(_ context.Context, alertID, userID string) ([]domain.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Delivery, 0)
	for _, delivery := range s.deliveries {
		if delivery.AlertID != alertID {
			continue
		}
		if userID != "" && delivery.UserID != userID {
			continue
		}
		out = append(out, delivery)
	}
	return out, nil
}

// Close releases memory store resources.
// Params: none.
// Returns: nil.
func (s *MemoryStore) Close() error {
	return nil
}
