package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"alertcenter/internal/domain"

	"github.com/nats-io/nats.go"
)

// NATSStoreConfig contains JetStream KV settings for the durable backend.
// Params: server URLs, bucket names, and bucket auto-create toggle.
// Returns: NATS store options.
type NATSStoreConfig struct {
	URL                []string
	AlertBucket        string
	RecipientBucket    string
	PreferenceBucket   string
	DeliveryBucket     string
	AllowCreateBuckets bool
}

// NATSStore persists alerts, recipients, preferences, and deliveries
// in JetStream KV buckets.
// Params: NATS connection and per-entity KV bucket handles.
// Returns: KV-backed store implementation.
type NATSStore struct {
	nc         *nats.Conn
	js         nats.JetStreamContext
	alerts     nats.KeyValue
	recipients nats.KeyValue
	prefs      nats.KeyValue
	deliveries nats.KeyValue
}

// Conn exposes the underlying NATS connection for subject publishing.
// Params: none.
// Returns: live connection owned by the store.
func (s *NATSStore) Conn() *nats.Conn {
	return s.nc
}

// NewNATSStore connects to NATS and opens (or creates) the KV buckets.
// Params: NATS store settings from config.
// Returns: initialized store or setup error.
func NewNATSStore(settings NATSStoreConfig) (*NATSStore, error) {
	nc, err := nats.Connect(strings.Join(settings.URL, ","))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	buckets := make(map[string]nats.KeyValue, 4)
	for _, name := range []string{
		settings.AlertBucket,
		settings.RecipientBucket,
		settings.PreferenceBucket,
		settings.DeliveryBucket,
	} {
		kv, err := openBucket(js, name, settings.AllowCreateBuckets)
		if err != nil {
			nc.Close()
			return nil, err
		}
		buckets[name] = kv
	}

	return &NATSStore{
		nc:         nc,
		js:         js,
		alerts:     buckets[settings.AlertBucket],
		recipients: buckets[settings.RecipientBucket],
		prefs:      buckets[settings.PreferenceBucket],
		deliveries: buckets[settings.DeliveryBucket],
	}, nil
}

// openBucket opens one KV bucket, creating it when allowed.
// Params: JetStream context, bucket name, and create toggle.
// Returns: bucket handle or setup error.
func openBucket(js nats.JetStreamContext, name string, allowCreate bool) (nats.KeyValue, error) {
	kv, err := js.KeyValue(name)
	if err == nil {
		return kv, nil
	}
	if !allowCreate {
		return nil, fmt.Errorf("open bucket %q: %w", name, err)
	}
	kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: name})
	if err != nil {
		return nil, fmt.Errorf("create bucket %q: %w", name, err)
	}
	return kv, nil
}

// prefKeyFor builds the KV key for one (user, alert) preference row.
// Params: user and alert id keys.
// Returns: composite KV key.
func prefKeyFor(userID, alertID string) string {
	return userID + "/" + alertID
}

// putJSON encodes and writes one value into a bucket.
// Params: bucket handle, key, and payload.
// Returns: encode or KV write error.
func putJSON(kv nats.KeyValue, key string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	if _, err := kv.Put(key, body); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// getJSON reads and decodes one value from a bucket.
// Params: bucket handle, key, and destination pointer.
// Returns: ErrNotFound for absent keys or decode error.
func getJSON(kv nats.KeyValue, key string, dst any) error {
	entry, err := kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("get %q: %w", key, err)
	}
	if err := json.Unmarshal(entry.Value(), dst); err != nil {
		return fmt.Errorf("decode %q: %w", key, err)
	}
	return nil
}

// listKeys lists bucket keys, treating an empty bucket as no keys.
// Params: bucket handle.
// Returns: key list or KV error.
func listKeys(kv nats.KeyValue) ([]string, error) {
	keys, err := kv.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// CreateAlert stores one new alert record.
// Params: validated alert payload.
// Returns: error when the id already exists or the KV write fails.
func (s *NATSStore) CreateAlert(_ context.Context, alert domain.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert %q: %w", alert.ID, err)
	}
	if _, err := s.alerts.Create(alert.ID, payload); err != nil {
		return fmt.Errorf("create alert %q: %w", alert.ID, err)
	}
	return nil
}

// GetAlert returns one alert by id.
// Params: alert id key.
// Returns: alert record or ErrNotFound.
func (s *NATSStore) GetAlert(_ context.Context, alertID string) (domain.Alert, error) {
	var alert domain.Alert
	if err := getJSON(s.alerts, alertID, &alert); err != nil {
		return domain.Alert{}, err
	}
	return alert, nil
}

// UpdateAlert replaces one existing alert record.
// Params: replacement alert payload.
// Returns: ErrNotFound when the alert does not exist.
func (s *NATSStore) UpdateAlert(ctx context.Context, alert domain.Alert) error {
	if _, err := s.GetAlert(ctx, alert.ID); err != nil {
		return err
	}
	return putJSON(s.alerts, alert.ID, alert)
}

// ArchiveAlert sets the archival timestamp on one alert.
// Params: alert id key and archival time.
// Returns: ErrNotFound when the alert does not exist.
func (s *NATSStore) ArchiveAlert(ctx context.Context, alertID string, at time.Time) error {
	alert, err := s.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if alert.ArchivedAt != nil {
		return nil
	}
	archivedAt := at
	alert.ArchivedAt = &archivedAt
	alert.UpdatedAt = at
	return putJSON(s.alerts, alertID, alert)
}

// ListActiveReminderAlerts lists reminder-enabled alerts live at now.
// Params: evaluation time.
// Returns: matching alerts in KV key order.
func (s *NATSStore) ListActiveReminderAlerts(_ context.Context, now time.Time) ([]domain.Alert, error) {
	keys, err := listKeys(s.alerts)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Alert, 0, len(keys))
	for _, key := range keys {
		var alert domain.Alert
		if err := getJSON(s.alerts, key, &alert); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if alert.Archived() || !alert.RemindersEnabled || !alert.InWindow(now) {
			continue
		}
		out = append(out, alert)
	}
	return out, nil
}

// PutRecipient stores or replaces one recipient record.
// Params: recipient payload.
// Returns: KV write error.
func (s *NATSStore) PutRecipient(_ context.Context, recipient domain.Recipient) error {
	return putJSON(s.recipients, recipient.ID, recipient)
}

// GetRecipient returns one recipient by id.
// Params: user id key.
// Returns: recipient record or ErrNotFound.
func (s *NATSStore) GetRecipient(_ context.Context, userID string) (domain.Recipient, error) {
	var recipient domain.Recipient
	if err := getJSON(s.recipients, userID, &recipient); err != nil {
		return domain.Recipient{}, err
	}
	return recipient, nil
}

// ListEligibleRecipients resolves alert visibility into the recipient set.
// Params: alert carrying visibility scope and optional target.
// Returns: matching recipients; unknown scope yields empty set.
func (s *NATSStore) ListEligibleRecipients(ctx context.Context, alert domain.Alert) ([]domain.Recipient, error) {
	out := make([]domain.Recipient, 0)
	switch alert.Visibility {
	case domain.VisibilityUser:
		recipient, err := s.GetRecipient(ctx, alert.VisibilityTarget)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return out, nil
			}
			return nil, err
		}
		return append(out, recipient), nil
	case domain.VisibilityOrganization, domain.VisibilityTeam:
		keys, err := listKeys(s.recipients)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			var recipient domain.Recipient
			if err := getJSON(s.recipients, key, &recipient); err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return nil, err
			}
			if alert.Visibility == domain.VisibilityTeam && recipient.TeamID != alert.VisibilityTarget {
				continue
			}
			out = append(out, recipient)
		}
	}
	return out, nil
}

// GetPreference returns the (user, alert) preference row.
// Params: user and alert id keys.
// Returns: preference record or ErrNotFound.
func (s *NATSStore) GetPreference(_ context.Context, userID, alertID string) (domain.Preference, error) {
	var pref domain.Preference
	if err := getJSON(s.prefs, prefKeyFor(userID, alertID), &pref); err != nil {
		return domain.Preference{}, err
	}
	return pref, nil
}

// EnsurePreference creates an unread preference row when absent.
// Params: user/alert id keys and creation time.
// Returns: nil when the row already exists.
func (s *NATSStore) EnsurePreference(ctx context.Context, userID, alertID string, now time.Time) error {
	if _, err := s.GetPreference(ctx, userID, alertID); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	pref := domain.Preference{
		UserID:    userID,
		AlertID:   alertID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return putJSON(s.prefs, prefKeyFor(userID, alertID), pref)
}

// MarkRead sets the monotonic read flag, creating the row when absent.
// Params: user/alert id keys and mutation time.
// Returns: KV write error; repeated calls are no-ops.
func (s *NATSStore) MarkRead(ctx context.Context, userID, alertID string, now time.Time) error {
	pref, err := s.GetPreference(ctx, userID, alertID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		pref = domain.Preference{UserID: userID, AlertID: alertID, CreatedAt: now}
	}
	if pref.IsRead {
		return nil
	}
	pref.IsRead = true
	pref.UpdatedAt = now
	return putJSON(s.prefs, prefKeyFor(userID, alertID), pref)
}

// SetSnooze replaces the snooze deadline, creating the row when absent.
// Params: user/alert id keys, snooze deadline, and mutation time.
// Returns: KV write error.
func (s *NATSStore) SetSnooze(ctx context.Context, userID, alertID string, until time.Time, now time.Time) error {
	pref, err := s.GetPreference(ctx, userID, alertID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		pref = domain.Preference{UserID: userID, AlertID: alertID, CreatedAt: now}
	}
	snoozedUntil := until
	pref.SnoozedUntil = &snoozedUntil
	pref.UpdatedAt = now
	return putJSON(s.prefs, prefKeyFor(userID, alertID), pref)
}

// RecordDelivery appends one immutable delivery record.
// Params: delivery row with outcome and metadata.
// Returns: KV write error; rows are never overwritten.
func (s *NATSStore) RecordDelivery(_ context.Context, delivery domain.Delivery) error {
	key := delivery.AlertID + "/" + delivery.UserID + "/" + delivery.ID
	return putJSON(s.deliveries, key, delivery)
}

// LastDeliveryTime returns the newest delivery timestamp for (alert, user).
// Params: alert and user id keys.
// Returns: maximum delivered_at across channels, or found=false.
func (s *NATSStore) LastDeliveryTime(ctx context.Context, alertID, userID string) (time.Time, bool, error) {
	rows, err := s.ListDeliveries(ctx, alertID, userID)
	if err != nil {
		return time.Time{}, false, err
	}
	var last time.Time
	found := false
	for _, delivery := range rows {
		if !found || delivery.DeliveredAt.After(last) {
			last = delivery.DeliveredAt
			found = true
		}
	}
	return last, found, nil
}

// ListDeliveries returns delivery history for one alert, optionally
// narrowed to one user.
// Params: alert id key and optional user id filter (empty for all users).
// Returns: matching delivery rows in KV key order.
func (s *NATSStore) ListDeliveries(_ context.Context, alertID, userID string) ([]domain.Delivery, error) {
	keys, err := listKeys(s.deliveries)
	if err != nil {
		return nil, err
	}
	prefix := alertID + "/"
	if userID != "" {
		prefix += userID + "/"
	}
	out := make([]domain.Delivery, 0)
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		var delivery domain.Delivery
		if err := getJSON(s.deliveries, key, &delivery); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, delivery)
	}
	return out, nil
}

// Close closes the underlying NATS connection.
// Params: none.
// Returns: nil after connection close.
func (s *NATSStore) Close() error {
	s.nc.Close()
	return nil
}
