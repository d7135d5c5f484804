package store

import (
	"context"
	"errors"
	"time"

	"alertcenter/internal/domain"
)

// ErrNotFound indicates absent alert/recipient/preference record.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether the error chain contains ErrNotFound.
// Params: error from any Store operation.
// Returns: true for missing-record errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Store provides persistence operations for alerts, recipients,
// preferences, and the append-only delivery history.
// Params: query/command operations consumed by the delivery orchestrator.
// Returns: backend persistence behavior.
type Store interface {
	CreateAlert(ctx context.Context, alert domain.Alert) error
	GetAlert(ctx context.Context, alertID string) (domain.Alert, error)
	UpdateAlert(ctx context.Context, alert domain.Alert) error
	ArchiveAlert(ctx context.Context, alertID string, at time.Time) error
	// ListActiveReminderAlerts returns unarchived reminder-enabled alerts whose
	// [starts_at, expires_at) window contains now.
	ListActiveReminderAlerts(ctx context.Context, now time.Time) ([]domain.Alert, error)

	PutRecipient(ctx context.Context, recipient domain.Recipient) error
	GetRecipient(ctx context.Context, userID string) (domain.Recipient, error)
	// ListEligibleRecipients resolves the alert visibility into recipients:
	// organization -> all, team -> matching team, user -> the named recipient,
	// anything else -> empty set.
	ListEligibleRecipients(ctx context.Context, alert domain.Alert) ([]domain.Recipient, error)

	GetPreference(ctx context.Context, userID, alertID string) (domain.Preference, error)
	// EnsurePreference creates an unread, unsnozzed preference when absent.
	EnsurePreference(ctx context.Context, userID, alertID string, now time.Time) error
	// MarkRead sets is_read=true; the flag never reverts.
	MarkRead(ctx context.Context, userID, alertID string, now time.Time) error
	// SetSnooze replaces snoozed_until; a later call may extend or shorten it.
	SetSnooze(ctx context.Context, userID, alertID string, until time.Time, now time.Time) error

	RecordDelivery(ctx context.Context, delivery domain.Delivery) error
	// LastDeliveryTime returns the maximum delivered_at across all channels
	// for (alert, user), or found=false when never delivered.
	LastDeliveryTime(ctx context.Context, alertID, userID string) (time.Time, bool, error)
	ListDeliveries(ctx context.Context, alertID, userID string) ([]domain.Delivery, error)

	Close() error
}
