package engine

import (
	"time"

	"alertcenter/internal/domain"
)

// State is the effective lifecycle classification of one (alert, preference) pair.
// Params: active/snoozed/expired variant constants.
// Returns: tagged state driving deliverability and reminder decisions.
type State string

const (
	// StateActive indicates the alert is live for the recipient.
	StateActive State = "active"
	// StateSnoozed indicates the recipient snooze is still in effect.
	StateSnoozed State = "snoozed"
	// StateExpired indicates the alert expiry time has passed.
	StateExpired State = "expired"
)

// EffectiveState computes lifecycle state for one alert and one recipient preference.
// Params: alert, optional preference (nil means never read, never snoozed), and now.
// Returns: Expired past expiry, Snoozed during an active snooze, Active otherwise.
func EffectiveState(alert domain.Alert, pref *domain.Preference, now time.Time) State {
	if alert.ExpiresAt != nil && now.After(*alert.ExpiresAt) {
		return StateExpired
	}
	if pref != nil && pref.SnoozeActive(now) {
		return StateSnoozed
	}
	// An alert before its start time is still Active; CanDeliver filters it out.
	return StateActive
}

// CanDeliver reports whether the alert may be delivered right now in this state.
// Params: state receiver, alert, and evaluation time.
// Returns: true only for Active state inside the alert window.
func (s State) CanDeliver(alert domain.Alert, now time.Time) bool {
	switch s {
	case StateActive:
		return alert.InWindow(now)
	default:
		return false
	}
}

// NextReminderTime computes when the next reminder is due.
// Params: state, alert, last delivery time (zero means never delivered),
// reminder interval, and evaluation time.
// Returns: due time and true, or zero time and false when no reminder may be
// scheduled (reminders disabled, non-active state, or due time at/past expiry).
func (s State) NextReminderTime(alert domain.Alert, lastDelivery time.Time, interval time.Duration, now time.Time) (time.Time, bool) {
	if s != StateActive || !alert.RemindersEnabled {
		return time.Time{}, false
	}
	base := lastDelivery
	if base.IsZero() {
		base = now
	}
	due := base.Add(interval)
	if alert.ExpiresAt != nil && !due.Before(*alert.ExpiresAt) {
		return time.Time{}, false
	}
	return due, true
}

// ShouldRemind reports whether a reminder must be produced for the recipient.
// Params: state, alert, optional preference, and evaluation time.
// Returns: true only for Active state with reminders enabled, the alert unread,
// and no snooze currently in effect.
func (s State) ShouldRemind(alert domain.Alert, pref *domain.Preference, now time.Time) bool {
	if s != StateActive || !alert.RemindersEnabled {
		return false
	}
	if pref == nil {
		return true
	}
	if pref.IsRead {
		return false
	}
	return !pref.SnoozeActive(now)
}
