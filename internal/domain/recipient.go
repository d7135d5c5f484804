package domain

import "time"

// Recipient identifies one addressable user.
// Params: identity, optional team membership, role, and channel addresses.
// Returns: recipient record used for eligibility and channel addressing.
type Recipient struct {
	ID             string `json:"id"`
	TeamID         string `json:"team_id,omitempty"`
	Role           string `json:"role,omitempty"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	TelegramChatID string `json:"telegram_chat_id,omitempty"`
}

// Preference tracks per-(user, alert) read/snooze state.
// Params: monotonic read flag and replaceable snooze deadline.
// Returns: preference record, lazily created on first delivery or user action.
type Preference struct {
	UserID       string     `json:"user_id"`
	AlertID      string     `json:"alert_id"`
	IsRead       bool       `json:"is_read"`
	SnoozedUntil *time.Time `json:"snoozed_until,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SnoozeActive reports whether the preference snooze is still in effect.
// Params: evaluation time.
// Returns: true when snoozed_until is set and not yet elapsed.
func (p Preference) SnoozeActive(now time.Time) bool {
	return p.SnoozedUntil != nil && now.Before(*p.SnoozedUntil)
}
