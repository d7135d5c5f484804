package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Severity classifies alert importance.
// Params: info/warning/critical constants ordered by escalation weight.
// Returns: severity labels for notifications and storage.
type Severity string

const (
	// SeverityInfo indicates informational alert.
	SeverityInfo Severity = "info"
	// SeverityWarning indicates degraded-but-working condition.
	SeverityWarning Severity = "warning"
	// SeverityCritical indicates condition requiring immediate attention.
	SeverityCritical Severity = "critical"
)

// Weight returns escalation order for severity comparisons.
// Params: none.
// Returns: higher value for more severe alerts.
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// ParseSeverity normalizes raw severity input.
// Params: raw severity string.
// Returns: severity constant or error for unknown values.
func ParseSeverity(raw string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityInfo:
		return SeverityInfo, nil
	case SeverityWarning:
		return SeverityWarning, nil
	case SeverityCritical:
		return SeverityCritical, nil
	default:
		return "", fmt.Errorf("unsupported severity %q", raw)
	}
}

// Visibility selects the targeting rule for one alert.
// Params: organization/team/user scope constants.
// Returns: visibility labels for eligibility resolution.
type Visibility string

const (
	// VisibilityOrganization targets every recipient.
	VisibilityOrganization Visibility = "organization"
	// VisibilityTeam targets recipients of one team.
	VisibilityTeam Visibility = "team"
	// VisibilityUser targets one named recipient.
	VisibilityUser Visibility = "user"
)

// Alert stores one persisted alert definition.
// Params: identity, content, targeting, optional time window, and reminder flag.
// Returns: alert record for store and delivery engine.
type Alert struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Message          string     `json:"message"`
	Severity         Severity   `json:"severity"`
	Visibility       Visibility `json:"visibility"`
	VisibilityTarget string     `json:"visibility_target,omitempty"`
	StartsAt         *time.Time `json:"starts_at,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	RemindersEnabled bool       `json:"reminders_enabled"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ArchivedAt       *time.Time `json:"archived_at,omitempty"`
}

// Archived reports whether the alert was taken out of circulation.
// Params: none.
// Returns: true when archival timestamp is set.
func (a Alert) Archived() bool {
	return a.ArchivedAt != nil
}

// InWindow reports whether now falls inside the alert delivery window.
// Params: evaluation time.
// Returns: true for half-open [starts_at, expires_at) with absent bounds unbounded.
func (a Alert) InWindow(now time.Time) bool {
	if a.StartsAt != nil && now.Before(*a.StartsAt) {
		return false
	}
	if a.ExpiresAt != nil && !now.Before(*a.ExpiresAt) {
		return false
	}
	return true
}

// Validate checks alert structural invariants.
// Params: none.
// Returns: first violated invariant as error.
func (a Alert) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("alert id is required")
	}
	if strings.TrimSpace(a.Title) == "" {
		return errors.New("alert title is required")
	}
	if _, err := ParseSeverity(string(a.Severity)); err != nil {
		return err
	}
	switch a.Visibility {
	case VisibilityOrganization:
		if strings.TrimSpace(a.VisibilityTarget) != "" {
			return errors.New("organization visibility must not carry a target")
		}
	case VisibilityTeam, VisibilityUser:
		if strings.TrimSpace(a.VisibilityTarget) == "" {
			return fmt.Errorf("%s visibility requires a target", a.Visibility)
		}
	default:
		return fmt.Errorf("unsupported visibility %q", a.Visibility)
	}
	if a.StartsAt != nil && a.ExpiresAt != nil && !a.StartsAt.Before(*a.ExpiresAt) {
		return errors.New("alert window is empty: starts_at must precede expires_at")
	}
	return nil
}
