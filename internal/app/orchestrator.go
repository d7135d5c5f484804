package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"

	"alertcenter/internal/channel"
	"alertcenter/internal/clock"
	"alertcenter/internal/domain"
	"alertcenter/internal/engine"
	"alertcenter/internal/store"
)

var (
	deliveriesTotal       = metrics.NewCounter(`alertcenter_deliveries_total{status="delivered"}`)
	deliveriesFailedTotal = metrics.NewCounter(`alertcenter_deliveries_total{status="failed"}`)
	remindersSentTotal    = metrics.NewCounter(`alertcenter_reminders_sent_total`)
	reminderPassesTotal   = metrics.NewCounter(`alertcenter_reminder_passes_total`)
)

// Orchestrator coordinates alert fan-out, per-user delivery, and reminder passes.
// Params: store, channel registry, clock, policy settings, and logger.
// Returns: delivery coordination behavior on top of the state engine.
type Orchestrator struct {
	store    store.Store
	registry *channel.Registry
	clock    clock.Clock
	logger   *slog.Logger

	reminderInterval time.Duration
	defaultSnooze    time.Duration
	maxSnooze        time.Duration
}

// OrchestratorOptions carries policy settings captured at build time.
// Params: reminder cadence and snooze bounds.
// Returns: orchestrator policy inputs.
type OrchestratorOptions struct {
	ReminderInterval time.Duration
	DefaultSnooze    time.Duration
	MaxSnooze        time.Duration
}

// NewOrchestrator builds the delivery orchestrator.
// Params: store, channel registry, clock, policy options, and logger.
// Returns: initialized orchestrator.
func NewOrchestrator(st store.Store, registry *channel.Registry, clk clock.Clock, opts OrchestratorOptions, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:            st,
		registry:         registry,
		clock:            clk,
		logger:           logger,
		reminderInterval: opts.ReminderInterval,
		defaultSnooze:    opts.DefaultSnooze,
		maxSnooze:        opts.MaxSnooze,
	}
}

// DeliverAlert fans one alert out to every recipient its visibility resolves to.
// Params: context and alert id.
// Returns: store.ErrNotFound for missing or archived alerts, resolution
// errors otherwise; per-recipient failures are logged and never abort the
// fan-out.
func (o *Orchestrator) DeliverAlert(ctx context.Context, alertID string) error {
	alert, err := o.store.GetAlert(ctx, alertID)
	if err != nil {
		return fmt.Errorf("load alert %q: %w", alertID, err)
	}
	if alert.Archived() {
		return fmt.Errorf("alert %q is archived: %w", alertID, store.ErrNotFound)
	}

	recipients, err := o.store.ListEligibleRecipients(ctx, alert)
	if err != nil {
		return fmt.Errorf("resolve recipients for alert %q: %w", alertID, err)
	}

	now := o.clock.Now()
	for _, recipient := range recipients {
		if err := o.deliverToUser(ctx, alert, recipient, now); err != nil {
			o.logger.Error("recipient delivery failed",
				"alert_id", alert.ID, "user_id", recipient.ID, "error", err)
		}
	}
	o.logger.Info("alert fan-out complete", "alert_id", alertID, "recipients", len(recipients))
	return nil
}

// DeliverToUser delivers one alert to one named recipient.
// Params: context, alert id, and user id.
// Returns: store.ErrNotFound when the alert or recipient is missing.
func (o *Orchestrator) DeliverToUser(ctx context.Context, alertID, userID string) error {
	alert, err := o.store.GetAlert(ctx, alertID)
	if err != nil {
		return fmt.Errorf("load alert %q: %w", alertID, err)
	}
	if alert.Archived() {
		return fmt.Errorf("alert %q is archived: %w", alertID, store.ErrNotFound)
	}
	recipient, err := o.store.GetRecipient(ctx, userID)
	if err != nil {
		return fmt.Errorf("load recipient %q: %w", userID, err)
	}
	return o.deliverToUser(ctx, alert, recipient, o.clock.Now())
}

// deliverToUser runs the read/state checks and channel fan-out for one recipient.
// Params: alert, recipient, and evaluation time.
// Returns: store errors only; a read alert or an undeliverable state is a
// silent no-op and channel failures are recorded, not returned.
func (o *Orchestrator) deliverToUser(ctx context.Context, alert domain.Alert, recipient domain.Recipient, now time.Time) error {
	pref, err := o.preference(ctx, recipient.ID, alert.ID)
	if err != nil {
		return err
	}
	// is_read is monotonic; a read alert never re-delivers.
	if pref != nil && pref.IsRead {
		o.logger.Debug("delivery skipped",
			"alert_id", alert.ID, "user_id", recipient.ID, "reason", "read")
		return nil
	}

	state := engine.EffectiveState(alert, pref, now)
	if !state.CanDeliver(alert, now) {
		o.logger.Debug("delivery skipped",
			"alert_id", alert.ID, "user_id", recipient.ID, "state", string(state))
		return nil
	}

	notification := domain.Notification{
		ID:        uuid.NewString(),
		AlertID:   alert.ID,
		Title:     alert.Title,
		Message:   alert.Message,
		Severity:  alert.Severity,
		CreatedAt: now,
	}

	for _, ch := range o.registry.Enabled() {
		result := ch.Deliver(ctx, notification, recipient)

		delivery := domain.Delivery{
			ID:          uuid.NewString(),
			AlertID:     alert.ID,
			UserID:      recipient.ID,
			Channel:     ch.Name(),
			Status:      domain.DeliveryStatusDelivered,
			DeliveredAt: now,
			Metadata:    result.Metadata,
		}
		if result.Delivered {
			deliveriesTotal.Inc()
		} else {
			deliveriesFailedTotal.Inc()
			delivery.Status = domain.DeliveryStatusFailed
			if result.Error != "" {
				if delivery.Metadata == nil {
					delivery.Metadata = map[string]string{}
				}
				delivery.Metadata["error"] = result.Error
			}
			o.logger.Warn("channel delivery failed",
				"alert_id", alert.ID, "user_id", recipient.ID, "channel", ch.Name(), "error", result.Error)
		}
		if err := o.store.RecordDelivery(ctx, delivery); err != nil {
			return fmt.Errorf("record delivery for alert %q user %q: %w", alert.ID, recipient.ID, err)
		}
	}

	if err := o.store.EnsurePreference(ctx, recipient.ID, alert.ID, now); err != nil {
		return fmt.Errorf("ensure preference for alert %q user %q: %w", alert.ID, recipient.ID, err)
	}
	return nil
}

// ProcessReminders runs one reminder pass over every live reminder-enabled alert.
// Params: context.
// Returns: nil; per-alert failures are logged and isolated so one broken
// alert cannot starve the rest of the pass.
func (o *Orchestrator) ProcessReminders(ctx context.Context) error {
	now := o.clock.Now()
	reminderPassesTotal.Inc()

	alerts, err := o.store.ListActiveReminderAlerts(ctx, now)
	if err != nil {
		return fmt.Errorf("list reminder alerts: %w", err)
	}

	for _, alert := range alerts {
		if err := o.remindForAlert(ctx, alert, now); err != nil {
			o.logger.Error("reminder pass failed for alert", "alert_id", alert.ID, "error", err)
		}
	}
	return nil
}

// remindForAlert evaluates reminder eligibility for every recipient of one alert.
// Params: alert and pass evaluation time.
// Returns: store errors for this alert only.
func (o *Orchestrator) remindForAlert(ctx context.Context, alert domain.Alert, now time.Time) error {
	recipients, err := o.store.ListEligibleRecipients(ctx, alert)
	if err != nil {
		return fmt.Errorf("resolve recipients: %w", err)
	}

	for _, recipient := range recipients {
		pref, err := o.preference(ctx, recipient.ID, alert.ID)
		if err != nil {
			return err
		}
		// Cheap prefilter before the engine re-check.
		if pref != nil && (pref.IsRead || pref.SnoozeActive(now)) {
			continue
		}

		state := engine.EffectiveState(alert, pref, now)
		if !state.ShouldRemind(alert, pref, now) {
			continue
		}

		lastDelivery, found, err := o.store.LastDeliveryTime(ctx, alert.ID, recipient.ID)
		if err != nil {
			return fmt.Errorf("last delivery for user %q: %w", recipient.ID, err)
		}
		if !found {
			lastDelivery = time.Time{}
		}
		due, ok := state.NextReminderTime(alert, lastDelivery, o.reminderInterval, now)
		if !ok || due.After(now) {
			continue
		}

		if err := o.deliverToUser(ctx, alert, recipient, now); err != nil {
			return err
		}
		remindersSentTotal.Inc()
		o.logger.Info("reminder delivered", "alert_id", alert.ID, "user_id", recipient.ID)
	}
	return nil
}

// MarkAsRead marks one alert read for one user; the flag never reverts.
// Params: context, user id, and alert id.
// Returns: store errors; marking twice is a harmless no-op.
func (o *Orchestrator) MarkAsRead(ctx context.Context, userID, alertID string) error {
	if _, err := o.store.GetAlert(ctx, alertID); err != nil {
		return fmt.Errorf("load alert %q: %w", alertID, err)
	}
	if err := o.store.MarkRead(ctx, userID, alertID, o.clock.Now()); err != nil {
		return fmt.Errorf("mark read alert %q user %q: %w", alertID, userID, err)
	}
	return nil
}

// Snooze suppresses one alert for one user for the given number of hours.
// Params: context, user id, alert id, and hours (0 means the default policy).
// Returns: store errors; hours above the configured maximum are clamped.
func (o *Orchestrator) Snooze(ctx context.Context, userID, alertID string, hours int) error {
	if _, err := o.store.GetAlert(ctx, alertID); err != nil {
		return fmt.Errorf("load alert %q: %w", alertID, err)
	}

	duration := time.Duration(hours) * time.Hour
	if hours <= 0 {
		duration = o.defaultSnooze
	}
	if duration > o.maxSnooze {
		duration = o.maxSnooze
	}

	now := o.clock.Now()
	until := now.Add(duration)
	if err := o.store.SetSnooze(ctx, userID, alertID, until, now); err != nil {
		return fmt.Errorf("snooze alert %q user %q: %w", alertID, userID, err)
	}
	o.logger.Info("alert snoozed", "alert_id", alertID, "user_id", userID, "until", until)
	return nil
}

// preference loads the preference row or nil when the pair has none yet.
// Params: user id and alert id.
// Returns: optional preference and unexpected store errors.
func (o *Orchestrator) preference(ctx context.Context, userID, alertID string) (*domain.Preference, error) {
	pref, err := o.store.GetPreference(ctx, userID, alertID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load preference for alert %q user %q: %w", alertID, userID, err)
	}
	return &pref, nil
}
