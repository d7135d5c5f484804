package channel

import (
	"context"
	"fmt"
	"log/slog"

	"alertcenter/internal/config"
	"alertcenter/internal/domain"
)

// Email delivers notifications by email. The transport is a logging stub;
// the addressing, retry, and failure semantics are real.
type Email struct {
	cfg    config.EmailChannelConfig
	logger *slog.Logger
}

// NewEmail builds the email channel.
// Params: channel config and logger.
// Returns: initialized channel.
func NewEmail(cfg config.EmailChannelConfig, logger *slog.Logger) *Email {
	return &Email{cfg: cfg, logger: logger}
}

// Name returns the channel identifier.
// Params: none.
// Returns: "email".
func (c *Email) Name() string { return "email" }

// Enabled reports whether the channel accepts deliveries.
// Params: none.
// Returns: configured enabled flag.
func (c *Email) Enabled() bool { return c.cfg.Enabled }

// Deliver sends the notification to the recipient's email address.
// Params: notification and recipient.
// Returns: failure when the recipient has no address, delivered otherwise.
func (c *Email) Deliver(ctx context.Context, notification domain.Notification, recipient domain.Recipient) DeliveryResult {
	if recipient.Email == "" {
		return failure(fmt.Sprintf("recipient %q has no email address", recipient.ID))
	}

	metadata, err := attemptWithRetry(ctx, c.cfg.Retry, func(ctx context.Context) (map[string]string, error) {
		c.logger.Info("email notification sent",
			"to", recipient.Email,
			"from", c.cfg.From,
			"alert_id", notification.AlertID,
			"severity", notification.Severity,
			"title", notification.Title)
		return map[string]string{"to": recipient.Email, "from": c.cfg.From}, nil
	})
	if err != nil {
		return failure(err.Error())
	}
	return success(metadata)
}
