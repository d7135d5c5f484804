package channel

import (
	"context"
	"fmt"
	"log/slog"

	"alertcenter/internal/config"
	"alertcenter/internal/domain"
)

// SMS delivers notifications by text message. Like Email, the wire transport
// is a logging stub behind real addressing and failure semantics.
type SMS struct {
	cfg    config.SMSChannelConfig
	logger *slog.Logger
}

// NewSMS builds the SMS channel.
// Params: channel config and logger.
// Returns: initialized channel.
func NewSMS(cfg config.SMSChannelConfig, logger *slog.Logger) *SMS {
	return &SMS{cfg: cfg, logger: logger}
}

// Name returns the channel identifier.
// Params: none.
// Returns: "sms".
func (c *SMS) Name() string { return "sms" }

// Enabled reports whether the channel accepts deliveries.
// Params: none.
// Returns: configured enabled flag.
func (c *SMS) Enabled() bool { return c.cfg.Enabled }

// Deliver sends the notification to the recipient's phone number.
// Params: notification and recipient.
// Returns: failure when the recipient has no phone number, delivered
// otherwise.
func (c *SMS) Deliver(ctx context.Context, notification domain.Notification, recipient domain.Recipient) DeliveryResult {
	if recipient.Phone == "" {
		return failure(fmt.Sprintf("recipient %q has no phone number", recipient.ID))
	}

	metadata, err := attemptWithRetry(ctx, c.cfg.Retry, func(ctx context.Context) (map[string]string, error) {
		c.logger.Info("sms notification sent",
			"to", recipient.Phone,
			"sender_id", c.cfg.SenderID,
			"alert_id", notification.AlertID,
			"severity", notification.Severity)
		return map[string]string{"to": recipient.Phone, "sender_id": c.cfg.SenderID}, nil
	})
	if err != nil {
		return failure(err.Error())
	}
	return success(metadata)
}
