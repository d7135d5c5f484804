package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/nats-io/nats.go"

	"alertcenter/internal/config"
	"alertcenter/internal/domain"
)

// InApp delivers notifications into a bounded per-user in-process feed.
// Params: feed size and optional NATS connection for subject mirroring.
// Returns: channel named "in_app"; the feed backs the user feed endpoint.
type InApp struct {
	cfg    config.InAppChannelConfig
	conn   *nats.Conn
	logger *slog.Logger

	mu    sync.RWMutex
	feeds map[string][]domain.Notification
}

// NewInApp builds the in-app channel.
// Params: channel config, optional NATS connection (nil to disable
// mirroring), and logger.
// Returns: initialized channel.
func NewInApp(cfg config.InAppChannelConfig, conn *nats.Conn, logger *slog.Logger) *InApp {
	return &InApp{
		cfg:    cfg,
		conn:   conn,
		logger: logger,
		feeds:  make(map[string][]domain.Notification),
	}
}

// Name returns the channel identifier.
// Params: none.
// Returns: "in_app".
func (c *InApp) Name() string { return "in_app" }

// Enabled reports whether the channel accepts deliveries.
// Params: none.
// Returns: configured enabled flag.
func (c *InApp) Enabled() bool { return c.cfg.Enabled }

// Deliver appends the notification to the recipient's feed, evicting the
// oldest entry when the feed is full, and mirrors it to NATS when wired.
// Params: notification and recipient.
// Returns: delivered result with the feed position; mirror failures are
// logged but do not fail the delivery.
func (c *InApp) Deliver(ctx context.Context, notification domain.Notification, recipient domain.Recipient) DeliveryResult {
	c.mu.Lock()
	feed := append(c.feeds[recipient.ID], notification)
	if c.cfg.FeedSize > 0 && len(feed) > c.cfg.FeedSize {
		feed = feed[len(feed)-c.cfg.FeedSize:]
	}
	c.feeds[recipient.ID] = feed
	position := len(feed)
	c.mu.Unlock()

	if c.conn != nil && c.cfg.MirrorSubjectBase != "" {
		if err := c.mirror(notification, recipient.ID); err != nil {
			c.logger.Warn("in-app feed mirror publish failed", "user_id", recipient.ID, "error", err)
		}
	}

	return success(map[string]string{"feed_position": strconv.Itoa(position)})
}

// Feed returns a copy of the recipient's feed, oldest first.
// Params: user id.
// Returns: notification slice; empty when the user has no feed.
func (c *InApp) Feed(userID string) []domain.Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	feed := c.feeds[userID]
	out := make([]domain.Notification, len(feed))
	copy(out, feed)
	return out
}

// mirror publishes the notification JSON onto the per-user mirror subject.
// Params: notification and user id.
// Returns: error when marshalling or publishing fails.
func (c *InApp) mirror(notification domain.Notification, userID string) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	subject := c.cfg.MirrorSubjectBase + "." + userID
	if err := c.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish to %q: %w", subject, err)
	}
	return nil
}
