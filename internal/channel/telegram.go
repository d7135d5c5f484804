package channel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"alertcenter/internal/config"
	"alertcenter/internal/domain"
)

// Telegram posts notifications to per-recipient Telegram chats.
// Params: bot token and API base URL from config; chat ids come from the
// recipient directory.
// Returns: channel named "telegram".
type Telegram struct {
	cfg     config.TelegramChannelConfig
	client  *tgbot.Bot
	initErr error
}

// NewTelegram creates the Telegram channel with an HTTP bot client.
// Params: telegram channel config.
// Returns: initialized channel; client init failures surface per delivery.
func NewTelegram(cfg config.TelegramChannelConfig) *Telegram {
	ch := &Telegram{cfg: cfg}

	if !cfg.Enabled {
		return ch
	}
	if strings.TrimSpace(cfg.BotToken) == "" {
		ch.initErr = errors.New("telegram bot token is required")
		return ch
	}

	options := []tgbot.Option{
		tgbot.WithSkipGetMe(),
	}
	if base := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/"); base != "" {
		options = append(options, tgbot.WithServerURL(base))
	}
	client, err := tgbot.New(cfg.BotToken, options...)
	if err != nil {
		ch.initErr = fmt.Errorf("init telegram bot: %w", err)
		return ch
	}
	ch.client = client
	return ch
}

// Name returns the channel identifier.
// Params: none.
// Returns: "telegram".
func (c *Telegram) Name() string { return "telegram" }

// Enabled reports whether the channel accepts deliveries.
// Params: none.
// Returns: configured enabled flag.
func (c *Telegram) Enabled() bool { return c.cfg.Enabled }

// Deliver posts one notification message to the recipient's chat.
// Params: notification and recipient.
// Returns: failure when the client is broken, the recipient has no chat id,
// or all send attempts fail; delivered with the message id otherwise.
func (c *Telegram) Deliver(ctx context.Context, notification domain.Notification, recipient domain.Recipient) DeliveryResult {
	if c.initErr != nil {
		return failure(c.initErr.Error())
	}
	if c.client == nil {
		return failure("telegram client is not initialized")
	}
	if strings.TrimSpace(recipient.TelegramChatID) == "" {
		return failure(fmt.Sprintf("recipient %q has no telegram chat id", recipient.ID))
	}

	chatID := normalizeChatID(recipient.TelegramChatID)
	text := fmt.Sprintf("<b>[%s] %s</b>\n%s", strings.ToUpper(string(notification.Severity)), notification.Title, notification.Message)

	metadata, err := attemptWithRetry(ctx, c.cfg.Retry, func(ctx context.Context) (map[string]string, error) {
		sent, err := c.client.SendMessage(ctx, &tgbot.SendMessageParams{
			ChatID:    chatID,
			Text:      text,
			ParseMode: tgmodels.ParseModeHTML,
		})
		if err != nil {
			return nil, fmt.Errorf("telegram send: %w", err)
		}
		if sent == nil || sent.ID <= 0 {
			return nil, errors.New("telegram send returned empty message id")
		}
		return map[string]string{"message_id": strconv.Itoa(sent.ID)}, nil
	})
	if err != nil {
		return failure(err.Error())
	}
	return success(metadata)
}

// normalizeChatID converts numeric chat IDs to int64 and keeps non-numeric IDs as string.
// Params: chat ID value from the recipient directory.
// Returns: Telegram API chat id union value.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}
