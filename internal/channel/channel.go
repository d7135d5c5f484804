package channel

import (
	"context"
	"strings"
	"time"

	"alertcenter/internal/config"
	"alertcenter/internal/domain"
)

// DeliveryResult is the terminal outcome of one channel delivery attempt.
// Params: success flag, failure reason, and channel-specific metadata.
// Returns: outcome value; channels never propagate Go errors to callers.
type DeliveryResult struct {
	Delivered bool
	Error     string
	Metadata  map[string]string
}

// Channel is one named, independently togglable delivery mechanism.
// Params: notification payload and addressed recipient.
// Returns: delivery outcome; Deliver must not panic or return an error.
type Channel interface {
	Name() string
	Enabled() bool
	Deliver(ctx context.Context, notification domain.Notification, recipient domain.Recipient) DeliveryResult
}

// Registry holds the statically registered channel set in registration order.
// Params: ordered channel list built once at process start.
// Returns: stable fan-out order for the orchestrator.
type Registry struct {
	channels []Channel
}

// NewRegistry builds a registry from the given channels.
// Params: channels in the order fan-out must follow.
// Returns: initialized registry.
func NewRegistry(channels ...Channel) *Registry {
	return &Registry{channels: channels}
}

// Enabled returns currently enabled channels in registration order.
// Params: none.
// Returns: filtered channel slice; safe to call repeatedly.
func (r *Registry) Enabled() []Channel {
	out := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		if ch.Enabled() {
			out = append(out, ch)
		}
	}
	return out
}

// All returns every registered channel in registration order.
// Params: none.
// Returns: full channel slice.
func (r *Registry) All() []Channel {
	return r.channels
}

// failure builds a failed delivery result.
// Params: failure reason text.
// Returns: result with Delivered=false.
func failure(reason string) DeliveryResult {
	return DeliveryResult{Delivered: false, Error: reason}
}

// success builds a delivered result with metadata.
// Params: channel-specific metadata map.
// Returns: result with Delivered=true.
func success(metadata map[string]string) DeliveryResult {
	return DeliveryResult{Delivered: true, Metadata: metadata}
}

// attemptWithRetry runs one send function under the channel retry policy.
// Params: context, retry policy, and send function returning metadata.
// Returns: metadata of the successful attempt or the final error.
func attemptWithRetry(ctx context.Context, retry config.RetryConfig, send func(ctx context.Context) (map[string]string, error)) (map[string]string, error) {
	if !retry.Enabled {
		return send(ctx)
	}

	attempt := 0
	backoff := time.Duration(retry.InitialMS) * time.Millisecond
	maxBackoff := time.Duration(retry.MaxMS) * time.Millisecond

	for {
		attempt++
		metadata, err := send(ctx)
		if err == nil {
			return metadata, nil
		}
		if retry.MaxAttempts > 0 && attempt >= retry.MaxAttempts {
			return nil, err
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		if strings.EqualFold(retry.Backoff, "exponential") {
			backoff *= 2
			if maxBackoff > 0 && backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}
