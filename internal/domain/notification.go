package domain

import "time"

// DeliveryStatus is the terminal outcome of one channel delivery attempt.
// Params: delivered/failed/pending status constants.
// Returns: status labels for delivery records.
type DeliveryStatus string

const (
	// DeliveryStatusDelivered indicates the channel accepted the notification.
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	// DeliveryStatusFailed indicates the channel rejected or lost the notification.
	DeliveryStatusFailed DeliveryStatus = "failed"
	// DeliveryStatusPending indicates the attempt was recorded before completion.
	DeliveryStatusPending DeliveryStatus = "pending"
)

// Notification contains the outbound payload handed to channels.
// Params: fresh identity plus alert content snapshot.
// Returns: one delivery request for the channel layer.
type Notification struct {
	ID        string    `json:"id"`
	AlertID   string    `json:"alert_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

// Delivery is one immutable delivery-attempt record.
// Params: alert/user/channel keys, outcome, and channel metadata.
// Returns: append-only audit row; also the "last delivered" source for reminders.
type Delivery struct {
	ID          string            `json:"id"`
	AlertID     string            `json:"alert_id"`
	UserID      string            `json:"user_id"`
	Channel     string            `json:"channel"`
	Status      DeliveryStatus    `json:"status"`
	DeliveredAt time.Time         `json:"delivered_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
