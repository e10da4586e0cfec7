package model

import "time"

// Notification kinds.
const (
	NotificationContact = "message.contact"
	NotificationReply   = "message.reply"
)

// Notification channels a dispatcher fans a notification out to.
const (
	ChannelEmail = "email"
	ChannelInApp = "in_app"
)

// Notification is emitted after a message is created. Delivery is best-effort.
type Notification struct {
	Kind        string    `json:"kind"`
	MessageID   string    `json:"message_id"`
	ListingID   string    `json:"listing_id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Subject     string    `json:"subject"`
	ThreadKey   string    `json:"thread_key"`
	Channels    []string  `json:"channels"`
	CreatedAt   time.Time `json:"created_at"`
}
