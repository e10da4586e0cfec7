package model

import "time"

// Message is a single contact message or reply about a listing.
// ThreadID is write-once: a root keeps it nil until its first reply arrives.
type Message struct {
	ID              string     `json:"id"`
	ListingID       string     `json:"listing_id"`
	SenderID        string     `json:"sender_id"`
	RecipientID     string     `json:"recipient_id"`
	Subject         string     `json:"subject"`
	Body            string     `json:"body"`
	IncludePhone    bool       `json:"include_phone"`
	CreatedAt       time.Time  `json:"created_at"`
	ReadAt          *time.Time `json:"read_at,omitempty"`
	IsArchived      bool       `json:"is_archived"`
	IsDeleted       bool       `json:"is_deleted"`
	ParentMessageID *string    `json:"parent_message_id,omitempty"`
	ThreadID        *string    `json:"thread_id,omitempty"`

	// Display fields filled in by the service, never persisted.
	SenderName    string `json:"sender_name,omitempty"`
	SenderEmail   string `json:"sender_email,omitempty"`
	RecipientName string `json:"recipient_name,omitempty"`
	ListingTitle  string `json:"listing_title,omitempty"`
	ListingImage  string `json:"listing_image,omitempty"`
}

// ThreadKey returns the canonical thread key: the explicit thread id when set,
// otherwise the message's own id.
func (m *Message) ThreadKey() string {
	if m.ThreadID != nil && *m.ThreadID != "" {
		return *m.ThreadID
	}
	return m.ID
}

// HasParticipant reports whether userID is the sender or the recipient.
func (m *Message) HasParticipant(userID string) bool {
	return m.SenderID == userID || m.RecipientID == userID
}

// IsUnreadFor reports whether the message is a live, unread message addressed to userID.
func (m *Message) IsUnreadFor(userID string) bool {
	return m.RecipientID == userID && m.ReadAt == nil && !m.IsDeleted
}

// MessageRef identifies a message that structurally depends on another one.
type MessageRef struct {
	ID        string
	IsDeleted bool
}

// Conversations is the per-user aggregation returned by GetConversations.
// Threads is keyed by thread key; each slice is ordered by CreatedAt ascending.
type Conversations struct {
	Threads     map[string][]*Message `json:"conversations"`
	UnreadCount int                   `json:"unread_count"`
}
