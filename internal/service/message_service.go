package service

import (
	"context"
	"time"

	"github.com/listinginbox/backend/internal/model"
)

const (
	// MinBodyLength is the shortest body the store accepts, tombstones included.
	MinBodyLength = 10
	// MaxBodyLength is the longest body the store accepts.
	MaxBodyLength = 5000
)

// ContactInput is the payload of a first contact about a listing.
type ContactInput struct {
	Subject      string `json:"subject" validate:"required,max=200"`
	Body         string `json:"body" validate:"required"`
	IncludePhone bool   `json:"include_phone"`
}

// ReplyInput is the payload of a reply.
type ReplyInput struct {
	Body string `json:"body" validate:"required"`
}

// Notifier dispatches best-effort notifications about new messages.
// Delivery is not guaranteed; the engine logs and ignores Notify errors.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// MessageService is the conversation engine: thread resolution, aggregation,
// reply chains, read/archive state and cascade deletion.
type MessageService interface {
	// SendContactMessage creates a root message from senderID to the listing's seller.
	SendContactMessage(ctx context.Context, listingID, recipientID, senderID string, in ContactInput) (*model.Message, error)
	// ReplyToMessage answers originalID; the reply joins the original's thread.
	ReplyToMessage(ctx context.Context, originalID string, in ReplyInput, senderID string) (*model.Message, error)

	GetMessage(ctx context.Context, id string) (*model.Message, error)
	GetSentMessages(ctx context.Context, userID string) ([]*model.Message, error)
	GetReceivedMessages(ctx context.Context, userID string) ([]*model.Message, error)
	GetArchivedMessages(ctx context.Context, userID string) ([]*model.Message, error)

	// GetConversations returns every thread userID takes part in, keyed by thread key.
	GetConversations(ctx context.Context, userID string) (*model.Conversations, error)
	// GetMessageThread returns one thread in ascending order and marks the caller's unread messages read.
	GetMessageThread(ctx context.Context, threadKey, userID string) ([]*model.Message, error)

	MarkAsRead(ctx context.Context, id string) error
	MarkAsUnread(ctx context.Context, id string) error
	GetUnreadMessageCount(ctx context.Context, userID string) (int, error)

	ArchiveMessage(ctx context.Context, id string) error
	UnarchiveMessage(ctx context.Context, id string) error

	// DeleteMessage hard-deletes id, or tombstones it when something still depends on it.
	// With cascadeRelated every transitive dependent is removed first.
	DeleteMessage(ctx context.Context, id string, cascadeRelated bool) error
}

// Options tunes the engine. Zero values fall back to defaults.
type Options struct {
	CallTimeout      time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	ProfileBatchSize int

	Now   func() time.Time
	NewID func() string
}

func (o Options) withDefaults() Options {
	if o.CallTimeout <= 0 {
		o.CallTimeout = 5 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 50 * time.Millisecond
	}
	if o.ProfileBatchSize <= 0 {
		o.ProfileBatchSize = 10
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.NewID == nil {
		o.NewID = newMessageID
	}
	return o
}
