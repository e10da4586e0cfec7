package repository

import (
	"context"
	"time"

	"github.com/listinginbox/backend/internal/model"
)

// DB は DB 接続の生存確認を行うインターフェース
type DB interface {
	Ping(ctx context.Context) error
}

// MessageRepository persists marketplace messages.
// Every write is a single statement so concurrent callers can interleave freely.
type MessageRepository interface {
	// Create inserts m. Inserting an id that already exists is a no-op, so retries are safe.
	Create(ctx context.Context, m *model.Message) error
	// FindByID returns ErrNotFound when no row exists (tombstoned rows are returned).
	FindByID(ctx context.Context, id string) (*model.Message, error)

	// ListByParticipant returns every row where userID is the sender or the recipient.
	ListByParticipant(ctx context.Context, userID string) ([]*model.Message, error)
	// ListByThreadKeys returns rows whose thread_id or own id is one of keys.
	ListByThreadKeys(ctx context.Context, keys []string) ([]*model.Message, error)
	// ListByParentIDs returns the direct replies of the given messages.
	ListByParentIDs(ctx context.Context, parentIDs []string) ([]*model.Message, error)
	// ListSent returns non-deleted messages sent by userID plus replies to them addressed back to userID.
	ListSent(ctx context.Context, userID string) ([]*model.Message, error)
	// ListReceived returns non-deleted messages addressed to userID with the given archive flag.
	ListReceived(ctx context.Context, userID string, archived bool) ([]*model.Message, error)
	CountUnread(ctx context.Context, userID string) (int, error)

	// SetThreadIDIfNull sets thread_id only when it is still NULL and reports whether the row changed.
	SetThreadIDIfNull(ctx context.Context, id, threadID string) (bool, error)
	// MarkRead keeps an existing read_at; ErrNotFound when the row is missing.
	MarkRead(ctx context.Context, id string, at time.Time) error
	// MarkReadBulk stamps read_at on the given rows that are still unread.
	MarkReadBulk(ctx context.Context, ids []string, at time.Time) (int64, error)
	MarkUnread(ctx context.Context, id string) error
	SetArchived(ctx context.Context, id string, archived bool) error

	// ListDependents returns rows whose parent_message_id or thread_id is id, excluding id itself.
	ListDependents(ctx context.Context, id string) ([]model.MessageRef, error)
	// Delete hard-deletes a row. It reports false when the row was already gone and
	// returns ErrForeignKeyViolation when another row still references it.
	Delete(ctx context.Context, id string) (bool, error)
	// Tombstone marks a live row deleted and replaces its body. It reports false when the
	// row is missing or already tombstoned.
	Tombstone(ctx context.Context, id, body string) (bool, error)
}

// ProfileRepository reads user display profiles.
type ProfileRepository interface {
	FindByIDs(ctx context.Context, ids []string) ([]*model.Profile, error)
}

// ListingRepository reads listing metadata and bumps the contact counter.
type ListingRepository interface {
	FindSummaries(ctx context.Context, ids []string) ([]*model.ListingSummary, error)
	IncrementContactCount(ctx context.Context, listingID string) error
}
