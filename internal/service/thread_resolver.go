package service

import (
	"context"
	"log/slog"

	"github.com/listinginbox/backend/internal/model"
	"github.com/listinginbox/backend/internal/repository"
)

// threadResolver assigns thread keys to replies.
type threadResolver struct {
	messages repository.MessageRepository
	policy   callPolicy
}

// resolve returns the key a reply to original must carry. A root without an
// explicit thread id is backfilled with its own id first; the backfill is
// conditional, so a racing reply that already set the key wins and its value
// is re-read from the store.
func (r *threadResolver) resolve(ctx context.Context, original *model.Message) (string, error) {
	if original.ThreadID != nil && *original.ThreadID != "" {
		return *original.ThreadID, nil
	}

	key := original.ID
	changed, err := call(ctx, r.policy, "messages.set_thread_id", func(ctx context.Context) (bool, error) {
		return r.messages.SetThreadIDIfNull(ctx, original.ID, key)
	})
	if err != nil {
		return "", err
	}
	if changed {
		original.ThreadID = &key
		return key, nil
	}

	threadBackfillConflicts.Inc()
	current, err := call(ctx, r.policy, "messages.find_by_id", func(ctx context.Context) (*model.Message, error) {
		return r.messages.FindByID(ctx, original.ID)
	})
	if err != nil {
		return "", err
	}
	stored := current.ThreadKey()
	slog.InfoContext(ctx, "thread key already set by a concurrent reply", "message_id", original.ID, "thread_key", stored)
	original.ThreadID = &stored
	return stored, nil
}
