// Package notify dispatches best-effort notifications about new messages.
package notify

import (
	"context"
	"log/slog"

	"github.com/listinginbox/backend/internal/model"
	"github.com/listinginbox/backend/internal/service"
)

// LogNotifier only logs notifications. It is used when no broker is configured.
type LogNotifier struct{}

var _ service.Notifier = LogNotifier{}

func (LogNotifier) Notify(ctx context.Context, n model.Notification) error {
	slog.InfoContext(ctx, "notification",
		"kind", n.Kind,
		"message_id", n.MessageID,
		"recipient_id", n.RecipientID,
		"thread_key", n.ThreadKey,
		"channels", n.Channels,
	)
	return nil
}
