package service

import (
	"context"
	"log/slog"

	"github.com/listinginbox/backend/internal/model"
)

// replySubjectPrefix is prepended to the original subject on every reply.
const replySubjectPrefix = "Re: "

// replyRecipient returns who a reply from senderID to original is addressed to.
func replyRecipient(original *model.Message, senderID string) string {
	if senderID == original.RecipientID {
		return original.SenderID
	}
	return original.RecipientID
}

func (s *messageServiceImpl) ReplyToMessage(ctx context.Context, originalID string, in ReplyInput, senderID string) (reply *model.Message, err error) {
	ctx, span := startSpan(ctx, "ReplyToMessage")
	defer func() { endSpan(span, err) }()

	if err := validateReply(originalID, senderID, in); err != nil {
		return nil, err
	}

	original, err := s.findMessage(ctx, originalID)
	if err != nil {
		return nil, err
	}
	if !original.HasParticipant(senderID) {
		return nil, ErrPermissionDenied
	}

	key, err := s.threads.resolve(ctx, original)
	if err != nil {
		return nil, err
	}

	parentID := original.ID
	reply = &model.Message{
		ID:              s.opts.NewID(),
		ListingID:       original.ListingID,
		SenderID:        senderID,
		RecipientID:     replyRecipient(original, senderID),
		Subject:         replySubjectPrefix + original.Subject,
		Body:            in.Body,
		CreatedAt:       s.opts.Now(),
		ParentMessageID: &parentID,
		ThreadID:        &key,
	}
	if err := s.policy.do(ctx, "messages.create", func(ctx context.Context) error {
		return s.messages.Create(ctx, reply)
	}); err != nil {
		return nil, err
	}
	messagesCreated.WithLabelValues("reply").Inc()
	slog.InfoContext(ctx, "reply created", "message_id", reply.ID, "parent_id", parentID, "thread_key", key)

	s.notify(ctx, model.NotificationReply, reply)
	return reply, nil
}
