package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/listinginbox/backend/internal/model"
	"github.com/listinginbox/backend/internal/repository"
)

// notifyTimeout bounds a single best-effort notification.
const notifyTimeout = 2 * time.Second

// messageServiceImpl is the production implementation of MessageService.
type messageServiceImpl struct {
	messages repository.MessageRepository
	listings repository.ListingRepository
	notifier Notifier
	opts     Options
	policy   callPolicy
	threads  *threadResolver
	enricher *enricher
}

// NewMessageService creates a MessageService over the given stores.
// notifier may be nil, in which case no notifications are sent.
func NewMessageService(
	messages repository.MessageRepository,
	listings repository.ListingRepository,
	profiles repository.ProfileRepository,
	notifier Notifier,
	opts Options,
) MessageService {
	opts = opts.withDefaults()
	policy := callPolicy{timeout: opts.CallTimeout, maxRetries: opts.MaxRetries, backoff: opts.RetryBackoff}

	dir := NewDirectory(profiles, opts.ProfileBatchSize)
	dir.policy = policy

	return &messageServiceImpl{
		messages: messages,
		listings: listings,
		notifier: notifier,
		opts:     opts,
		policy:   policy,
		threads:  &threadResolver{messages: messages, policy: policy},
		enricher: &enricher{dir: dir, listings: listings, policy: policy},
	}
}

func (s *messageServiceImpl) findMessage(ctx context.Context, id string) (*model.Message, error) {
	if id == "" {
		return nil, validationError("message id is required")
	}
	return call(ctx, s.policy, "messages.find_by_id", func(ctx context.Context) (*model.Message, error) {
		return s.messages.FindByID(ctx, id)
	})
}

func (s *messageServiceImpl) SendContactMessage(ctx context.Context, listingID, recipientID, senderID string, in ContactInput) (msg *model.Message, err error) {
	ctx, span := startSpan(ctx, "SendContactMessage", attribute.String("listing_id", listingID))
	defer func() { endSpan(span, err) }()

	if err := validateContact(listingID, recipientID, senderID, in); err != nil {
		return nil, err
	}

	msg = &model.Message{
		ID:           s.opts.NewID(),
		ListingID:    listingID,
		SenderID:     senderID,
		RecipientID:  recipientID,
		Subject:      in.Subject,
		Body:         in.Body,
		IncludePhone: in.IncludePhone,
		CreatedAt:    s.opts.Now(),
	}
	if err := s.policy.do(ctx, "messages.create", func(ctx context.Context) error {
		return s.messages.Create(ctx, msg)
	}); err != nil {
		return nil, err
	}
	messagesCreated.WithLabelValues("contact").Inc()
	slog.InfoContext(ctx, "contact message created", "message_id", msg.ID, "listing_id", listingID)

	if err := s.policy.do(ctx, "listings.increment_contact_count", func(ctx context.Context) error {
		return s.listings.IncrementContactCount(ctx, listingID)
	}); err != nil {
		slog.WarnContext(ctx, "contact count increment failed", "listing_id", listingID, "error", err)
		bestEffortFailures.WithLabelValues("contact_count").Inc()
	}

	s.notify(ctx, model.NotificationContact, msg)
	return msg, nil
}

// notify dispatches a notification about m. Failures are logged and counted only.
func (s *messageServiceImpl) notify(ctx context.Context, kind string, m *model.Message) {
	if s.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	n := model.Notification{
		Kind:        kind,
		MessageID:   m.ID,
		ListingID:   m.ListingID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Subject:     m.Subject,
		ThreadKey:   m.ThreadKey(),
		Channels:    []string{model.ChannelEmail, model.ChannelInApp},
		CreatedAt:   m.CreatedAt,
	}
	if err := s.notifier.Notify(nctx, n); err != nil {
		slog.WarnContext(ctx, "notification dispatch failed", "kind", kind, "message_id", m.ID, "error", err)
		bestEffortFailures.WithLabelValues("notify").Inc()
	}
}

func (s *messageServiceImpl) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	return s.findMessage(ctx, id)
}

func (s *messageServiceImpl) GetSentMessages(ctx context.Context, userID string) (msgs []*model.Message, err error) {
	ctx, span := startSpan(ctx, "GetSentMessages")
	defer func() { endSpan(span, err) }()

	msgs, err = call(ctx, s.policy, "messages.list_sent", func(ctx context.Context) ([]*model.Message, error) {
		return s.messages.ListSent(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return s.finishList(ctx, msgs), nil
}

func (s *messageServiceImpl) GetReceivedMessages(ctx context.Context, userID string) (msgs []*model.Message, err error) {
	ctx, span := startSpan(ctx, "GetReceivedMessages")
	defer func() { endSpan(span, err) }()
	return s.listReceived(ctx, userID, false)
}

func (s *messageServiceImpl) GetArchivedMessages(ctx context.Context, userID string) (msgs []*model.Message, err error) {
	ctx, span := startSpan(ctx, "GetArchivedMessages")
	defer func() { endSpan(span, err) }()
	return s.listReceived(ctx, userID, true)
}

func (s *messageServiceImpl) listReceived(ctx context.Context, userID string, archived bool) ([]*model.Message, error) {
	msgs, err := call(ctx, s.policy, "messages.list_received", func(ctx context.Context) ([]*model.Message, error) {
		return s.messages.ListReceived(ctx, userID, archived)
	})
	if err != nil {
		return nil, err
	}
	return s.finishList(ctx, msgs), nil
}

func (s *messageServiceImpl) finishList(ctx context.Context, msgs []*model.Message) []*model.Message {
	if msgs == nil {
		msgs = []*model.Message{}
	}
	s.enricher.enrich(ctx, msgs)
	sortNewestFirst(msgs)
	return msgs
}

func (s *messageServiceImpl) MarkAsRead(ctx context.Context, id string) (err error) {
	ctx, span := startSpan(ctx, "MarkAsRead", attribute.String("message_id", id))
	defer func() { endSpan(span, err) }()

	now := s.opts.Now()
	return s.policy.do(ctx, "messages.mark_read", func(ctx context.Context) error {
		return s.messages.MarkRead(ctx, id, now)
	})
}

func (s *messageServiceImpl) MarkAsUnread(ctx context.Context, id string) (err error) {
	ctx, span := startSpan(ctx, "MarkAsUnread", attribute.String("message_id", id))
	defer func() { endSpan(span, err) }()

	return s.policy.do(ctx, "messages.mark_unread", func(ctx context.Context) error {
		return s.messages.MarkUnread(ctx, id)
	})
}

func (s *messageServiceImpl) GetUnreadMessageCount(ctx context.Context, userID string) (int, error) {
	return call(ctx, s.policy, "messages.count_unread", func(ctx context.Context) (int, error) {
		return s.messages.CountUnread(ctx, userID)
	})
}

func (s *messageServiceImpl) ArchiveMessage(ctx context.Context, id string) (err error) {
	ctx, span := startSpan(ctx, "ArchiveMessage", attribute.String("message_id", id))
	defer func() { endSpan(span, err) }()
	return s.setArchived(ctx, id, true)
}

func (s *messageServiceImpl) UnarchiveMessage(ctx context.Context, id string) (err error) {
	ctx, span := startSpan(ctx, "UnarchiveMessage", attribute.String("message_id", id))
	defer func() { endSpan(span, err) }()
	return s.setArchived(ctx, id, false)
}

func (s *messageServiceImpl) setArchived(ctx context.Context, id string, archived bool) error {
	return s.policy.do(ctx, "messages.set_archived", func(ctx context.Context) error {
		return s.messages.SetArchived(ctx, id, archived)
	})
}
