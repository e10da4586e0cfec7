package service

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/listinginbox/backend/internal/model"
)

// messageSet accumulates messages by id.
type messageSet struct {
	byID  map[string]*model.Message
	order []string
}

func newMessageSet() *messageSet {
	return &messageSet{byID: make(map[string]*model.Message)}
}

// add reports how many of msgs were not yet in the set.
func (s *messageSet) add(msgs []*model.Message) int {
	n := 0
	for _, m := range msgs {
		if _, ok := s.byID[m.ID]; ok {
			continue
		}
		s.byID[m.ID] = m
		s.order = append(s.order, m.ID)
		n++
	}
	return n
}

func (s *messageSet) all() []*model.Message {
	out := make([]*model.Message, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// collectConversation discovers every message of every thread userID takes part in.
//
// Starting from direct participation it alternates two lookups until nothing
// new turns up: all members of each known thread key, and all direct replies
// of each known message. The second lookup finds replies whose root never
// received an explicit thread id.
func (s *messageServiceImpl) collectConversation(ctx context.Context, userID string) ([]*model.Message, error) {
	direct, err := call(ctx, s.policy, "messages.list_by_participant", func(ctx context.Context) ([]*model.Message, error) {
		return s.messages.ListByParticipant(ctx, userID)
	})
	if err != nil {
		return nil, err
	}

	set := newMessageSet()
	set.add(direct)
	keysSeen := make(map[string]bool)
	parentsSeen := make(map[string]bool)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var keys, parents []string
		for _, id := range set.order {
			m := set.byID[id]
			if k := m.ThreadKey(); !keysSeen[k] {
				keysSeen[k] = true
				keys = append(keys, k)
			}
			if !parentsSeen[m.ID] {
				parentsSeen[m.ID] = true
				parents = append(parents, m.ID)
			}
		}
		if len(keys) == 0 && len(parents) == 0 {
			break
		}

		if len(keys) > 0 {
			members, err := call(ctx, s.policy, "messages.list_by_thread_keys", func(ctx context.Context) ([]*model.Message, error) {
				return s.messages.ListByThreadKeys(ctx, keys)
			})
			if err != nil {
				return nil, err
			}
			set.add(members)
		}
		if len(parents) > 0 {
			replies, err := call(ctx, s.policy, "messages.list_by_parent_ids", func(ctx context.Context) ([]*model.Message, error) {
				return s.messages.ListByParentIDs(ctx, parents)
			})
			if err != nil {
				return nil, err
			}
			set.add(replies)
		}
	}
	return set.all(), nil
}

func (s *messageServiceImpl) GetConversations(ctx context.Context, userID string) (out *model.Conversations, err error) {
	ctx, span := startSpan(ctx, "GetConversations", attribute.String("user_id", userID))
	defer func() { endSpan(span, err) }()

	msgs, err := s.collectConversation(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.enricher.enrich(ctx, msgs)

	out = &model.Conversations{Threads: groupByThread(msgs)}
	for _, m := range msgs {
		if m.IsUnreadFor(userID) {
			out.UnreadCount++
		}
	}
	span.SetAttributes(attribute.Int("threads", len(out.Threads)), attribute.Int("messages", len(msgs)))
	return out, nil
}

func (s *messageServiceImpl) GetMessageThread(ctx context.Context, threadKey, userID string) (msgs []*model.Message, err error) {
	ctx, span := startSpan(ctx, "GetMessageThread", attribute.String("thread_key", threadKey))
	defer func() { endSpan(span, err) }()

	if threadKey == "" {
		return nil, validationError("thread key is required")
	}
	msgs, err = call(ctx, s.policy, "messages.list_by_thread_keys", func(ctx context.Context) ([]*model.Message, error) {
		return s.messages.ListByThreadKeys(ctx, []string{threadKey})
	})
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrNotFound
	}
	if !slices.ContainsFunc(msgs, func(m *model.Message) bool { return m.HasParticipant(userID) }) {
		return nil, ErrPermissionDenied
	}

	s.autoMarkRead(ctx, msgs, userID)
	s.enricher.enrich(ctx, msgs)
	sortThread(msgs)
	return msgs, nil
}

// autoMarkRead stamps the caller's unread messages in msgs and persists the
// stamps in one conditional bulk update. A failed write only logs.
func (s *messageServiceImpl) autoMarkRead(ctx context.Context, msgs []*model.Message, userID string) {
	now := s.opts.Now()
	var ids []string
	for _, m := range msgs {
		if m.IsUnreadFor(userID) {
			at := now
			m.ReadAt = &at
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return
	}
	if _, err := call(ctx, s.policy, "messages.mark_read_bulk", func(ctx context.Context) (int64, error) {
		return s.messages.MarkReadBulk(ctx, ids, now)
	}); err != nil {
		slog.WarnContext(ctx, "auto mark read failed", "messages", len(ids), "error", err)
		bestEffortFailures.WithLabelValues("auto_mark_read").Inc()
	}
}

func groupByThread(msgs []*model.Message) map[string][]*model.Message {
	threads := make(map[string][]*model.Message)
	for _, m := range msgs {
		k := m.ThreadKey()
		threads[k] = append(threads[k], m)
	}
	for _, t := range threads {
		sortThread(t)
	}
	return threads
}

// sortThread orders msgs by creation time ascending, id breaking ties.
func sortThread(msgs []*model.Message) {
	slices.SortFunc(msgs, func(a, b *model.Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// sortNewestFirst orders msgs by creation time descending.
func sortNewestFirst(msgs []*model.Message) {
	slices.SortFunc(msgs, func(a, b *model.Message) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}
