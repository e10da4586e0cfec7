package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/listinginbox/backend/internal/model"
	"github.com/listinginbox/backend/internal/repository"
)

type deleteOutcome string

const (
	outcomeHard      deleteOutcome = "hard"
	outcomeTombstone deleteOutcome = "tombstone"
	outcomeSkipped   deleteOutcome = "skipped"
)

type visitState uint8

const (
	stateQueued visitState = iota
	stateExpanded
	stateDone
)

func (s *messageServiceImpl) DeleteMessage(ctx context.Context, id string, cascadeRelated bool) (err error) {
	ctx, span := startSpan(ctx, "DeleteMessage", attribute.String("message_id", id), attribute.Bool("cascade", cascadeRelated))
	defer func() { endSpan(span, err) }()

	m, err := s.findMessage(ctx, id)
	if err != nil {
		return err
	}
	if !cascadeRelated {
		return s.deleteSingle(ctx, m)
	}
	return s.deleteCascade(ctx, m.ID)
}

// deleteSingle tombstones m when a live message still depends on it and
// hard-deletes it otherwise.
func (s *messageServiceImpl) deleteSingle(ctx context.Context, m *model.Message) error {
	deps, err := s.dependents(ctx, m.ID)
	if err != nil {
		return err
	}
	for _, d := range deps {
		if !d.IsDeleted {
			_, err := s.tombstone(ctx, m.ID, m.Body)
			return err
		}
	}
	_, err = s.removeNode(ctx, m.ID)
	return err
}

// deleteCascade removes rootID and everything that transitively depends on it.
// The traversal is an explicit post-order walk over parent and thread edges, so
// a message is only removed after all of its dependents were handled. Messages
// that disappear mid-walk count as handled.
func (s *messageServiceImpl) deleteCascade(ctx context.Context, rootID string) error {
	state := map[string]visitState{rootID: stateQueued}
	stack := []string{rootID}
	counts := make(map[deleteOutcome]int)

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := stack[len(stack)-1]

		switch state[id] {
		case stateDone:
			stack = stack[:len(stack)-1]

		case stateExpanded:
			stack = stack[:len(stack)-1]
			outcome, err := s.removeNode(ctx, id)
			if err != nil {
				return err
			}
			state[id] = stateDone
			counts[outcome]++

		default:
			state[id] = stateExpanded
			deps, err := s.dependents(ctx, id)
			if err != nil {
				return err
			}
			for _, d := range deps {
				if st, ok := state[d.ID]; ok && st != stateQueued {
					continue
				}
				state[d.ID] = stateQueued
				stack = append(stack, d.ID)
			}
		}
	}

	slog.InfoContext(ctx, "cascade delete finished", "message_id", rootID,
		"hard", counts[outcomeHard], "tombstoned", counts[outcomeTombstone], "skipped", counts[outcomeSkipped])
	return nil
}

func (s *messageServiceImpl) dependents(ctx context.Context, id string) ([]model.MessageRef, error) {
	return call(ctx, s.policy, "messages.list_dependents", func(ctx context.Context) ([]model.MessageRef, error) {
		return s.messages.ListDependents(ctx, id)
	})
}

// removeNode hard-deletes id. When the store still finds a reference to it the
// row is tombstoned instead.
func (s *messageServiceImpl) removeNode(ctx context.Context, id string) (deleteOutcome, error) {
	deleted, err := call(ctx, s.policy, "messages.delete", func(ctx context.Context) (bool, error) {
		return s.messages.Delete(ctx, id)
	})
	switch {
	case err == nil && deleted:
		deletionOutcomes.WithLabelValues(string(outcomeHard)).Inc()
		return outcomeHard, nil
	case err == nil:
		deletionOutcomes.WithLabelValues(string(outcomeSkipped)).Inc()
		return outcomeSkipped, nil
	case !errors.Is(err, repository.ErrForeignKeyViolation):
		return "", err
	}

	slog.WarnContext(ctx, "hard delete blocked by a reference, tombstoning", "message_id", id, "error", err)
	m, err := s.findMessage(ctx, id)
	if errors.Is(err, ErrNotFound) {
		deletionOutcomes.WithLabelValues(string(outcomeSkipped)).Inc()
		return outcomeSkipped, nil
	}
	if err != nil {
		return "", err
	}
	return s.tombstone(ctx, m.ID, m.Body)
}

// tombstone marks id deleted and replaces its body with a padded placeholder.
// A row that is gone or already tombstoned is left as is.
func (s *messageServiceImpl) tombstone(ctx context.Context, id, body string) (deleteOutcome, error) {
	changed, err := call(ctx, s.policy, "messages.tombstone", func(ctx context.Context) (bool, error) {
		return s.messages.Tombstone(ctx, id, TombstoneBody(body))
	})
	if err != nil {
		return "", err
	}
	outcome := outcomeSkipped
	if changed {
		outcome = outcomeTombstone
	}
	deletionOutcomes.WithLabelValues(string(outcome)).Inc()
	return outcome, nil
}
