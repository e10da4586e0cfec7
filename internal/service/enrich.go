package service

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/listinginbox/backend/internal/model"
	"github.com/listinginbox/backend/internal/repository"
)

// enricher fills the display fields of messages. Lookups are best-effort:
// a failed listing query leaves listing fields empty, a failed profile batch
// falls back to raw ids.
type enricher struct {
	dir      *Directory
	listings repository.ListingRepository
	policy   callPolicy
}

func (e *enricher) enrich(ctx context.Context, msgs []*model.Message) {
	if len(msgs) == 0 {
		return
	}
	userIDs := make([]string, 0, 2*len(msgs))
	listingIDs := make([]string, 0, len(msgs))
	for _, m := range msgs {
		userIDs = append(userIDs, m.SenderID, m.RecipientID)
		listingIDs = append(listingIDs, m.ListingID)
	}

	var (
		people   map[string]Participant
		listings map[string]*model.ListingSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		people = e.dir.Resolve(gctx, userIDs)
		return nil
	})
	g.Go(func() error {
		listings = e.listingSummaries(gctx, uniqueNonEmpty(listingIDs))
		return nil
	})
	_ = g.Wait()

	for _, m := range msgs {
		if p, ok := people[m.SenderID]; ok {
			m.SenderName = p.Name
			m.SenderEmail = p.Email
		}
		if p, ok := people[m.RecipientID]; ok {
			m.RecipientName = p.Name
		}
		if l, ok := listings[m.ListingID]; ok {
			m.ListingTitle = l.Title
			m.ListingImage = l.ImageURL
		}
	}
}

func (e *enricher) listingSummaries(ctx context.Context, ids []string) map[string]*model.ListingSummary {
	out := make(map[string]*model.ListingSummary, len(ids))
	if len(ids) == 0 {
		return out
	}
	summaries, err := call(ctx, e.policy, "listings.find_summaries", func(ctx context.Context) ([]*model.ListingSummary, error) {
		return e.listings.FindSummaries(ctx, ids)
	})
	if err != nil {
		slog.WarnContext(ctx, "listing summary lookup failed", "listings", len(ids), "error", err)
		bestEffortFailures.WithLabelValues("listing_summaries").Inc()
		return out
	}
	for _, s := range summaries {
		out[s.ID] = s
	}
	return out
}
