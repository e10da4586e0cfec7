package service

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/listinginbox/backend/internal/model"
	"github.com/listinginbox/backend/internal/repository"
)

// maxConcurrentBatches caps in-flight profile queries per Resolve call.
const maxConcurrentBatches = 4

// Participant is the display data of one user.
type Participant struct {
	Name  string
	Email string
}

// Directory resolves user ids to display data in bounded batches.
type Directory struct {
	profiles  repository.ProfileRepository
	batchSize int
	policy    callPolicy
}

// NewDirectory returns a Directory querying at most batchSize ids per store call.
func NewDirectory(profiles repository.ProfileRepository, batchSize int) *Directory {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Directory{profiles: profiles, batchSize: batchSize}
}

// Resolve returns display data for every non-empty id. It never fails: ids whose
// batch errored or that have no profile are displayed by their raw id.
func (d *Directory) Resolve(ctx context.Context, ids []string) map[string]Participant {
	uniq := uniqueNonEmpty(ids)
	out := make(map[string]Participant, len(uniq))
	if len(uniq) == 0 {
		return out
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBatches)
	for batch := range slices.Chunk(uniq, d.batchSize) {
		g.Go(func() error {
			profiles, err := call(gctx, d.policy, "profiles.find_by_ids", func(ctx context.Context) ([]*model.Profile, error) {
				return d.profiles.FindByIDs(ctx, batch)
			})
			if err != nil {
				// プロフィール取得失敗は表示名のフォールバックで吸収する
				slog.WarnContext(ctx, "profile batch lookup failed", "ids", len(batch), "error", err)
				bestEffortFailures.WithLabelValues("profile_batch").Inc()
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, p := range profiles {
				out[p.ID] = Participant{Name: p.DisplayName(), Email: p.Email}
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, id := range uniq {
		if _, ok := out[id]; !ok {
			out[id] = Participant{Name: id}
		}
	}
	return out
}

func uniqueNonEmpty(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
