package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/listinginbox/backend/internal/model"
)

// PgListingRepository reads listing titles and cover images and bumps contact counters.
type PgListingRepository struct {
	pool *pgxpool.Pool
}

// NewPgListingRepository creates a PgListingRepository backed by the given pool.
func NewPgListingRepository(pool *pgxpool.Pool) *PgListingRepository {
	return &PgListingRepository{pool: pool}
}

var _ ListingRepository = (*PgListingRepository)(nil)

// FindSummaries returns one summary per existing listing; unknown ids are skipped.
func (r *PgListingRepository) FindSummaries(ctx context.Context, ids []string) ([]*model.ListingSummary, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT l.id, l.title, l.seller_id,
		        COALESCE((SELECT li.url FROM listing_images li
		                  WHERE li.listing_id = l.id
		                  ORDER BY li.position, li.id LIMIT 1), '')
		 FROM listings l
		 WHERE l.id = ANY($1)`, ids)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var list []*model.ListingSummary
	for rows.Next() {
		var s model.ListingSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.SellerID, &s.ImageURL); err != nil {
			return nil, mapPgError(err)
		}
		list = append(list, &s)
	}
	return list, mapPgError(rows.Err())
}

// IncrementContactCount adds one to the listing's contact counter.
func (r *PgListingRepository) IncrementContactCount(ctx context.Context, listingID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE listings SET contact_count = contact_count + 1 WHERE id = $1`, listingID)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
