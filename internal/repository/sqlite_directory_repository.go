package repository

import (
	"context"
	"database/sql"

	"github.com/listinginbox/backend/internal/model"
)

// SqliteProfileRepository is the embedded SQLite implementation of ProfileRepository.
type SqliteProfileRepository struct {
	db *sql.DB
}

// NewSqliteProfileRepository creates a SqliteProfileRepository.
func NewSqliteProfileRepository(db *sql.DB) *SqliteProfileRepository {
	return &SqliteProfileRepository{db: db}
}

var _ ProfileRepository = (*SqliteProfileRepository)(nil)

func (r *SqliteProfileRepository) FindByIDs(ctx context.Context, ids []string) ([]*model.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, email FROM users WHERE id IN (`+inPlaceholders(len(ids))+`)`, stringArgs(ids)...)
	if err != nil {
		return nil, mapSqliteError(err)
	}
	defer rows.Close()

	var profiles []*model.Profile
	for rows.Next() {
		var p model.Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.Email); err != nil {
			return nil, mapSqliteError(err)
		}
		profiles = append(profiles, &p)
	}
	return profiles, mapSqliteError(rows.Err())
}

// SqliteListingRepository is the embedded SQLite implementation of ListingRepository.
type SqliteListingRepository struct {
	db *sql.DB
}

// NewSqliteListingRepository creates a SqliteListingRepository.
func NewSqliteListingRepository(db *sql.DB) *SqliteListingRepository {
	return &SqliteListingRepository{db: db}
}

var _ ListingRepository = (*SqliteListingRepository)(nil)

func (r *SqliteListingRepository) FindSummaries(ctx context.Context, ids []string) ([]*model.ListingSummary, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT l.id, l.title, l.seller_id,
		        COALESCE((SELECT li.url FROM listing_images li
		                  WHERE li.listing_id = l.id
		                  ORDER BY li.position, li.id LIMIT 1), '')
		 FROM listings l
		 WHERE l.id IN (`+inPlaceholders(len(ids))+`)`, stringArgs(ids)...)
	if err != nil {
		return nil, mapSqliteError(err)
	}
	defer rows.Close()

	var list []*model.ListingSummary
	for rows.Next() {
		var s model.ListingSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.SellerID, &s.ImageURL); err != nil {
			return nil, mapSqliteError(err)
		}
		list = append(list, &s)
	}
	return list, mapSqliteError(rows.Err())
}

func (r *SqliteListingRepository) IncrementContactCount(ctx context.Context, listingID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE listings SET contact_count = contact_count + 1 WHERE id = ?`, listingID)
	if err != nil {
		return mapSqliteError(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return mapSqliteError(err)
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}
