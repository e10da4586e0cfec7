package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/listinginbox/backend/internal/model"
)

// PgProfileRepository は ProfileRepository の PostgreSQL 実装
type PgProfileRepository struct {
	pool *pgxpool.Pool
}

// NewPgProfileRepository は PgProfileRepository を生成する
func NewPgProfileRepository(pool *pgxpool.Pool) *PgProfileRepository {
	return &PgProfileRepository{pool: pool}
}

var _ ProfileRepository = (*PgProfileRepository)(nil)

// FindByIDs は ID 集合に対応するプロフィールを取得する（存在しない ID は結果に含まれない）
func (r *PgProfileRepository) FindByIDs(ctx context.Context, ids []string) ([]*model.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, COALESCE(name, ''), COALESCE(email, '') FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var profiles []*model.Profile
	for rows.Next() {
		var p model.Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.Email); err != nil {
			return nil, mapPgError(err)
		}
		profiles = append(profiles, &p)
	}
	return profiles, mapPgError(rows.Err())
}
