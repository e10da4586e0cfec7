package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/listinginbox/backend/internal/model"
)

// PgMessageRepository is the PostgreSQL implementation of MessageRepository.
type PgMessageRepository struct {
	pool *pgxpool.Pool
}

// NewPgMessageRepository creates a PgMessageRepository backed by the given pool.
func NewPgMessageRepository(pool *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{pool: pool}
}

// Ensure PgMessageRepository implements MessageRepository at compile time.
var _ MessageRepository = (*PgMessageRepository)(nil)

// Ping は DB 接続を確認する（DB インターフェース実装）
func (r *PgMessageRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const messageSelectCols = `id, listing_id, sender_id, recipient_id, subject, body, include_phone,
	created_at, read_at, is_archived, is_deleted, parent_message_id, thread_id`

func scanMessage(scan func(...any) error) (*model.Message, error) {
	m := &model.Message{}
	return m, scan(
		&m.ID, &m.ListingID, &m.SenderID, &m.RecipientID, &m.Subject, &m.Body, &m.IncludePhone,
		&m.CreatedAt, &m.ReadAt, &m.IsArchived, &m.IsDeleted, &m.ParentMessageID, &m.ThreadID,
	)
}

func (r *PgMessageRepository) queryMessages(ctx context.Context, query string, args ...any) ([]*model.Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var list []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, mapPgError(err)
		}
		list = append(list, m)
	}
	return list, mapPgError(rows.Err())
}

func (r *PgMessageRepository) Create(ctx context.Context, m *model.Message) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages
		 (id, listing_id, sender_id, recipient_id, subject, body, include_phone,
		  created_at, parent_message_id, thread_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		m.ID, m.ListingID, m.SenderID, m.RecipientID, m.Subject, m.Body, m.IncludePhone,
		m.CreatedAt, m.ParentMessageID, m.ThreadID,
	)
	return mapPgError(err)
}

func (r *PgMessageRepository) FindByID(ctx context.Context, id string) (*model.Message, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+messageSelectCols+` FROM messages WHERE id = $1`, id)
	m, err := scanMessage(row.Scan)
	if err != nil {
		return nil, mapPgError(err)
	}
	return m, nil
}

func (r *PgMessageRepository) ListByParticipant(ctx context.Context, userID string) ([]*model.Message, error) {
	return r.queryMessages(ctx,
		`SELECT `+messageSelectCols+` FROM messages
		 WHERE sender_id = $1 OR recipient_id = $1`, userID)
}

func (r *PgMessageRepository) ListByThreadKeys(ctx context.Context, keys []string) ([]*model.Message, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	return r.queryMessages(ctx,
		`SELECT `+messageSelectCols+` FROM messages
		 WHERE thread_id = ANY($1) OR id = ANY($1)`, keys)
}

func (r *PgMessageRepository) ListByParentIDs(ctx context.Context, parentIDs []string) ([]*model.Message, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	return r.queryMessages(ctx,
		`SELECT `+messageSelectCols+` FROM messages
		 WHERE parent_message_id = ANY($1)`, parentIDs)
}

func (r *PgMessageRepository) ListSent(ctx context.Context, userID string) ([]*model.Message, error) {
	return r.queryMessages(ctx,
		`SELECT `+messageSelectCols+` FROM messages
		 WHERE NOT is_deleted
		   AND (sender_id = $1
		        OR (recipient_id = $1
		            AND parent_message_id IN (SELECT id FROM messages WHERE sender_id = $1)))
		 ORDER BY created_at DESC`, userID)
}

func (r *PgMessageRepository) ListReceived(ctx context.Context, userID string, archived bool) ([]*model.Message, error) {
	return r.queryMessages(ctx,
		`SELECT `+messageSelectCols+` FROM messages
		 WHERE recipient_id = $1 AND is_archived = $2 AND NOT is_deleted
		 ORDER BY created_at DESC`, userID, archived)
}

func (r *PgMessageRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages
		 WHERE recipient_id = $1 AND read_at IS NULL AND NOT is_archived AND NOT is_deleted`,
		userID).Scan(&n)
	return n, mapPgError(err)
}

func (r *PgMessageRepository) SetThreadIDIfNull(ctx context.Context, id, threadID string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET thread_id = $2 WHERE id = $1 AND thread_id IS NULL`, id, threadID)
	if err != nil {
		return false, mapPgError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgMessageRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET read_at = COALESCE(read_at, $2) WHERE id = $1`, id, at)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgMessageRepository) MarkReadBulk(ctx context.Context, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET read_at = $2 WHERE id = ANY($1) AND read_at IS NULL`, ids, at)
	if err != nil {
		return 0, mapPgError(err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgMessageRepository) MarkUnread(ctx context.Context, id string) error {
	return r.execOne(ctx, `UPDATE messages SET read_at = NULL WHERE id = $1`, id)
}

func (r *PgMessageRepository) SetArchived(ctx context.Context, id string, archived bool) error {
	return r.execOne(ctx, `UPDATE messages SET is_archived = $2 WHERE id = $1`, id, archived)
}

// execOne runs an update that must touch exactly the addressed row.
func (r *PgMessageRepository) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgMessageRepository) ListDependents(ctx context.Context, id string) ([]model.MessageRef, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, is_deleted FROM messages
		 WHERE (parent_message_id = $1 OR thread_id = $1) AND id <> $1
		 ORDER BY created_at`, id)
	if err != nil {
		return nil, mapPgError(err)
	}
	refs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.MessageRef, error) {
		var ref model.MessageRef
		err := row.Scan(&ref.ID, &ref.IsDeleted)
		return ref, err
	})
	return refs, mapPgError(err)
}

func (r *PgMessageRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return false, mapPgError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgMessageRepository) Tombstone(ctx context.Context, id, body string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET is_deleted = TRUE, body = $2 WHERE id = $1 AND NOT is_deleted`, id, body)
	if err != nil {
		return false, mapPgError(err)
	}
	return tag.RowsAffected() == 1, nil
}
