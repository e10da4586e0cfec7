package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/listinginbox/backend/internal/model"
)

// SqliteMessageRepository is the embedded SQLite implementation of MessageRepository,
// used for local development and for exercising the real FK/CHECK constraints in tests.
type SqliteMessageRepository struct {
	db *sql.DB
}

// NewSqliteMessageRepository creates a SqliteMessageRepository on an open database.
func NewSqliteMessageRepository(db *sql.DB) *SqliteMessageRepository {
	return &SqliteMessageRepository{db: db}
}

var _ MessageRepository = (*SqliteMessageRepository)(nil)

func (r *SqliteMessageRepository) queryMessages(ctx context.Context, query string, args ...any) ([]*model.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapSqliteError(err)
	}
	defer rows.Close()

	var list []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, mapSqliteError(err)
		}
		list = append(list, m)
	}
	return list, mapSqliteError(rows.Err())
}

func (r *SqliteMessageRepository) Create(ctx context.Context, m *model.Message) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages
		 (id, listing_id, sender_id, recipient_id, subject, body, include_phone,
		  created_at, parent_message_id, thread_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		m.ID, m.ListingID, m.SenderID, m.RecipientID, m.Subject, m.Body, m.IncludePhone,
		m.CreatedAt.UTC(), m.ParentMessageID, m.ThreadID,
	)
	return mapSqliteError(err)
}

func (r *SqliteMessageRepository) FindByID(ctx context.Context, id string) (*model.Message, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+messageSelectCols+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row.Scan)
	if err != nil {
		return nil, mapSqliteError(err)
	}
	return m, nil
}

func (r *SqliteMessageRepository) ListByParticipant(ctx context.Context, userID string) ([]*model.Message, error) {
	return r.queryMessages(ctx,
		`SELECT `+messageSelectCols+` FROM messages
		 WHERE sender_id = ? OR recipient_id = ?`, userID, userID)
}

func (r *SqliteMessageRepository) ListByThreadKeys(ctx context.Context, keys []string) ([]*model.Message, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	in := inPlaceholders(len(keys))
	args := append(stringArgs(keys), stringArgs(keys)...)
	return r.queryMessages(ctx,
		`SELECT `+messageSelectCols+` FROM messages
		 WHERE thread_id IN (`+in+`) OR id IN (`+in+`)`, args...)
}

func (r *SqliteMessageRepository) ListByParentIDs(ctx context.Context, parentIDs []string) ([]*model.Message, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	return r.queryMessages(ctx,
		`SELECT `+messageSelectCols+` FROM messages
		 WHERE parent_message_id IN (`+inPlaceholders(len(parentIDs))+`)`, stringArgs(parentIDs)...)
}

func (r *SqliteMessageRepository) ListSent(ctx context.Context, userID string) ([]*model.Message, error) {
	return r.queryMessages(ctx,
		`SELECT `+messageSelectCols+` FROM messages
		 WHERE NOT is_deleted
		   AND (sender_id = ?
		        OR (recipient_id = ?
		            AND parent_message_id IN (SELECT id FROM messages WHERE sender_id = ?)))
		 ORDER BY created_at DESC`, userID, userID, userID)
}

func (r *SqliteMessageRepository) ListReceived(ctx context.Context, userID string, archived bool) ([]*model.Message, error) {
	return r.queryMessages(ctx,
		`SELECT `+messageSelectCols+` FROM messages
		 WHERE recipient_id = ? AND is_archived = ? AND NOT is_deleted
		 ORDER BY created_at DESC`, userID, archived)
}

func (r *SqliteMessageRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages
		 WHERE recipient_id = ? AND read_at IS NULL AND NOT is_archived AND NOT is_deleted`,
		userID).Scan(&n)
	return n, mapSqliteError(err)
}

func (r *SqliteMessageRepository) SetThreadIDIfNull(ctx context.Context, id, threadID string) (bool, error) {
	n, err := r.exec(ctx,
		`UPDATE messages SET thread_id = ? WHERE id = ? AND thread_id IS NULL`, threadID, id)
	return n == 1, err
}

func (r *SqliteMessageRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	return r.execOne(ctx,
		`UPDATE messages SET read_at = COALESCE(read_at, ?) WHERE id = ?`, at.UTC(), id)
}

func (r *SqliteMessageRepository) MarkReadBulk(ctx context.Context, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := append([]any{at.UTC()}, stringArgs(ids)...)
	return r.exec(ctx,
		`UPDATE messages SET read_at = ?
		 WHERE id IN (`+inPlaceholders(len(ids))+`) AND read_at IS NULL`, args...)
}

func (r *SqliteMessageRepository) MarkUnread(ctx context.Context, id string) error {
	return r.execOne(ctx, `UPDATE messages SET read_at = NULL WHERE id = ?`, id)
}

func (r *SqliteMessageRepository) SetArchived(ctx context.Context, id string, archived bool) error {
	return r.execOne(ctx, `UPDATE messages SET is_archived = ? WHERE id = ?`, archived, id)
}

func (r *SqliteMessageRepository) ListDependents(ctx context.Context, id string) ([]model.MessageRef, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, is_deleted FROM messages
		 WHERE (parent_message_id = ? OR thread_id = ?) AND id <> ?
		 ORDER BY created_at`, id, id, id)
	if err != nil {
		return nil, mapSqliteError(err)
	}
	defer rows.Close()

	var refs []model.MessageRef
	for rows.Next() {
		var ref model.MessageRef
		if err := rows.Scan(&ref.ID, &ref.IsDeleted); err != nil {
			return nil, mapSqliteError(err)
		}
		refs = append(refs, ref)
	}
	return refs, mapSqliteError(rows.Err())
}

func (r *SqliteMessageRepository) Delete(ctx context.Context, id string) (bool, error) {
	n, err := r.exec(ctx, `DELETE FROM messages WHERE id = ?`, id)
	return n == 1, err
}

func (r *SqliteMessageRepository) Tombstone(ctx context.Context, id, body string) (bool, error) {
	n, err := r.exec(ctx,
		`UPDATE messages SET is_deleted = 1, body = ? WHERE id = ? AND NOT is_deleted`, body, id)
	return n == 1, err
}

func (r *SqliteMessageRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapSqliteError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapSqliteError(err)
	}
	return n, nil
}

func (r *SqliteMessageRepository) execOne(ctx context.Context, query string, args ...any) error {
	n, err := r.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
