package db

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tempchat/internal/app/chat"
)

const messageColumns = `id, author_id, content, image, image_type, image_key, created_at, expires_at, expire_on_disconnect`

// MessageStore implements chat.Store on PostgreSQL.
type MessageStore struct {
	pool *pgxpool.Pool
}

// NewMessageStore returns a store using pool.
func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

func scanMessage(row pgx.CollectableRow) (chat.Message, error) {
	var m chat.Message
	err := row.Scan(
		&m.ID,
		&m.AuthorID,
		&m.Content,
		&m.Image,
		&m.ImageType,
		&m.ImageKey,
		&m.CreatedAt,
		&m.ExpiresAt,
		&m.ExpireOnDisconnect,
	)
	return m, err
}

func (s *MessageStore) query(ctx context.Context, sql string, args ...any) ([]chat.Message, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanMessage)
}

func (s *MessageStore) Insert(ctx context.Context, msg chat.Message) (chat.Message, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (author_id, content, image, image_type, image_key, created_at, expires_at, expire_on_disconnect)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		msg.AuthorID, msg.Content, msg.Image, msg.ImageType, msg.ImageKey, msg.CreatedAt, msg.ExpiresAt, msg.ExpireOnDisconnect,
	).Scan(&msg.ID)
	if isConflictingExpiry(err) {
		return chat.Message{}, fmt.Errorf("insert message: %w", ErrConflictingExpiry)
	}
	if err != nil {
		return chat.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) Get(ctx context.Context, id int64) (chat.Message, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	if err != nil {
		return chat.Message{}, fmt.Errorf("get message %d: %w", id, err)
	}

	msg, err := pgx.CollectExactlyOneRow(rows, scanMessage)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Message{}, chat.ErrNotFound
	}
	if err != nil {
		return chat.Message{}, fmt.Errorf("get message %d: %w", id, err)
	}
	return msg, nil
}

func (s *MessageStore) DeleteByID(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete message %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteBatch deletes in a single statement. Row locks make a concurrent deleter of the
// same id skip it, so RETURNING reports each id to exactly one caller.
func (s *MessageStore) DeleteBatch(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `DELETE FROM messages WHERE id = ANY($1) RETURNING id`, ids)
	if err != nil {
		return nil, fmt.Errorf("delete batch: %w", err)
	}

	deleted, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("delete batch: %w", err)
	}
	return deleted, nil
}

func (s *MessageStore) QueryDueExpirations(ctx context.Context, now time.Time) ([]chat.Message, error) {
	msgs, err := s.query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at, id`, now)
	if err != nil {
		return nil, fmt.Errorf("query due expirations: %w", err)
	}
	return msgs, nil
}

// modeClause is the WHERE fragment selecting rows of mode.
func modeClause(mode chat.ExpiryMode) string {
	switch mode {
	case chat.ExpireOnDisconnect:
		return `expire_on_disconnect`
	case chat.ExpireAt:
		return `expires_at IS NOT NULL`
	default:
		return `expires_at IS NULL AND NOT expire_on_disconnect`
	}
}

func (s *MessageStore) QueryByAuthorAndMode(ctx context.Context, authorID string, mode chat.ExpiryMode) ([]chat.Message, error) {
	msgs, err := s.query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE author_id = $1 AND `+modeClause(mode)+`
		ORDER BY id`, authorID)
	if err != nil {
		return nil, fmt.Errorf("query messages of %s: %w", authorID, err)
	}
	return msgs, nil
}

func (s *MessageStore) QueryByMode(ctx context.Context, mode chat.ExpiryMode) ([]chat.Message, error) {
	msgs, err := s.query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE `+modeClause(mode)+`
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query messages by mode %s: %w", mode, err)
	}
	return msgs, nil
}

func (s *MessageStore) QueryRecentLive(ctx context.Context, now time.Time, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}

	msgs, err := s.query(ctx, `
		SELECT `+messageColumns+` FROM (
			SELECT `+messageColumns+` FROM messages
			WHERE expires_at IS NULL OR expires_at > $1
			ORDER BY id DESC
			LIMIT $2
		) recent
		ORDER BY id`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	return msgs, nil
}
