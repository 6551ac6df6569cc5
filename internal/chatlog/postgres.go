package chatlog

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresStore persists history entries in the chat_log table. Photos stay
// on the filesystem regardless of the log backend; this type only covers
// LogStore. Schema lives in migrations/.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an already connected pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type logRow struct {
	At    time.Time `db:"at"`
	Actor string    `db:"actor"`
	Kind  string    `db:"kind"`
	Body  string    `db:"body"`
}

// Append implements LogStore.
func (p *PostgresStore) Append(ctx context.Context, userID int64, e Entry) error {
	const q = `
		INSERT INTO chat_log (user_id, at, actor, kind, body)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := p.db.ExecContext(ctx, q, userID, e.At.UTC(), string(e.Actor), string(e.Kind), e.Body); err != nil {
		return fmt.Errorf("chatlog: insert: %w", err)
	}
	return nil
}

// ReadAll implements LogStore, returning entries in append order.
func (p *PostgresStore) ReadAll(ctx context.Context, userID int64) ([]Entry, error) {
	const q = `
		SELECT at, actor, kind, body
		FROM chat_log
		WHERE user_id = $1
		ORDER BY id`
	var rows []logRow
	if err := p.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, fmt.Errorf("chatlog: select: %w", err)
	}
	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, Entry{
			At:    r.At,
			Actor: Actor(r.Actor),
			Kind:  Kind(r.Kind),
			Body:  r.Body,
		})
	}
	return entries, nil
}

// Erase implements LogStore.
func (p *PostgresStore) Erase(ctx context.Context, userID int64) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM chat_log WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("chatlog: delete: %w", err)
	}
	return nil
}

// Users implements LogStore.
func (p *PostgresStore) Users(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := p.db.SelectContext(ctx, &ids, `SELECT DISTINCT user_id FROM chat_log ORDER BY user_id`); err != nil {
		return nil, fmt.Errorf("chatlog: list users: %w", err)
	}
	return ids, nil
}
