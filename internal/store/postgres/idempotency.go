package postgres

import (
	"context"
	"fmt"
	"time"

	"prodflow/internal/store"
)

// InsertToken reports false when the token was already recorded. Run it inside the
// operation's transaction so a rolled back operation leaves the token unused.
func (s *Store) InsertToken(ctx context.Context, tx store.Tx, token *store.IdempotencyToken) (bool, error) {
	query := `
		INSERT INTO idempotency_tokens (token, action, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO NOTHING
	`
	res, err := s.getExecutor(tx).ExecContext(ctx, query, token.Token, token.Action, token.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to record idempotency token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) DeleteTokensBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM idempotency_tokens WHERE created_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("failed to expire idempotency tokens: %w", err)
	}
	return res.RowsAffected()
}
