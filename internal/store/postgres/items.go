package postgres

import (
	"context"
	"fmt"

	"prodflow/internal/store"

	"github.com/google/uuid"
)

func (s *Store) CreateItem(ctx context.Context, tx store.Tx, item *store.Item) error {
	query := `
		INSERT INTO items (id, barcode, description, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.getExecutor(tx).ExecContext(ctx, query, item.ID, item.Barcode, item.Description, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", conflict(err))
	}
	return nil
}

func (s *Store) GetItemByID(ctx context.Context, tx store.Tx, id uuid.UUID) (*store.Item, error) {
	query := "SELECT id, barcode, description, created_at FROM items WHERE id = $1"

	var it store.Item
	err := s.getExecutor(tx).QueryRowContext(ctx, query, id).Scan(&it.ID, &it.Barcode, &it.Description, &it.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &it, nil
}

func (s *Store) ListItems(ctx context.Context, limit int) ([]store.Item, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, barcode, description, created_at FROM items ORDER BY description ASC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []store.Item
	for rows.Next() {
		var it store.Item
		if err := rows.Scan(&it.ID, &it.Barcode, &it.Description, &it.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ImportItems skips rows whose description or barcode is already stored.
func (s *Store) ImportItems(ctx context.Context, tx store.Tx, items []store.Item) (int, error) {
	executor := s.getExecutor(tx)
	query := `
		INSERT INTO items (id, barcode, description, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`
	inserted := 0
	for _, it := range items {
		res, err := executor.ExecContext(ctx, query, it.ID, it.Barcode, it.Description, it.CreatedAt)
		if err != nil {
			return inserted, fmt.Errorf("failed to import item %q: %w", it.Description, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, err
		}
		inserted += int(n)
	}
	return inserted, nil
}
