package postgres

import (
	"context"
	"fmt"

	"prodflow/internal/store"

	"github.com/google/uuid"
)

func (s *Store) CreateOperator(ctx context.Context, tx store.Tx, op *store.Operator) error {
	query := `
		INSERT INTO operators (id, name, category, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.getExecutor(tx).ExecContext(ctx, query, op.ID, op.Name, op.Category, op.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create operator %s: %w", op.Name, conflict(err))
	}
	return nil
}

func (s *Store) GetOperatorByID(ctx context.Context, tx store.Tx, id uuid.UUID) (*store.Operator, error) {
	query := "SELECT id, name, category, created_at FROM operators WHERE id = $1"

	var op store.Operator
	err := s.getExecutor(tx).QueryRowContext(ctx, query, id).Scan(&op.ID, &op.Name, &op.Category, &op.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &op, nil
}

// FindOperatorByCategory prefers an exact (case-insensitive) category match,
// then falls back to containment. Ties are broken by name.
func (s *Store) FindOperatorByCategory(ctx context.Context, tx store.Tx, keyword string) (*store.Operator, error) {
	if keyword == "" {
		return nil, store.ErrNotFound
	}
	query := `
		SELECT id, name, category, created_at
		FROM operators
		WHERE LOWER(category) = LOWER($1)
		   OR POSITION(LOWER($1) IN LOWER(category)) > 0
		ORDER BY (LOWER(category) = LOWER($1)) DESC, name ASC
		LIMIT 1
	`
	var op store.Operator
	err := s.getExecutor(tx).QueryRowContext(ctx, query, keyword).Scan(&op.ID, &op.Name, &op.Category, &op.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &op, nil
}

func (s *Store) ListOperators(ctx context.Context) ([]store.Operator, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, category, created_at FROM operators ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list operators: %w", err)
	}
	defer rows.Close()

	var ops []store.Operator
	for rows.Next() {
		var op store.Operator
		if err := rows.Scan(&op.ID, &op.Name, &op.Category, &op.CreatedAt); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}
