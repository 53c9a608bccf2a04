package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"prodflow/internal/store"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const batchColumns = `id, batch_number, item_id, target_quantity, unit, room_id, status, status_room_id,
	progress, estimated_packaging, packaging_count, packaging_unit, outcome, operator_id,
	created_at, scheduled_at, started_at, finished_at, updated_at`

// CreateBatch inserts a batch record. The (batch_number, room_id) unique index is
// the final arbiter: a conflicting insert affects no rows and reports
// store.ErrDuplicateBatchInRoom without aborting the surrounding transaction.
func (s *Store) CreateBatch(ctx context.Context, tx store.Tx, b *store.Batch) error {
	query := `
		INSERT INTO batches (` + batchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (batch_number, room_id) DO NOTHING
	`
	res, err := s.getExecutor(tx).ExecContext(ctx, query,
		b.ID,
		b.BatchNumber,
		b.ItemID,
		b.TargetQuantity,
		b.Unit,
		b.RoomID,
		b.Status.Kind,
		b.Status.RoomID,
		b.Progress,
		b.EstimatedPackaging,
		b.PackagingCount,
		b.PackagingUnit,
		b.Outcome,
		b.OperatorID,
		b.CreatedAt,
		b.ScheduledAt,
		b.StartedAt,
		b.FinishedAt,
		b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create batch %s: %w", b.BatchNumber, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrDuplicateBatchInRoom
	}
	return nil
}

func (s *Store) GetBatchByID(ctx context.Context, tx store.Tx, id uuid.UUID) (*store.Batch, error) {
	query := "SELECT " + batchColumns + " FROM batches WHERE id = $1"
	return scanBatch(s.getExecutor(tx).QueryRowContext(ctx, query, id))
}

// LockBatch must run inside tx; the row lock is released on commit or rollback.
func (s *Store) LockBatch(ctx context.Context, tx store.Tx, id uuid.UUID) (*store.Batch, error) {
	query := "SELECT " + batchColumns + " FROM batches WHERE id = $1 FOR UPDATE"
	return scanBatch(s.getExecutor(tx).QueryRowContext(ctx, query, id))
}

func (s *Store) FindBatchInRoom(ctx context.Context, tx store.Tx, batchNumber string, roomID uuid.UUID, forUpdate bool) (*store.Batch, error) {
	query := "SELECT " + batchColumns + " FROM batches WHERE batch_number = $1 AND room_id = $2"
	if forUpdate {
		query += " FOR UPDATE"
	}
	return scanBatch(s.getExecutor(tx).QueryRowContext(ctx, query, batchNumber, roomID))
}

func (s *Store) LatestBatchByNumber(ctx context.Context, tx store.Tx, batchNumber string) (*store.Batch, error) {
	query := "SELECT " + batchColumns + " FROM batches WHERE batch_number = $1 ORDER BY created_at DESC LIMIT 1"
	return scanBatch(s.getExecutor(tx).QueryRowContext(ctx, query, batchNumber))
}

func (s *Store) BatchNumberExists(ctx context.Context, tx store.Tx, batchNumber string) (bool, error) {
	var exists bool
	err := s.getExecutor(tx).QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM batches WHERE batch_number = $1)", batchNumber).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check batch number %s: %w", batchNumber, err)
	}
	return exists, nil
}

// BatchNumberRejected reports whether any record of batchNumber was rejected.
func (s *Store) BatchNumberRejected(ctx context.Context, tx store.Tx, batchNumber string) (bool, error) {
	var rejected bool
	err := s.getExecutor(tx).QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM batches WHERE batch_number = $1 AND outcome = $2)",
		batchNumber, string(store.OutcomeReject)).Scan(&rejected)
	if err != nil {
		return false, fmt.Errorf("failed to check rejection of %s: %w", batchNumber, err)
	}
	return rejected, nil
}

// UpdateBatch writes back every mutable column. Moving a record onto a room that
// already holds its batch number maps to store.ErrDuplicateBatchInRoom.
func (s *Store) UpdateBatch(ctx context.Context, tx store.Tx, b *store.Batch) error {
	query := `
		UPDATE batches
		SET room_id = $2, status = $3, status_room_id = $4, progress = $5,
		    estimated_packaging = $6, packaging_count = $7, packaging_unit = $8,
		    outcome = $9, operator_id = $10, scheduled_at = $11, started_at = $12,
		    finished_at = $13, updated_at = $14
		WHERE id = $1
	`
	res, err := s.getExecutor(tx).ExecContext(ctx, query,
		b.ID,
		b.RoomID,
		b.Status.Kind,
		b.Status.RoomID,
		b.Progress,
		b.EstimatedPackaging,
		b.PackagingCount,
		b.PackagingUnit,
		b.Outcome,
		b.OperatorID,
		b.ScheduledAt,
		b.StartedAt,
		b.FinishedAt,
		b.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateBatchInRoom
		}
		return fmt.Errorf("failed to update batch %s: %w", b.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListBatches returns records matching the filter, newest first.
func (s *Store) ListBatches(ctx context.Context, filter store.BatchFilter) ([]store.Batch, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.RoomID != nil {
		args = append(args, *filter.RoomID)
		conds = append(conds, fmt.Sprintf("room_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, pq.Array(statuses))
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.BatchNumber != "" {
		args = append(args, filter.BatchNumber)
		conds = append(conds, fmt.Sprintf("batch_number = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := "SELECT " + batchColumns + " FROM batches"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()
	return collectBatches(rows)
}

func (s *Store) CountBatchesByStatus(ctx context.Context) (map[store.StatusKind]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM batches GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count batches: %w", err)
	}
	defer rows.Close()

	counts := make(map[store.StatusKind]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[store.StatusKind(status)] = n
	}
	return counts, rows.Err()
}

// ClaimDueWaiting uses SELECT ... FOR UPDATE SKIP LOCKED so concurrent sweepers
// never promote the same record twice.
func (s *Store) ClaimDueWaiting(ctx context.Context, tx store.Tx, now time.Time, excludeKinds []store.ProcessKind, limit int) ([]store.Batch, error) {
	if limit <= 0 {
		limit = 1
	}
	kinds := make([]string, len(excludeKinds))
	for i, k := range excludeKinds {
		kinds[i] = string(k)
	}

	query := `
		SELECT ` + batchColumns + `
		FROM batches
		WHERE status = $1
		  AND scheduled_at IS NOT NULL
		  AND scheduled_at <= $2
		  AND room_id NOT IN (SELECT id FROM rooms WHERE kind = ANY($3))
		ORDER BY scheduled_at ASC
		LIMIT $4
		FOR UPDATE SKIP LOCKED
	`
	rows, err := s.getExecutor(tx).QueryContext(ctx, query, store.StatusWaiting, now, pq.Array(kinds), limit)
	if err != nil {
		return nil, fmt.Errorf("claim due batches query failed: %w", err)
	}
	defer rows.Close()
	return collectBatches(rows)
}

func collectBatches(rows interface {
	rowScanner
	Next() bool
	Err() error
}) ([]store.Batch, error) {
	var batches []store.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func scanBatch(row rowScanner) (*store.Batch, error) {
	var b store.Batch
	err := row.Scan(
		&b.ID,
		&b.BatchNumber,
		&b.ItemID,
		&b.TargetQuantity,
		&b.Unit,
		&b.RoomID,
		&b.Status.Kind,
		&b.Status.RoomID,
		&b.Progress,
		&b.EstimatedPackaging,
		&b.PackagingCount,
		&b.PackagingUnit,
		&b.Outcome,
		&b.OperatorID,
		&b.CreatedAt,
		&b.ScheduledAt,
		&b.StartedAt,
		&b.FinishedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}
