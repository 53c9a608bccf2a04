package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"prodflow/internal/store"

	"github.com/google/uuid"
)

// RecordHistory is get-or-create on (batch_number, room_id, started_at, finished_at).
func (s *Store) RecordHistory(ctx context.Context, tx store.Tx, rec *store.HistoryRecord) (bool, error) {
	query := `
		INSERT INTO history_records
			(batch_number, item_id, quantity, unit, room_id, operator_id, outcome, started_at, finished_at, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (batch_number, room_id, started_at, finished_at) DO NOTHING
		RETURNING id
	`
	err := s.getExecutor(tx).QueryRowContext(ctx, query,
		rec.BatchNumber,
		rec.ItemID,
		rec.Quantity,
		rec.Unit,
		rec.RoomID,
		rec.OperatorID,
		rec.Outcome,
		rec.StartedAt,
		rec.FinishedAt,
		rec.RecordedAt,
	).Scan(&rec.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// conflict: the snapshot already exists
			return false, nil
		}
		return false, fmt.Errorf("failed to record history for %s: %w", rec.BatchNumber, err)
	}
	return true, nil
}

// ListHistory returns the most recent completions in a room.
func (s *Store) ListHistory(ctx context.Context, roomID uuid.UUID, limit int) ([]store.HistoryRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, batch_number, item_id, quantity, unit, room_id, operator_id, outcome,
		       started_at, finished_at, recorded_at
		FROM history_records
		WHERE room_id = $1
		ORDER BY finished_at DESC, id DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var records []store.HistoryRecord
	for rows.Next() {
		var r store.HistoryRecord
		if err := rows.Scan(&r.ID, &r.BatchNumber, &r.ItemID, &r.Quantity, &r.Unit, &r.RoomID,
			&r.OperatorID, &r.Outcome, &r.StartedAt, &r.FinishedAt, &r.RecordedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) PurgeHistory(ctx context.Context, before *time.Time) (int64, error) {
	var (
		query = "DELETE FROM history_records"
		args  []interface{}
	)
	if before != nil {
		query += " WHERE finished_at < $1"
		args = append(args, *before)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to purge history: %w", err)
	}
	return res.RowsAffected()
}
