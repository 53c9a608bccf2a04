package postgres

import (
	"context"
	"fmt"

	"prodflow/internal/store"

	"github.com/google/uuid"
)

const roomColumns = "id, code, name, kind, next_room_id, created_at"

// CreateRoom inserts a room. Duplicate code or name maps to store.ErrConflict.
func (s *Store) CreateRoom(ctx context.Context, tx store.Tx, room *store.Room) error {
	query := `
		INSERT INTO rooms (id, code, name, kind, next_room_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.getExecutor(tx).ExecContext(ctx, query,
		room.ID,
		room.Code,
		room.Name,
		room.Kind,
		room.NextRoomID,
		room.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create room %s: %w", room.Code, conflict(err))
	}
	return nil
}

func (s *Store) GetRoomByID(ctx context.Context, tx store.Tx, id uuid.UUID) (*store.Room, error) {
	query := "SELECT " + roomColumns + " FROM rooms WHERE id = $1"
	return scanRoom(s.getExecutor(tx).QueryRowContext(ctx, query, id))
}

func (s *Store) GetRoomByCode(ctx context.Context, tx store.Tx, code string) (*store.Room, error) {
	query := "SELECT " + roomColumns + " FROM rooms WHERE code = $1"
	return scanRoom(s.getExecutor(tx).QueryRowContext(ctx, query, code))
}

// ListRooms returns every room ordered by code.
func (s *Store) ListRooms(ctx context.Context) ([]store.Room, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+roomColumns+" FROM rooms ORDER BY code ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []store.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *r)
	}
	return rooms, rows.Err()
}

func scanRoom(row rowScanner) (*store.Room, error) {
	var r store.Room
	err := row.Scan(&r.ID, &r.Code, &r.Name, &r.Kind, &r.NextRoomID, &r.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}
