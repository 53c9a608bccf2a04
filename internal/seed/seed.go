// Package seed creates the configured room graph and operators at startup.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"prodflow/internal/config"
	"prodflow/internal/store"

	"github.com/google/uuid"
)

// Store is the storage the seeder writes to.
type Store interface {
	BeginTx(ctx context.Context) (store.Tx, error)
	store.RoomStore
	store.OperatorStore
}

// Result counts what a run created.
type Result struct {
	RoomsCreated     int
	OperatorsCreated int
}

// Apply creates every configured room and operator that does not exist yet.
// Rooms are matched by code and operators by name, so Apply can run on every start.
// A room's next reference may name a room defined later in the list.
func Apply(ctx context.Context, s Store, rooms []config.RoomConfig, operators []config.OperatorConfig, logger *slog.Logger) (Result, error) {
	var res Result
	if logger == nil {
		logger = slog.Default()
	}

	existingOps := map[string]bool{}
	if len(operators) > 0 {
		ops, err := s.ListOperators(ctx)
		if err != nil {
			return res, fmt.Errorf("failed to list operators: %w", err)
		}
		for _, op := range ops {
			existingOps[op.Name] = true
		}
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	if res.RoomsCreated, err = applyRooms(ctx, s, tx, rooms); err != nil {
		return Result{}, err
	}

	now := time.Now().UTC()
	for _, oc := range operators {
		if existingOps[oc.Name] {
			continue
		}
		op := &store.Operator{ID: uuid.New(), Name: oc.Name, Category: oc.Category, CreatedAt: now}
		if err := s.CreateOperator(ctx, tx, op); err != nil {
			return Result{}, err
		}
		existingOps[oc.Name] = true
		res.OperatorsCreated++
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("failed to commit seed: %w", err)
	}
	if res.RoomsCreated > 0 || res.OperatorsCreated > 0 {
		logger.Info("seeded catalog", "rooms", res.RoomsCreated, "operators", res.OperatorsCreated)
	}
	return res, nil
}

// applyRooms creates rooms successor-first so next_room_id always points at a stored room.
func applyRooms(ctx context.Context, s Store, tx store.Tx, rooms []config.RoomConfig) (int, error) {
	ids := map[string]uuid.UUID{}
	var pending []config.RoomConfig
	for _, rc := range rooms {
		existing, err := s.GetRoomByCode(ctx, tx, rc.Code)
		switch {
		case err == nil:
			ids[rc.Code] = existing.ID
		case errors.Is(err, store.ErrNotFound):
			pending = append(pending, rc)
		default:
			return 0, fmt.Errorf("failed to look up room %s: %w", rc.Code, err)
		}
	}

	created := 0
	now := time.Now().UTC()
	for len(pending) > 0 {
		var blocked []config.RoomConfig
		for _, rc := range pending {
			var next *uuid.UUID
			if rc.Next != "" {
				id, ok := ids[rc.Next]
				if !ok {
					blocked = append(blocked, rc)
					continue
				}
				next = &id
			}
			room := &store.Room{
				ID:         uuid.New(),
				Code:       rc.Code,
				Name:       rc.Name,
				Kind:       store.ProcessKind(strings.ToLower(rc.Kind)),
				NextRoomID: next,
				CreatedAt:  now,
			}
			if room.Name == "" {
				room.Name = rc.Code
			}
			if !room.Kind.Valid() {
				return 0, fmt.Errorf("room %s: unknown kind %q", rc.Code, rc.Kind)
			}
			if err := s.CreateRoom(ctx, tx, room); err != nil {
				return 0, fmt.Errorf("failed to create room %s: %w", rc.Code, err)
			}
			ids[rc.Code] = room.ID
			created++
		}
		if len(blocked) == len(pending) {
			codes := make([]string, len(blocked))
			for i, rc := range blocked {
				codes[i] = rc.Code
			}
			return 0, fmt.Errorf("rooms %s reference an unknown or cyclic next room", strings.Join(codes, ", "))
		}
		pending = blocked
	}
	return created, nil
}
