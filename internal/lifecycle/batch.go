package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"prodflow/internal/events"
	"prodflow/internal/store"

	"github.com/google/uuid"
)

// CreateBatchInput describes a new production run.
type CreateBatchInput struct {
	// BatchNumber is generated when empty.
	BatchNumber    string
	ItemID         uuid.UUID
	TargetQuantity int
	Unit           store.Unit

	// RoomID defaults to the policy entry room.
	RoomID     *uuid.UUID
	OperatorID *uuid.UUID

	EstimatedPackaging *int
	PackagingUnit      *store.PackagingUnit
	ScheduledAt        *time.Time
}

// CreateBatch starts a new batch in its initial room with status Waiting.
func (s *Service) CreateBatch(ctx context.Context, in CreateBatchInput) (*store.Batch, error) {
	ctx, span := s.startSpan(ctx, "lifecycle.create_batch", uuid.Nil)
	var err error
	defer func() { endSpan(span, err) }()

	if in.TargetQuantity <= 0 {
		err = newError(KindInvalidQuantity, "target quantity must be positive, got %d", in.TargetQuantity)
		return nil, err
	}
	if !in.Unit.Valid() {
		err = newError(KindInvalidInput, "unknown unit %q", in.Unit)
		return nil, err
	}
	if in.PackagingUnit != nil && !in.PackagingUnit.Valid() {
		err = newError(KindInvalidInput, "unknown packaging unit %q", *in.PackagingUnit)
		return nil, err
	}
	if in.EstimatedPackaging != nil && *in.EstimatedPackaging < 0 {
		err = newError(KindInvalidQuantity, "estimated packaging must not be negative")
		return nil, err
	}

	roomID := in.RoomID
	if roomID == nil {
		roomID = s.policy.EntryRoomID
	}
	if roomID == nil {
		err = newError(KindInvalidInput, "no initial room given and no entry room configured")
		return nil, err
	}

	number := strings.TrimSpace(in.BatchNumber)
	if number == "" {
		number = s.generateBatchNumber()
	}
	if len(number) > store.MaxBatchNumberLen {
		err = newError(KindInvalidInput, "batch number must be at most %d characters", store.MaxBatchNumberLen)
		return nil, err
	}

	now := s.now()
	b := &store.Batch{
		ID:                 uuid.New(),
		BatchNumber:        number,
		ItemID:             in.ItemID,
		TargetQuantity:     in.TargetQuantity,
		Unit:               in.Unit,
		RoomID:             *roomID,
		Status:             store.Waiting,
		EstimatedPackaging: in.EstimatedPackaging,
		PackagingUnit:      in.PackagingUnit,
		OperatorID:         in.OperatorID,
		CreatedAt:          now,
		ScheduledAt:        in.ScheduledAt,
		UpdatedAt:          now,
	}

	err = s.inTx(ctx, func(tx store.Tx) error {
		if _, err := s.store.GetItemByID(ctx, tx, in.ItemID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return newError(KindNotFound, "item %s not found", in.ItemID)
			}
			return err
		}
		room, err := s.room(ctx, tx, *roomID)
		if err != nil {
			return err
		}
		if b.OperatorID != nil {
			if _, err := s.store.GetOperatorByID(ctx, tx, *b.OperatorID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return newError(KindNotFound, "operator %s not found", *b.OperatorID)
				}
				return err
			}
		} else if b.OperatorID, err = s.defaultOperator(ctx, tx, room); err != nil {
			return err
		}

		exists, err := s.store.BatchNumberExists(ctx, tx, number)
		if err != nil {
			return err
		}
		if exists {
			return newError(KindBatchNumberInUse, "batch number %s is already in use", number)
		}
		if err := s.store.CreateBatch(ctx, tx, b); err != nil {
			if errors.Is(err, store.ErrDuplicateBatchInRoom) {
				return newError(KindBatchNumberInUse, "batch number %s is already in use", number)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(batchAttrs(b)...)
	s.log(ctx).Info("batch created", "batch_number", b.BatchNumber, "room_id", b.RoomID)
	s.publish(ctx, events.BatchCreated, b)
	return b, nil
}

// generateBatchNumber returns yymmdd followed by a short random suffix.
func (s *Service) generateBatchNumber() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%s-%s", s.now().Format("060102"), strings.ToUpper(suffix))
}

// GetBatch returns the committed state of one record.
func (s *Service) GetBatch(ctx context.Context, id uuid.UUID) (*store.Batch, error) {
	b, err := s.store.GetBatchByID(ctx, nil, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindNotFound, "batch %s not found", id)
	}
	return b, err
}

// ListBatches lists records by room and status.
func (s *Service) ListBatches(ctx context.Context, filter store.BatchFilter) ([]store.Batch, error) {
	return s.store.ListBatches(ctx, filter)
}

// ListHistory lists completion snapshots of a room, newest first.
func (s *Service) ListHistory(ctx context.Context, roomID uuid.UUID, limit int) ([]store.HistoryRecord, error) {
	if _, err := s.room(ctx, nil, roomID); err != nil {
		return nil, err
	}
	return s.store.ListHistory(ctx, roomID, limit)
}

// PurgeHistory deletes history finished before the cutoff, or everything when before is nil.
func (s *Service) PurgeHistory(ctx context.Context, before *time.Time) (int64, error) {
	n, err := s.store.PurgeHistory(ctx, before)
	if err != nil {
		return 0, err
	}
	s.log(ctx).Info("history purged", "deleted", n)
	return n, nil
}
