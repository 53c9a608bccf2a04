package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"prodflow/internal/events"
	"prodflow/internal/store"

	"github.com/google/uuid"
)

// MoveMode selects how a transition materialises in the target room.
type MoveMode string

const (
	// MoveRedirect relocates the existing record and resets it to Waiting.
	MoveRedirect MoveMode = "redirect"
	// MoveSpawn leaves the source record in place and creates a Waiting record in the target.
	MoveSpawn MoveMode = "spawn"
)

func (m MoveMode) Valid() bool {
	return m == MoveRedirect || m == MoveSpawn
}

// MoveInput is a request to move one batch to another room.
type MoveInput struct {
	// Ref is a batch id or a batch number. A number resolves to its most recently
	// created record.
	Ref          string
	TargetRoomID uuid.UUID
	OperatorID   *uuid.UUID
	Mode         MoveMode

	// Force skips the finished-status requirement for non-gate rooms, for
	// correcting misrouted batches. Reject, terminal and gate rules still apply.
	Force bool
}

// MoveResult describes a transition. When Warning is KindDuplicateBatchInRoom
// nothing changed and Batch is the source record.
type MoveResult struct {
	Batch   *store.Batch
	Source  *store.Batch
	Mode    MoveMode
	Warning ErrorKind
}

type spawnResult struct {
	batch   *store.Batch
	warning ErrorKind
}

// downstreamRecord copies the identity fields of src into a fresh Waiting record.
func (s *Service) downstreamRecord(src *store.Batch, roomID uuid.UUID, operatorID *uuid.UUID) *store.Batch {
	now := s.now()
	b := &store.Batch{
		ID:             uuid.New(),
		BatchNumber:    src.BatchNumber,
		ItemID:         src.ItemID,
		TargetQuantity: src.TargetQuantity,
		Unit:           src.Unit,
		RoomID:         roomID,
		Status:         store.Waiting,
		OperatorID:     operatorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if src.EstimatedPackaging != nil {
		est := *src.EstimatedPackaging
		b.EstimatedPackaging = &est
	}
	if src.PackagingUnit != nil {
		pu := *src.PackagingUnit
		b.PackagingUnit = &pu
	}
	return b
}

// spawnNext creates src's Waiting record in the target room inside tx. An existing
// record for the batch number there is a soft duplicate, not an error.
func (s *Service) spawnNext(ctx context.Context, tx store.Tx, src *store.Batch, targetRoomID uuid.UUID, operatorID *uuid.UUID) (spawnResult, error) {
	if err := s.ensureNotRejected(ctx, tx, src.BatchNumber); err != nil {
		return spawnResult{}, err
	}
	target, err := s.room(ctx, tx, targetRoomID)
	if err != nil {
		return spawnResult{}, err
	}

	_, err = s.store.FindBatchInRoom(ctx, tx, src.BatchNumber, target.ID, true)
	if err == nil {
		s.log(ctx).Warn("batch already present in target room",
			"batch_number", src.BatchNumber, "room", target.Code)
		return spawnResult{warning: KindDuplicateBatchInRoom}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return spawnResult{}, fmt.Errorf("failed to check target room: %w", err)
	}

	if operatorID == nil {
		if operatorID, err = s.defaultOperator(ctx, tx, target); err != nil {
			return spawnResult{}, err
		}
	}

	next := s.downstreamRecord(src, target.ID, operatorID)
	if err := s.store.CreateBatch(ctx, tx, next); err != nil {
		if errors.Is(err, store.ErrDuplicateBatchInRoom) {
			return spawnResult{warning: KindDuplicateBatchInRoom}, nil
		}
		return spawnResult{}, err
	}
	return spawnResult{batch: next}, nil
}

// ensureNotRejected fails once any record of the batch number has been rejected,
// whichever room the caller is moving from.
func (s *Service) ensureNotRejected(ctx context.Context, tx store.Tx, number string) error {
	rejected, err := s.store.BatchNumberRejected(ctx, tx, number)
	if err != nil {
		return fmt.Errorf("failed to check rejection: %w", err)
	}
	if rejected {
		return newError(KindRejectedBatchImmutable, "batch %s was rejected and cannot move downstream", number)
	}
	return nil
}

// resolveRef locks the record named by an id or a batch number.
func (s *Service) resolveRef(ctx context.Context, tx store.Tx, ref string) (*store.Batch, error) {
	if id, err := uuid.Parse(ref); err == nil {
		b, err := s.store.LockBatch(ctx, tx, id)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	latest, err := s.store.LatestBatchByNumber(ctx, tx, ref)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindNotFound, "batch %q not found", ref)
	}
	if err != nil {
		return nil, err
	}
	return s.lockBatch(ctx, tx, latest.ID)
}

// MoveBatch moves a batch to another room, either by redirecting its record or by
// spawning a new record in the target room.
func (s *Service) MoveBatch(ctx context.Context, in MoveInput) (*MoveResult, error) {
	ctx, span := s.startSpan(ctx, "lifecycle.move_batch", uuid.Nil)
	var err error
	defer func() { endSpan(span, err) }()

	if in.Mode == "" {
		in.Mode = MoveRedirect
	}
	if !in.Mode.Valid() {
		err = newError(KindInvalidInput, "unknown move mode %q", in.Mode)
		return nil, err
	}
	if in.Ref == "" {
		err = newError(KindInvalidInput, "batch reference is required")
		return nil, err
	}

	res := &MoveResult{Mode: in.Mode}
	err = s.inTx(ctx, func(tx store.Tx) error {
		b, err := s.resolveRef(ctx, tx, in.Ref)
		if err != nil {
			return err
		}
		if b.Outcome == store.OutcomeReject {
			return newError(KindRejectedBatchImmutable, "batch %s was rejected and cannot be moved", b.BatchNumber)
		}
		if err := s.ensureNotRejected(ctx, tx, b.BatchNumber); err != nil {
			return err
		}
		source, err := s.room(ctx, tx, b.RoomID)
		if err != nil {
			return err
		}
		if s.policy.IsPackaging(source.Kind) {
			return newError(KindInvalidStateForTransition, "batches in %s cannot be moved", source.Code)
		}
		if s.policy.IsGate(source.Kind) {
			if b.Outcome != store.OutcomeRelease {
				return newError(KindInvalidStateForTransition, "batch %s needs a release decision in %s", b.BatchNumber, source.Code)
			}
		} else if !in.Force && !b.Status.Finished() && !b.Status.Is(store.StatusReadyToMove) {
			return newError(KindInvalidStateForTransition, "batch %s is %s and not ready to move", b.BatchNumber, b.Status)
		}
		if in.TargetRoomID == b.RoomID {
			return newError(KindInvalidStateForTransition, "batch %s is already in %s", b.BatchNumber, source.Code)
		}
		target, err := s.room(ctx, tx, in.TargetRoomID)
		if err != nil {
			return err
		}
		operatorID := in.OperatorID
		if operatorID != nil {
			if _, err := s.store.GetOperatorByID(ctx, tx, *operatorID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return newError(KindNotFound, "operator %s not found", *operatorID)
				}
				return err
			}
		}
		res.Source = b

		if in.Mode == MoveSpawn {
			spawn, err := s.spawnNext(ctx, tx, b, target.ID, operatorID)
			if err != nil {
				return err
			}
			res.Warning = spawn.warning
			res.Batch = spawn.batch
			if res.Batch == nil {
				res.Batch = b
			}
			return nil
		}

		// redirect
		if _, err := s.store.FindBatchInRoom(ctx, tx, b.BatchNumber, target.ID, true); err == nil {
			res.Warning, res.Batch = KindDuplicateBatchInRoom, b
			return nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if operatorID == nil {
			if operatorID, err = s.defaultOperator(ctx, tx, target); err != nil {
				return err
			}
		}
		moved := *b
		moved.RoomID = target.ID
		moved.OperatorID = operatorID
		moved.Status = store.Waiting
		moved.Progress = 0
		moved.Outcome = store.OutcomeUnset
		moved.StartedAt = nil
		moved.FinishedAt = nil
		moved.UpdatedAt = s.now()
		if err := s.store.UpdateBatch(ctx, tx, &moved); err != nil {
			if errors.Is(err, store.ErrDuplicateBatchInRoom) {
				res.Warning, res.Batch = KindDuplicateBatchInRoom, b
				return nil
			}
			return err
		}
		res.Batch = &moved
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(batchAttrs(res.Batch)...)
	if res.Warning != "" {
		return res, nil
	}
	s.metrics.transitions.Add(ctx, 1)
	s.log(ctx).Info("batch moved",
		"batch_number", res.Batch.BatchNumber, "mode", res.Mode, "from", res.Source.RoomID, "to", res.Batch.RoomID)
	s.publish(ctx, events.BatchMoved, res.Batch)
	return res, nil
}

// MoveItemResult is the per-batch outcome of MoveBatches.
type MoveItemResult struct {
	BatchID uuid.UUID
	Result  *MoveResult
	Err     error
}

// MoveBatches moves each listed batch in its own transaction so one failure does
// not undo the others.
func (s *Service) MoveBatches(ctx context.Context, ids []uuid.UUID, targetRoomID uuid.UUID, operatorID *uuid.UUID, mode MoveMode, force bool) []MoveItemResult {
	results := make([]MoveItemResult, 0, len(ids))
	for _, id := range ids {
		res, err := s.MoveBatch(ctx, MoveInput{
			Ref:          id.String(),
			TargetRoomID: targetRoomID,
			OperatorID:   operatorID,
			Mode:         mode,
			Force:        force,
		})
		results = append(results, MoveItemResult{BatchID: id, Result: res, Err: err})
	}
	return results
}
