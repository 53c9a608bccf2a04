package lifecycle

import (
	"context"
	"errors"

	"prodflow/internal/events"
	"prodflow/internal/store"

	"github.com/google/uuid"
)

// ShadowResult reports a shadow propagation attempt. Err is informational only.
type ShadowResult struct {
	Created bool
	Batch   *store.Batch
	Err     error
}

// EnsureShadow makes sure a Waiting placeholder for the batch exists in the
// shadow target room when the batch sits in a fan-out source room.
//
// It is best-effort: it runs in its own transaction, never returns an error, and
// logs and counts failures. Callers invoke it after their own commit so a failure
// here cannot undo the triggering operation.
func (s *Service) EnsureShadow(ctx context.Context, batchID uuid.UUID) ShadowResult {
	ctx, span := s.startSpan(ctx, "lifecycle.ensure_shadow", batchID)
	res, err := s.ensureShadow(ctx, batchID)
	endSpan(span, err)
	if err != nil {
		s.metrics.shadowFailures.Add(ctx, 1)
		s.log(ctx).Error("shadow propagation failed", "batch_id", batchID, "error", err)
		return ShadowResult{Err: err}
	}
	if res.Created {
		s.metrics.shadowsCreated.Add(ctx, 1)
		s.log(ctx).Info("shadow batch created",
			"batch_number", res.Batch.BatchNumber, "room_id", res.Batch.RoomID)
		s.publish(ctx, events.ShadowCreated, res.Batch)
	}
	return res
}

func (s *Service) ensureShadow(ctx context.Context, batchID uuid.UUID) (ShadowResult, error) {
	target := s.policy.ShadowTargetRoomID
	if target == nil {
		return ShadowResult{}, nil
	}

	// cheap pre-check outside the transaction
	src, err := s.store.GetBatchByID(ctx, nil, batchID)
	if err != nil {
		return ShadowResult{}, err
	}
	if src.RoomID == *target {
		return ShadowResult{}, nil
	}
	if _, err := s.store.FindBatchInRoom(ctx, nil, src.BatchNumber, *target, false); err == nil {
		return ShadowResult{}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return ShadowResult{}, err
	}

	var res ShadowResult
	err = s.inTx(ctx, func(tx store.Tx) error {
		b, err := s.lockBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}
		room, err := s.room(ctx, tx, b.RoomID)
		if err != nil {
			return err
		}
		if !s.policy.IsShadowSource(room.Kind) || b.RoomID == *target {
			return nil
		}
		spawn, err := s.spawnNext(ctx, tx, b, *target, nil)
		if err != nil {
			return err
		}
		if spawn.batch != nil {
			res = ShadowResult{Created: true, Batch: spawn.batch}
		}
		return nil
	})
	if err != nil {
		return ShadowResult{}, err
	}
	return res, nil
}

// ensureShadows runs EnsureShadow for every batch id, ignoring failures.
func (s *Service) ensureShadows(ctx context.Context, ids []uuid.UUID) int {
	created := 0
	for _, id := range ids {
		if s.EnsureShadow(ctx, id).Created {
			created++
		}
	}
	return created
}
