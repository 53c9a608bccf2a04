package lifecycle

import (
	"context"

	"prodflow/internal/events"
	"prodflow/internal/store"

	"github.com/google/uuid"
)

// StatusResult is returned by the operator status marks.
type StatusResult struct {
	Batch  *store.Batch
	Shadow *ShadowResult
}

// transitionStatus moves a batch from one status to another under its row lock.
func (s *Service) transitionStatus(ctx context.Context, batchID uuid.UUID, from store.StatusKind, apply func(b *store.Batch)) (*store.Batch, *store.Room, error) {
	var (
		out  *store.Batch
		room *store.Room
	)
	err := s.inTx(ctx, func(tx store.Tx) error {
		b, err := s.lockBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if b.Outcome == store.OutcomeReject {
			return newError(KindRejectedBatchImmutable, "batch %s was rejected", b.BatchNumber)
		}
		if !b.Status.Is(from) {
			return newError(KindInvalidStateForTransition, "batch %s is %s, expected %s", b.BatchNumber, b.Status, from)
		}
		if room, err = s.room(ctx, tx, b.RoomID); err != nil {
			return err
		}
		apply(b)
		b.UpdatedAt = s.now()
		if err := s.store.UpdateBatch(ctx, tx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.publish(ctx, events.StatusChanged, out)
	return out, room, nil
}

// MarkInProgress starts work on a Waiting batch. In a fan-out source room this
// also ensures the downstream shadow record.
func (s *Service) MarkInProgress(ctx context.Context, batchID uuid.UUID) (*StatusResult, error) {
	ctx, span := s.startSpan(ctx, "lifecycle.mark_in_progress", batchID)
	var err error
	defer func() { endSpan(span, err) }()

	b, room, err := s.transitionStatus(ctx, batchID, store.StatusWaiting, func(b *store.Batch) {
		b.Status = store.InProgress
		if b.StartedAt == nil {
			b.StartedAt = ptrTime(s.now())
		}
	})
	if err != nil {
		return nil, err
	}
	res := &StatusResult{Batch: b}
	if s.policy.IsShadowSource(room.Kind) {
		sh := s.EnsureShadow(ctx, b.ID)
		res.Shadow = &sh
	}
	return res, nil
}

// MarkFinished hands an InProgress batch to verification.
func (s *Service) MarkFinished(ctx context.Context, batchID uuid.UUID) (*StatusResult, error) {
	ctx, span := s.startSpan(ctx, "lifecycle.mark_finished", batchID)
	var err error
	defer func() { endSpan(span, err) }()

	b, _, err := s.transitionStatus(ctx, batchID, store.StatusInProgress, func(b *store.Batch) {
		b.Status = store.WaitingAdminVerification
		b.FinishedAt = ptrTime(s.now())
	})
	if err != nil {
		return nil, err
	}
	return &StatusResult{Batch: b}, nil
}

// MarkReady flags an InProgress batch as ready to be moved on.
func (s *Service) MarkReady(ctx context.Context, batchID uuid.UUID) (*StatusResult, error) {
	ctx, span := s.startSpan(ctx, "lifecycle.mark_ready", batchID)
	var err error
	defer func() { endSpan(span, err) }()

	b, _, err := s.transitionStatus(ctx, batchID, store.StatusInProgress, func(b *store.Batch) {
		b.Status = store.ReadyToMove
		b.FinishedAt = ptrTime(s.now())
	})
	if err != nil {
		return nil, err
	}
	return &StatusResult{Batch: b}, nil
}
