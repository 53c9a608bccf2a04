package lifecycle

import (
	"context"
	"strings"

	"prodflow/internal/events"
	"prodflow/internal/store"

	"github.com/google/uuid"
)

// OutcomeResult reports a gate decision. Next is set when a release spawned the
// batch's record in the following room.
type OutcomeResult struct {
	Batch   *store.Batch
	Status  store.Status
	Next    *store.Batch
	Warning ErrorKind
}

// ParseOutcome accepts "release" or "reject", case-insensitively.
func ParseOutcome(s string) (store.Outcome, error) {
	switch store.Outcome(strings.ToLower(strings.TrimSpace(s))) {
	case store.OutcomeRelease:
		return store.OutcomeRelease, nil
	case store.OutcomeReject:
		return store.OutcomeReject, nil
	}
	return "", newError(KindInvalidInput, "outcome must be release or reject, got %q", s)
}

// SetOutcome records the Release/Reject decision for a batch waiting on
// verification. A release advances the batch to the next room; a reject ends its
// lifecycle where it is.
func (s *Service) SetOutcome(ctx context.Context, batchID uuid.UUID, outcome store.Outcome) (*OutcomeResult, error) {
	ctx, span := s.startSpan(ctx, "lifecycle.set_outcome", batchID)
	var err error
	defer func() { endSpan(span, err) }()

	if outcome != store.OutcomeRelease && outcome != store.OutcomeReject {
		err = newError(KindInvalidInput, "outcome must be release or reject, got %q", outcome)
		return nil, err
	}

	res := &OutcomeResult{}
	err = s.inTx(ctx, func(tx store.Tx) error {
		b, err := s.lockBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if b.Outcome == store.OutcomeReject {
			return newError(KindRejectedBatchImmutable, "batch %s was rejected", b.BatchNumber)
		}
		if !b.Status.Is(store.StatusWaitingAdminVerification) {
			return newError(KindInvalidStateForTransition, "batch %s is %s, not waiting for verification", b.BatchNumber, b.Status)
		}
		room, err := s.room(ctx, tx, b.RoomID)
		if err != nil {
			return err
		}

		now := s.now()
		b.Outcome = outcome
		b.Status = store.FinishedThisRoom(room.ID)
		b.FinishedAt = ptrTime(now)
		b.UpdatedAt = now
		if err := s.store.UpdateBatch(ctx, tx, b); err != nil {
			return err
		}
		if err := s.recordHistory(ctx, tx, b); err != nil {
			return err
		}

		if outcome == store.OutcomeRelease && room.NextRoomID != nil {
			spawn, err := s.spawnNext(ctx, tx, b, *room.NextRoomID, nil)
			if err != nil {
				return err
			}
			res.Next, res.Warning = spawn.batch, spawn.warning
		}
		res.Batch, res.Status = b, b.Status
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(batchAttrs(res.Batch)...)
	s.metrics.completions.Add(ctx, 1)
	s.log(ctx).Info("outcome recorded", "batch_number", res.Batch.BatchNumber, "outcome", outcome)
	s.publish(ctx, events.OutcomeSet, res.Batch)
	if res.Next != nil {
		s.metrics.transitions.Add(ctx, 1)
		s.publish(ctx, events.BatchCreated, res.Next)
	}
	return res, nil
}
