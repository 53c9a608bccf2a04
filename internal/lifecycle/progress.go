package lifecycle

import (
	"context"

	"prodflow/internal/events"
	"prodflow/internal/store"

	"github.com/google/uuid"
)

const (
	actionProgress  = "add_progress"
	actionPackaging = "add_packaging"
)

// ProgressResult is the outcome of AddProgress. A replayed token yields the
// current state with Duplicate set and nothing applied.
type ProgressResult struct {
	Batch     *store.Batch
	Progress  int
	Finished  bool
	Duplicate bool

	// Next is the Waiting record spawned in the next room on completion.
	Next *store.Batch
	// Warning is set when the next room already held the batch number.
	Warning ErrorKind

	Shadow *ShadowResult
}

// AddProgress adds delta to the batch's progress in its current room and applies
// the room completion policy when the target is reached.
func (s *Service) AddProgress(ctx context.Context, batchID uuid.UUID, delta int, clientToken string) (*ProgressResult, error) {
	ctx, span := s.startSpan(ctx, "lifecycle.add_progress", batchID)
	var err error
	defer func() { endSpan(span, err) }()

	if delta <= 0 {
		err = newError(KindInvalidQuantity, "quantity must be positive, got %d", delta)
		return nil, err
	}

	res := &ProgressResult{}
	var room *store.Room
	completed := false

	err = s.inTx(ctx, func(tx store.Tx) error {
		b, err := s.lockBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}
		isNew, err := s.claimToken(ctx, tx, clientToken, actionProgress)
		if err != nil {
			return err
		}
		if !isNew {
			res.Batch, res.Progress, res.Finished, res.Duplicate = b, b.Progress, b.Status.Finished(), true
			return nil
		}

		if b.Outcome == store.OutcomeReject {
			return newError(KindRejectedBatchImmutable, "batch %s was rejected", b.BatchNumber)
		}
		if room, err = s.room(ctx, tx, b.RoomID); err != nil {
			return err
		}
		if s.policy.IsPackaging(room.Kind) {
			return newError(KindInvalidStateForTransition, "room %s records packaging, not quantity", room.Code)
		}
		if !b.Status.Is(store.StatusWaiting) && !b.Status.Is(store.StatusInProgress) {
			return newError(KindInvalidStateForTransition, "cannot add progress to a batch in status %s", b.Status)
		}
		if b.Progress+delta > b.TargetQuantity {
			return withAllowed(KindQuantityExceedsTarget, b.Remaining(),
				"adding %d would exceed target %d", delta, b.TargetQuantity)
		}

		now := s.now()
		b.Progress += delta
		if b.StartedAt == nil {
			b.StartedAt = ptrTime(now)
		}
		b.Status = store.InProgress
		b.UpdatedAt = now

		if b.Progress == b.TargetQuantity {
			completed = true
			if s.policy.IsGate(room.Kind) {
				b.Status = store.WaitingAdminVerification
			} else {
				b.Status = store.FinishedThisRoom(room.ID)
				b.FinishedAt = ptrTime(now)
				if err := s.recordHistory(ctx, tx, b); err != nil {
					return err
				}
			}
		}
		if err := s.store.UpdateBatch(ctx, tx, b); err != nil {
			return err
		}

		if completed && b.Status.Is(store.StatusFinishedThisRoom) && s.autoAdvance && room.NextRoomID != nil {
			spawn, err := s.spawnNext(ctx, tx, b, *room.NextRoomID, nil)
			switch {
			case IsKind(err, KindRejectedBatchImmutable):
				// the record finishes here but goes no further
				s.log(ctx).Warn("not advancing rejected batch", "batch_number", b.BatchNumber)
			case err != nil:
				return err
			default:
				res.Next, res.Warning = spawn.batch, spawn.warning
			}
		}

		res.Batch, res.Progress, res.Finished = b, b.Progress, completed
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Duplicate {
		return res, nil
	}

	span.SetAttributes(batchAttrs(res.Batch)...)
	s.metrics.progressEvents.Add(ctx, 1)
	s.publish(ctx, events.ProgressRecorded, res.Batch)
	if completed {
		s.metrics.completions.Add(ctx, 1)
		s.log(ctx).Info("batch finished room",
			"batch_number", res.Batch.BatchNumber, "room", room.Code, "status", res.Batch.Status.String())
		s.publish(ctx, events.StatusChanged, res.Batch)
	}
	if res.Next != nil {
		s.metrics.transitions.Add(ctx, 1)
		s.publish(ctx, events.BatchCreated, res.Next)
	}
	if s.policy.IsShadowSource(room.Kind) {
		sh := s.EnsureShadow(ctx, res.Batch.ID)
		res.Shadow = &sh
	}
	return res, nil
}

// PackagingInput is a packaging count increment in a packaging room.
type PackagingInput struct {
	BatchID uuid.UUID
	Delta   int

	// ClientToken makes the call idempotent; one is generated when empty.
	ClientToken   string
	PackagingUnit *store.PackagingUnit
}

// PackagingResult reports the packaging total after AddPackaging. AllowedMore and
// the remaining figures are nil when the batch has no (or a zero) estimate.
type PackagingResult struct {
	Batch           *store.Batch
	Total           int
	Overrun         bool
	AllowedMore     *int
	RemainingBefore *int
	RemainingAfter  *int
	Duplicate       bool
	ClientToken     string
}

// hardCap is 150% of the estimate, rounded down.
func hardCap(estimate int) int {
	return estimate * 3 / 2
}

// packagingEstimate returns the batch's packaging estimate. An unset or zero
// estimate means no estimate, and neither packaging guard applies.
func packagingEstimate(b *store.Batch) (int, bool) {
	if b.EstimatedPackaging == nil || *b.EstimatedPackaging <= 0 {
		return 0, false
	}
	return *b.EstimatedPackaging, true
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// AddPackaging accumulates a packaging count. With an estimate set, totals above
// 150% of it are refused and increments larger than the remaining estimate are
// accepted but flagged as overrun.
func (s *Service) AddPackaging(ctx context.Context, in PackagingInput) (*PackagingResult, error) {
	ctx, span := s.startSpan(ctx, "lifecycle.add_packaging", in.BatchID)
	var err error
	defer func() { endSpan(span, err) }()

	if in.Delta <= 0 {
		err = newError(KindInvalidQuantity, "packaging quantity must be positive, got %d", in.Delta)
		return nil, err
	}
	if in.PackagingUnit != nil && !in.PackagingUnit.Valid() {
		err = newError(KindInvalidInput, "unknown packaging unit %q", *in.PackagingUnit)
		return nil, err
	}
	token := in.ClientToken
	if token == "" {
		token = uuid.NewString()
	}

	res := &PackagingResult{ClientToken: token}
	err = s.inTx(ctx, func(tx store.Tx) error {
		b, err := s.lockBatch(ctx, tx, in.BatchID)
		if err != nil {
			return err
		}
		isNew, err := s.claimToken(ctx, tx, token, actionPackaging)
		if err != nil {
			return err
		}
		current := b.PackagingTotal()
		if !isNew {
			res.Batch, res.Total, res.Duplicate = b, current, true
			if est, ok := packagingEstimate(b); ok {
				allowed := nonNegative(hardCap(est) - current)
				remaining := nonNegative(est - current)
				res.AllowedMore, res.RemainingBefore, res.RemainingAfter = &allowed, &remaining, &remaining
			}
			return nil
		}

		if b.Outcome == store.OutcomeReject {
			return newError(KindRejectedBatchImmutable, "batch %s was rejected", b.BatchNumber)
		}
		room, err := s.room(ctx, tx, b.RoomID)
		if err != nil {
			return err
		}
		if !s.policy.IsPackaging(room.Kind) {
			return newError(KindInvalidStateForTransition, "room %s does not record packaging", room.Code)
		}
		if b.Status.Finished() {
			return newError(KindInvalidStateForTransition, "cannot add packaging to a batch in status %s", b.Status)
		}

		total := current + in.Delta
		if est, ok := packagingEstimate(b); ok {
			limit := hardCap(est)
			if total > limit {
				return withAllowed(KindPackagingOverEstimateHardCap, nonNegative(limit-current),
					"packaging total %d would exceed 150%% of estimate %d", total, est)
			}
			before := nonNegative(est - current)
			after := nonNegative(est - total)
			allowed := limit - total
			res.RemainingBefore, res.RemainingAfter, res.AllowedMore = &before, &after, &allowed
			res.Overrun = in.Delta > before
		}

		now := s.now()
		b.PackagingCount = &total
		if in.PackagingUnit != nil {
			pu := *in.PackagingUnit
			b.PackagingUnit = &pu
		}
		if b.Status.Is(store.StatusWaiting) {
			b.Status = store.InProgress
		}
		if b.StartedAt == nil {
			b.StartedAt = ptrTime(now)
		}
		b.UpdatedAt = now
		if err := s.store.UpdateBatch(ctx, tx, b); err != nil {
			return err
		}
		res.Batch, res.Total = b, total
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Duplicate {
		return res, nil
	}

	s.metrics.progressEvents.Add(ctx, 1)
	if res.Overrun {
		s.log(ctx).Warn("packaging exceeds remaining estimate",
			"batch_number", res.Batch.BatchNumber, "total", res.Total)
	}
	s.publish(ctx, events.PackagingRecorded, res.Batch)
	return res, nil
}

// FinalizePackaging closes a packaging room: the batch becomes FinishedProduction
// and its history snapshot is written.
func (s *Service) FinalizePackaging(ctx context.Context, batchID uuid.UUID) (*store.Batch, error) {
	ctx, span := s.startSpan(ctx, "lifecycle.finalize_packaging", batchID)
	var err error
	defer func() { endSpan(span, err) }()

	var out *store.Batch
	err = s.inTx(ctx, func(tx store.Tx) error {
		b, err := s.lockBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if b.Outcome == store.OutcomeReject {
			return newError(KindRejectedBatchImmutable, "batch %s was rejected", b.BatchNumber)
		}
		room, err := s.room(ctx, tx, b.RoomID)
		if err != nil {
			return err
		}
		if !s.policy.IsPackaging(room.Kind) {
			return newError(KindInvalidStateForTransition, "room %s does not record packaging", room.Code)
		}
		if b.Status.Is(store.StatusFinishedProduction) {
			return newError(KindInvalidStateForTransition, "batch %s is already finished", b.BatchNumber)
		}
		if b.PackagingTotal() <= 0 {
			return newError(KindInvalidQuantity, "no packaging recorded for batch %s", b.BatchNumber)
		}

		now := s.now()
		b.Status = store.FinishedProduction
		b.FinishedAt = ptrTime(now)
		b.UpdatedAt = now
		if err := s.store.UpdateBatch(ctx, tx, b); err != nil {
			return err
		}
		if err := s.recordHistory(ctx, tx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.completions.Add(ctx, 1)
	s.log(ctx).Info("production finished", "batch_number", out.BatchNumber, "packaging", out.PackagingTotal())
	s.publish(ctx, events.StatusChanged, out)
	return out, nil
}
