package lifecycle

import (
	"context"
	"fmt"
	"time"

	"prodflow/internal/events"
	"prodflow/internal/store"

	"github.com/google/uuid"
)

// SweepResult summarises one PromoteDue pass.
type SweepResult struct {
	Promoted       int
	ShadowsCreated int
}

// PromoteDue moves Waiting batches whose scheduled start has passed to InProgress.
// Packaging rooms are left alone. Concurrent sweepers skip each other's rows.
func (s *Service) PromoteDue(ctx context.Context, limit int) (SweepResult, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.promote_due")
	var err error
	defer func() { endSpan(span, err) }()

	now := s.now()
	var (
		promoted []store.Batch
		sources  []uuid.UUID
	)
	err = s.inTx(ctx, func(tx store.Tx) error {
		due, err := s.store.ClaimDueWaiting(ctx, tx, now, s.policy.PackagingKinds, limit)
		if err != nil {
			return err
		}
		for i := range due {
			b := &due[i]
			room, err := s.room(ctx, tx, b.RoomID)
			if err != nil {
				return err
			}
			b.Status = store.InProgress
			if b.StartedAt == nil {
				b.StartedAt = ptrTime(now)
			}
			b.UpdatedAt = now
			if err := s.store.UpdateBatch(ctx, tx, b); err != nil {
				return fmt.Errorf("failed to promote batch %s: %w", b.BatchNumber, err)
			}
			if s.policy.IsShadowSource(room.Kind) {
				sources = append(sources, b.ID)
			}
		}
		promoted = due
		return nil
	})
	if err != nil {
		return SweepResult{}, err
	}

	for i := range promoted {
		s.publish(ctx, events.StatusChanged, &promoted[i])
	}
	s.metrics.promotions.Add(ctx, int64(len(promoted)))
	res := SweepResult{Promoted: len(promoted), ShadowsCreated: s.ensureShadows(ctx, sources)}
	if res.Promoted > 0 {
		s.log(ctx).Info("promoted scheduled batches", "count", res.Promoted, "shadows", res.ShadowsCreated)
	}
	return res, nil
}

// ExpireTokens deletes idempotency tokens older than retention.
func (s *Service) ExpireTokens(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	n, err := s.store.DeleteTokensBefore(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to expire idempotency tokens: %w", err)
	}
	return n, nil
}
