// Package lifecycle implements the production batch state machine: progress
// accumulation, the outcome gate, room transitions, shadow propagation and the
// idempotency guard. Every mutating operation runs in one store transaction that
// locks the acted-upon batch first.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"prodflow/internal/events"
	"prodflow/internal/logger"
	"prodflow/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Service is safe for concurrent use; all shared state lives in the store.
type Service struct {
	store       store.Backend
	policy      Policy
	publisher   events.Publisher
	logger      *slog.Logger
	metrics     *metrics
	tracer      trace.Tracer
	now         func() time.Time
	autoAdvance bool
}

// Option configures a Service.
type Option func(*Service)

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithAutoAdvance controls whether a batch finishing a non-gate room spawns its
// Waiting record in the next room. Enabled by default.
func WithAutoAdvance(on bool) Option {
	return func(s *Service) { s.autoAdvance = on }
}

// NewService creates the lifecycle service.
func NewService(backend store.Backend, policy Policy, opts ...Option) *Service {
	s := &Service{
		store:       backend,
		policy:      policy,
		publisher:   events.Nop{},
		logger:      slog.Default(),
		tracer:      otel.Tracer("prodflow/lifecycle"),
		now:         time.Now,
		autoAdvance: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newMetrics(s.logger)
	return s
}

// Policy returns the resolved room roles.
func (s *Service) Policy() Policy {
	return s.policy
}

// inTx runs fn in a transaction and commits when fn returns nil.
func (s *Service) inTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Service) startSpan(ctx context.Context, name string, batchID uuid.UUID) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("batch.id", batchID.String())))
}

func endSpan(span trace.Span, err error) {
	if err != nil && KindOf(err) == "" {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return logger.FromContext(ctx, s.logger)
}

// lockBatch reads and locks the batch, translating a missing row.
func (s *Service) lockBatch(ctx context.Context, tx store.Tx, id uuid.UUID) (*store.Batch, error) {
	b, err := s.store.LockBatch(ctx, tx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindNotFound, "batch %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load batch %s: %w", id, err)
	}
	return b, nil
}

func (s *Service) room(ctx context.Context, tx store.Tx, id uuid.UUID) (*store.Room, error) {
	r, err := s.store.GetRoomByID(ctx, tx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindNotFound, "room %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room %s: %w", id, err)
	}
	return r, nil
}

// claimToken records a client token inside tx. It reports false for a replay.
// An empty token always counts as new.
func (s *Service) claimToken(ctx context.Context, tx store.Tx, token, action string) (bool, error) {
	if token == "" {
		return true, nil
	}
	isNew, err := s.store.InsertToken(ctx, tx, &store.IdempotencyToken{
		Token:     token,
		Action:    action,
		CreatedAt: s.now(),
	})
	if err != nil {
		return false, err
	}
	if !isNew {
		s.metrics.duplicates.Add(ctx, 1)
	}
	return isNew, nil
}

// CheckAndRecord is the standalone idempotency guard: it reports true the first
// time token is seen and false for every repeat.
func (s *Service) CheckAndRecord(ctx context.Context, token, action string) (bool, error) {
	if token == "" {
		return false, newError(KindInvalidInput, "token is required")
	}
	var isNew bool
	err := s.inTx(ctx, func(tx store.Tx) error {
		var err error
		isNew, err = s.claimToken(ctx, tx, token, action)
		return err
	})
	return isNew, err
}

// recordHistory writes the completion snapshot once. A missing start time falls
// back to the finish time so the get-or-create key is always complete. Rooms
// finished without a gate decision are recorded as released.
func (s *Service) recordHistory(ctx context.Context, tx store.Tx, b *store.Batch) error {
	outcome := b.Outcome
	if outcome == store.OutcomeUnset {
		outcome = store.OutcomeRelease
	}
	finished := s.now()
	if b.FinishedAt != nil {
		finished = *b.FinishedAt
	}
	started := finished
	if b.StartedAt != nil {
		started = *b.StartedAt
	}
	_, err := s.store.RecordHistory(ctx, tx, &store.HistoryRecord{
		BatchNumber: b.BatchNumber,
		ItemID:      b.ItemID,
		Quantity:    b.TargetQuantity,
		Unit:        b.Unit,
		RoomID:      b.RoomID,
		OperatorID:  b.OperatorID,
		Outcome:     outcome,
		StartedAt:   started,
		FinishedAt:  finished,
		RecordedAt:  s.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to record history for %s: %w", b.BatchNumber, err)
	}
	return nil
}

// defaultOperator returns the first operator whose category matches the room kind, or nil.
func (s *Service) defaultOperator(ctx context.Context, tx store.Tx, room *store.Room) (*uuid.UUID, error) {
	op, err := s.store.FindOperatorByCategory(ctx, tx, string(room.Kind))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up default operator for %s: %w", room.Code, err)
	}
	id := op.ID
	return &id, nil
}

// publish emits an event after commit. Delivery failures are logged only.
func (s *Service) publish(ctx context.Context, typ events.Type, b *store.Batch) {
	ev := events.Event{
		ID:             uuid.NewString(),
		Type:           typ,
		BatchID:        b.ID,
		BatchNumber:    b.BatchNumber,
		RoomID:         b.RoomID,
		Status:         string(b.Status.Kind),
		Progress:       b.Progress,
		TargetQuantity: b.TargetQuantity,
		PackagingCount: b.PackagingCount,
		Outcome:        string(b.Outcome),
		RequestID:      logger.RequestIDFromContext(ctx),
		Time:           s.now(),
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.metrics.publishFailures.Add(ctx, 1)
		s.log(ctx).Warn("failed to publish lifecycle event",
			"type", typ, "batch_number", b.BatchNumber, "error", err)
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

func batchAttrs(b *store.Batch) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("batch.number", b.BatchNumber),
		attribute.String("batch.room_id", b.RoomID.String()),
		attribute.String("batch.status", string(b.Status.Kind)),
	}
}
