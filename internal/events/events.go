// Package events publishes batch lifecycle events to downstream consumers.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Type names a lifecycle event.
type Type string

const (
	BatchCreated      Type = "batch.created"
	ProgressRecorded  Type = "batch.progress_recorded"
	PackagingRecorded Type = "batch.packaging_recorded"
	StatusChanged     Type = "batch.status_changed"
	OutcomeSet        Type = "batch.outcome_set"
	BatchMoved        Type = "batch.moved"
	ShadowCreated     Type = "batch.shadow_created"
)

// Event is the payload published for every committed lifecycle change.
type Event struct {
	ID             string    `json:"id"`
	Type           Type      `json:"type"`
	BatchID        uuid.UUID `json:"batch_id"`
	BatchNumber    string    `json:"batch_number"`
	RoomID         uuid.UUID `json:"room_id"`
	Status         string    `json:"status"`
	Progress       int       `json:"progress"`
	TargetQuantity int       `json:"target_quantity"`
	PackagingCount *int      `json:"packaging_count,omitempty"`
	Outcome        string    `json:"outcome,omitempty"`
	RequestID      string    `json:"request_id,omitempty"`
	Time           time.Time `json:"time"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error { return f(ctx, event) }
