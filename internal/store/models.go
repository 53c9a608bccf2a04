// Package store contains the database layer for prodflow.
package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProcessKind is the kind of work a room performs.
type ProcessKind string

const (
	KindWeighing       ProcessKind = "weighing"
	KindProcessing     ProcessKind = "processing"
	KindMixing         ProcessKind = "mixing"
	KindFilling        ProcessKind = "filling"
	KindPackaging      ProcessKind = "packaging"
	KindLabelling      ProcessKind = "labelling"
	KindQualityControl ProcessKind = "quality_control"
)

// Valid reports whether k is one of the known process kinds.
func (k ProcessKind) Valid() bool {
	switch k {
	case KindWeighing, KindProcessing, KindMixing, KindFilling, KindPackaging, KindLabelling, KindQualityControl:
		return true
	}
	return false
}

// Room is a physical processing stage. NextRoomID is nil for the last stage.
type Room struct {
	ID         uuid.UUID
	Code       string
	Name       string
	Kind       ProcessKind
	NextRoomID *uuid.UUID
	CreatedAt  time.Time
}

// IsTerminal reports whether the room has no successor.
func (r *Room) IsTerminal() bool {
	return r.NextRoomID == nil
}

// Operator is a named actor attributed to work done in a room.
type Operator struct {
	ID        uuid.UUID
	Name      string
	Category  string
	CreatedAt time.Time
}

// MatchesCategory reports whether the operator's category loosely matches keyword
// (case-insensitive equality or containment).
func (o *Operator) MatchesCategory(keyword string) bool {
	if keyword == "" {
		return false
	}
	c := strings.ToLower(o.Category)
	k := strings.ToLower(keyword)
	return c == k || strings.Contains(c, k)
}

// Item is a product description a batch is produced for.
type Item struct {
	ID          uuid.UUID
	Barcode     *string
	Description string
	CreatedAt   time.Time
}

// Unit is the unit of measure of a batch's target quantity.
type Unit string

const (
	UnitKilogram Unit = "kg"
	UnitPieces   Unit = "pcs"
	UnitLiter    Unit = "liter"
	UnitPack     Unit = "pack"
)

func (u Unit) Valid() bool {
	switch u {
	case UnitKilogram, UnitPieces, UnitLiter, UnitPack:
		return true
	}
	return false
}

// PackagingUnit is the unit packaging counts are expressed in.
type PackagingUnit string

const (
	PackagingPieces PackagingUnit = "pcs"
	PackagingCarton PackagingUnit = "karton"
)

func (u PackagingUnit) Valid() bool {
	return u == PackagingPieces || u == PackagingCarton
}

// Outcome is the Release/Reject decision taken at a verification gate.
type Outcome string

const (
	OutcomeUnset   Outcome = ""
	OutcomeRelease Outcome = "release"
	OutcomeReject  Outcome = "reject"
)

// StatusKind is the tag of a batch Status.
type StatusKind string

const (
	StatusWaiting                  StatusKind = "waiting"
	StatusInProgress               StatusKind = "in_progress"
	StatusWaitingAdminVerification StatusKind = "waiting_admin_verification"
	StatusReadyToMove              StatusKind = "ready_to_move"
	StatusFinishedThisRoom         StatusKind = "finished_this_room"
	StatusFinishedProduction       StatusKind = "finished_production"
)

// ParseStatusKind validates a textual status tag.
func ParseStatusKind(s string) (StatusKind, error) {
	k := StatusKind(s)
	switch k {
	case StatusWaiting, StatusInProgress, StatusWaitingAdminVerification,
		StatusReadyToMove, StatusFinishedThisRoom, StatusFinishedProduction:
		return k, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Status is the tagged lifecycle state of a batch record.
// RoomID is only set for StatusFinishedThisRoom and names the room that was finished.
type Status struct {
	Kind   StatusKind
	RoomID *uuid.UUID
}

var (
	Waiting                  = Status{Kind: StatusWaiting}
	InProgress               = Status{Kind: StatusInProgress}
	WaitingAdminVerification = Status{Kind: StatusWaitingAdminVerification}
	ReadyToMove              = Status{Kind: StatusReadyToMove}
	FinishedProduction       = Status{Kind: StatusFinishedProduction}
)

// FinishedThisRoom returns the room-qualified finished status.
func FinishedThisRoom(roomID uuid.UUID) Status {
	id := roomID
	return Status{Kind: StatusFinishedThisRoom, RoomID: &id}
}

// Is reports whether the status carries the given tag.
func (s Status) Is(kind StatusKind) bool {
	return s.Kind == kind
}

// Finished reports whether the record has completed its work in the current room.
func (s Status) Finished() bool {
	return s.Kind == StatusFinishedThisRoom || s.Kind == StatusFinishedProduction
}

func (s Status) String() string {
	if s.Kind == StatusFinishedThisRoom && s.RoomID != nil {
		return fmt.Sprintf("%s(%s)", s.Kind, s.RoomID)
	}
	return string(s.Kind)
}

// MaxBatchNumberLen is the width of the batch_number column.
const MaxBatchNumberLen = 20

// Batch is one production batch while it is located in one room.
type Batch struct {
	ID             uuid.UUID
	BatchNumber    string
	ItemID         uuid.UUID
	TargetQuantity int
	Unit           Unit
	RoomID         uuid.UUID
	Status         Status
	Progress       int

	EstimatedPackaging *int
	PackagingCount     *int
	PackagingUnit      *PackagingUnit

	Outcome    Outcome
	OperatorID *uuid.UUID

	CreatedAt   time.Time
	ScheduledAt *time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
	UpdatedAt   time.Time
}

// Remaining returns how much quantity may still be added in the current room.
func (b *Batch) Remaining() int {
	return b.TargetQuantity - b.Progress
}

// PackagingTotal returns the packaging count, treating unset as zero.
func (b *Batch) PackagingTotal() int {
	if b.PackagingCount == nil {
		return 0
	}
	return *b.PackagingCount
}

// HistoryRecord is the immutable snapshot written when a batch finishes a room.
type HistoryRecord struct {
	ID          int64
	BatchNumber string
	ItemID      uuid.UUID
	Quantity    int
	Unit        Unit
	RoomID      uuid.UUID
	OperatorID  *uuid.UUID
	Outcome     Outcome
	StartedAt   time.Time
	FinishedAt  time.Time
	RecordedAt  time.Time
}

// IdempotencyToken is a client-supplied key guarding a mutating request.
type IdempotencyToken struct {
	Token     string
	Action    string
	CreatedAt time.Time
}

// BatchFilter narrows ListBatches. Zero values mean "any".
type BatchFilter struct {
	RoomID      *uuid.UUID
	Statuses    []StatusKind
	BatchNumber string
	Limit       int
}
