// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// ErrorResponse is the standard error response format. Kind is the lifecycle error
// kind, Allowed the remaining allowance for the quantity caps.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Kind    string            `json:"kind,omitempty"`
	Allowed *int              `json:"allowed,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// CreateBatchRequest is the request body for POST /batches.
// Omitting room_id starts the batch in the configured entry room.
type CreateBatchRequest struct {
	BatchNumber        string     `json:"batch_number,omitempty" validate:"omitempty,max=20"`
	ItemID             string     `json:"item_id" validate:"required,uuid"`
	TargetQuantity     int        `json:"target_quantity"`
	Unit               string     `json:"unit" validate:"required"`
	RoomID             *string    `json:"room_id,omitempty" validate:"omitempty,uuid"`
	OperatorID         *string    `json:"operator_id,omitempty" validate:"omitempty,uuid"`
	EstimatedPackaging *int       `json:"estimated_packaging,omitempty"`
	PackagingUnit      *string    `json:"packaging_unit,omitempty"`
	ScheduledAt        *time.Time `json:"scheduled_at,omitempty"`
}

// BatchResponse represents one batch record.
type BatchResponse struct {
	ID             string `json:"id"`
	BatchNumber    string `json:"batch_number"`
	ItemID         string `json:"item_id"`
	TargetQuantity int    `json:"target_quantity"`
	Unit           string `json:"unit"`
	RoomID         string `json:"room_id"`
	Status         string `json:"status"`
	// FinishedRoomID is set with status finished_this_room.
	FinishedRoomID  *string         `json:"finished_room_id,omitempty"`
	Progress        int             `json:"progress"`
	ProgressPercent decimal.Decimal `json:"progress_percent"`

	EstimatedPackaging *int             `json:"estimated_packaging,omitempty"`
	PackagingCount     *int             `json:"packaging_count,omitempty"`
	PackagingUnit      *string          `json:"packaging_unit,omitempty"`
	PackagingPercent   *decimal.Decimal `json:"packaging_percent,omitempty"`

	Outcome    string  `json:"outcome,omitempty"`
	OperatorID *string `json:"operator_id,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ListBatchesResponse is returned by GET /batches.
type ListBatchesResponse struct {
	Batches []BatchResponse `json:"batches"`
}

// ShadowResponse reports a downstream placeholder attempt. Error is informational.
type ShadowResponse struct {
	Created bool   `json:"created"`
	BatchID string `json:"batch_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ProgressRequest is the request body for POST /batches/{id}/progress.
// The Idempotency-Key header is used when client_token is empty.
type ProgressRequest struct {
	Quantity    int    `json:"quantity"`
	ClientToken string `json:"client_token,omitempty" validate:"omitempty,max=128"`
}

// ProgressResponse is the response body for progress updates.
type ProgressResponse struct {
	Batch     BatchResponse   `json:"batch"`
	Progress  int             `json:"progress"`
	Finished  bool            `json:"finished"`
	Duplicate bool            `json:"duplicate"`
	Next      *BatchResponse  `json:"next,omitempty"`
	Warning   string          `json:"warning,omitempty"`
	Shadow    *ShadowResponse `json:"shadow,omitempty"`
}

// PackagingRequest is the request body for POST /batches/{id}/packaging.
type PackagingRequest struct {
	Quantity      int     `json:"quantity"`
	ClientToken   string  `json:"client_token,omitempty" validate:"omitempty,max=128"`
	PackagingUnit *string `json:"packaging_unit,omitempty"`
}

// PackagingResponse reports the packaging total after an increment.
type PackagingResponse struct {
	Batch           BatchResponse `json:"batch"`
	Total           int           `json:"total"`
	Overrun         bool          `json:"overrun"`
	AllowedMore     *int          `json:"allowed_more,omitempty"`
	RemainingBefore *int          `json:"remaining_before,omitempty"`
	RemainingAfter  *int          `json:"remaining_after,omitempty"`
	Duplicate       bool          `json:"duplicate"`
	ClientToken     string        `json:"client_token"`
}

// OutcomeRequest is the request body for POST /batches/{id}/outcome.
type OutcomeRequest struct {
	Outcome string `json:"outcome" validate:"required"`
}

// OutcomeResponse reports a gate decision.
type OutcomeResponse struct {
	Batch   BatchResponse  `json:"batch"`
	Status  string         `json:"status"`
	Next    *BatchResponse `json:"next,omitempty"`
	Warning string         `json:"warning,omitempty"`
}

// StatusResponse is returned by the start/finish/ready marks.
type StatusResponse struct {
	Batch  BatchResponse   `json:"batch"`
	Shadow *ShadowResponse `json:"shadow,omitempty"`
}

// MoveRequest is the request body for POST /batches/{ref}/move.
type MoveRequest struct {
	TargetRoomID string  `json:"target_room_id" validate:"required,uuid"`
	OperatorID   *string `json:"operator_id,omitempty" validate:"omitempty,uuid"`
	// Mode is redirect (default) or spawn.
	Mode  string `json:"mode,omitempty" validate:"omitempty,oneof=redirect spawn"`
	Force bool   `json:"force,omitempty"`
}

// MoveResponse reports a transition. A duplicate_batch_in_room warning means nothing changed.
type MoveResponse struct {
	Batch   BatchResponse  `json:"batch"`
	Source  *BatchResponse `json:"source,omitempty"`
	Mode    string         `json:"mode"`
	Warning string         `json:"warning,omitempty"`
}

// BulkMoveRequest is the request body for POST /batches/move.
type BulkMoveRequest struct {
	BatchIDs     []string `json:"batch_ids" validate:"required,min=1,dive,uuid"`
	TargetRoomID string   `json:"target_room_id" validate:"required,uuid"`
	OperatorID   *string  `json:"operator_id,omitempty" validate:"omitempty,uuid"`
	Mode         string   `json:"mode,omitempty" validate:"omitempty,oneof=redirect spawn"`
	Force        bool     `json:"force,omitempty"`
}

// BulkMoveItem is the result for one id of a bulk move.
type BulkMoveItem struct {
	BatchID string         `json:"batch_id"`
	Batch   *BatchResponse `json:"batch,omitempty"`
	Warning string         `json:"warning,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

// BulkMoveResponse lists per-id results in request order.
type BulkMoveResponse struct {
	Results []BulkMoveItem `json:"results"`
}

// HistoryRecordResponse is one completion snapshot.
type HistoryRecordResponse struct {
	ID          int64     `json:"id"`
	BatchNumber string    `json:"batch_number"`
	ItemID      string    `json:"item_id"`
	Quantity    int       `json:"quantity"`
	Unit        string    `json:"unit"`
	RoomID      string    `json:"room_id"`
	OperatorID  *string   `json:"operator_id,omitempty"`
	Outcome     string    `json:"outcome"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	// Duration is finished_at - started_at in seconds.
	Duration decimal.Decimal `json:"duration_seconds"`
}

// ListHistoryResponse is returned by GET /rooms/{id}/history.
type ListHistoryResponse struct {
	Records []HistoryRecordResponse `json:"records"`
}

// PurgeHistoryResponse is returned by DELETE /history.
type PurgeHistoryResponse struct {
	Deleted int64 `json:"deleted"`
}

// CreateRoomRequest is the request body for POST /rooms.
type CreateRoomRequest struct {
	Code       string  `json:"code" validate:"required,max=10"`
	Name       string  `json:"name" validate:"required,max=100"`
	Kind       string  `json:"kind" validate:"required"`
	NextRoomID *string `json:"next_room_id,omitempty" validate:"omitempty,uuid"`
}

// RoomResponse represents a room.
type RoomResponse struct {
	ID         string    `json:"id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	NextRoomID *string   `json:"next_room_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateOperatorRequest is the request body for POST /operators.
type CreateOperatorRequest struct {
	Name     string `json:"name" validate:"required,max=128"`
	Category string `json:"category" validate:"max=50"`
}

// OperatorResponse represents an operator.
type OperatorResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateItemRequest is the request body for POST /items.
type CreateItemRequest struct {
	Description string  `json:"description" validate:"required,max=255"`
	Barcode     *string `json:"barcode,omitempty" validate:"omitempty,max=20"`
}

// ItemResponse represents an item description.
type ItemResponse struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Barcode     *string   `json:"barcode,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ImportItemsRequest is the request body for POST /items/import.
type ImportItemsRequest struct {
	Items []CreateItemRequest `json:"items" validate:"required,min=1,dive"`
}

// ImportItemsResponse reports how many items were new.
type ImportItemsResponse struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}
