package handlers

import (
	"prodflow/internal/lifecycle"
	"prodflow/internal/store"
	"prodflow/pkg/api"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// percent returns part/whole as a percentage rounded to two places.
func percent(part, whole int) decimal.Decimal {
	if whole <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(part)).Mul(hundred).DivRound(decimal.NewFromInt(int64(whole)), 2)
}

func idString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func toBatchResponse(b *store.Batch) api.BatchResponse {
	resp := api.BatchResponse{
		ID:                 b.ID.String(),
		BatchNumber:        b.BatchNumber,
		ItemID:             b.ItemID.String(),
		TargetQuantity:     b.TargetQuantity,
		Unit:               string(b.Unit),
		RoomID:             b.RoomID.String(),
		Status:             string(b.Status.Kind),
		FinishedRoomID:     idString(b.Status.RoomID),
		Progress:           b.Progress,
		ProgressPercent:    percent(b.Progress, b.TargetQuantity),
		EstimatedPackaging: b.EstimatedPackaging,
		PackagingCount:     b.PackagingCount,
		Outcome:            string(b.Outcome),
		OperatorID:         idString(b.OperatorID),
		CreatedAt:          b.CreatedAt,
		ScheduledAt:        b.ScheduledAt,
		StartedAt:          b.StartedAt,
		FinishedAt:         b.FinishedAt,
		UpdatedAt:          b.UpdatedAt,
	}
	if b.PackagingUnit != nil {
		pu := string(*b.PackagingUnit)
		resp.PackagingUnit = &pu
	}
	if b.EstimatedPackaging != nil && *b.EstimatedPackaging > 0 {
		p := percent(b.PackagingTotal(), *b.EstimatedPackaging)
		resp.PackagingPercent = &p
	}
	return resp
}

func toBatchResponsePtr(b *store.Batch) *api.BatchResponse {
	if b == nil {
		return nil
	}
	resp := toBatchResponse(b)
	return &resp
}

func toShadowResponse(sh *lifecycle.ShadowResult) *api.ShadowResponse {
	if sh == nil {
		return nil
	}
	resp := &api.ShadowResponse{Created: sh.Created}
	if sh.Batch != nil {
		resp.BatchID = sh.Batch.ID.String()
	}
	if sh.Err != nil {
		resp.Error = sh.Err.Error()
	}
	return resp
}

func toHistoryResponse(rec store.HistoryRecord) api.HistoryRecordResponse {
	return api.HistoryRecordResponse{
		ID:          rec.ID,
		BatchNumber: rec.BatchNumber,
		ItemID:      rec.ItemID.String(),
		Quantity:    rec.Quantity,
		Unit:        string(rec.Unit),
		RoomID:      rec.RoomID.String(),
		OperatorID:  idString(rec.OperatorID),
		Outcome:     string(rec.Outcome),
		StartedAt:   rec.StartedAt,
		FinishedAt:  rec.FinishedAt,
		Duration:    decimal.NewFromFloat(rec.FinishedAt.Sub(rec.StartedAt).Seconds()).Round(0),
	}
}

func toRoomResponse(r *store.Room) api.RoomResponse {
	return api.RoomResponse{
		ID:         r.ID.String(),
		Code:       r.Code,
		Name:       r.Name,
		Kind:       string(r.Kind),
		NextRoomID: idString(r.NextRoomID),
		CreatedAt:  r.CreatedAt,
	}
}

func toOperatorResponse(op *store.Operator) api.OperatorResponse {
	return api.OperatorResponse{
		ID:        op.ID.String(),
		Name:      op.Name,
		Category:  op.Category,
		CreatedAt: op.CreatedAt,
	}
}

func toItemResponse(it *store.Item) api.ItemResponse {
	return api.ItemResponse{
		ID:          it.ID.String(),
		Description: it.Description,
		Barcode:     it.Barcode,
		CreatedAt:   it.CreatedAt,
	}
}
