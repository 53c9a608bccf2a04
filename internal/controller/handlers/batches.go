package handlers

import (
	"context"
	"net/http"
	"strings"

	"prodflow/internal/lifecycle"
	"prodflow/internal/store"
	"prodflow/pkg/api"

	"github.com/google/uuid"
)

// IdempotencyHeader carries the client token when the body does not.
const IdempotencyHeader = "Idempotency-Key"

func clientToken(r *http.Request, body string) string {
	if body != "" {
		return body
	}
	return strings.TrimSpace(r.Header.Get(IdempotencyHeader))
}

// CreateBatch handles POST /batches.
func (h *Handlers) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req api.CreateBatchRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := lifecycle.CreateBatchInput{
		BatchNumber:        req.BatchNumber,
		ItemID:             uuid.MustParse(req.ItemID),
		TargetQuantity:     req.TargetQuantity,
		Unit:               store.Unit(req.Unit),
		RoomID:             optionalUUID(req.RoomID),
		OperatorID:         optionalUUID(req.OperatorID),
		EstimatedPackaging: req.EstimatedPackaging,
		ScheduledAt:        req.ScheduledAt,
	}
	if req.PackagingUnit != nil {
		pu := store.PackagingUnit(*req.PackagingUnit)
		in.PackagingUnit = &pu
	}

	b, err := h.lifecycle.CreateBatch(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusCreated, toBatchResponse(b))
}

// GetBatch handles GET /batches/{id}.
func (h *Handlers) GetBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "batch")
	if !ok {
		return
	}
	b, err := h.lifecycle.GetBatch(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, toBatchResponse(b))
}

// ListBatches handles GET /batches?room_id=&status=&batch_number=&limit=.
// status may repeat or be comma separated.
func (h *Handlers) ListBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.BatchFilter{
		BatchNumber: q.Get("batch_number"),
		Limit:       queryLimit(r, 50),
	}
	if raw := q.Get("room_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, r, &lifecycle.Error{Kind: lifecycle.KindInvalidInput, Message: "invalid room_id"})
			return
		}
		filter.RoomID = &id
	}
	for _, v := range q["status"] {
		for _, s := range strings.Split(v, ",") {
			kind, err := store.ParseStatusKind(strings.TrimSpace(s))
			if err != nil {
				h.writeError(w, r, &lifecycle.Error{Kind: lifecycle.KindInvalidInput, Message: err.Error()})
				return
			}
			filter.Statuses = append(filter.Statuses, kind)
		}
	}

	batches, err := h.lifecycle.ListBatches(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := api.ListBatchesResponse{Batches: make([]api.BatchResponse, 0, len(batches))}
	for i := range batches {
		resp.Batches = append(resp.Batches, toBatchResponse(&batches[i]))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// AddProgress handles POST /batches/{id}/progress.
func (h *Handlers) AddProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "batch")
	if !ok {
		return
	}
	var req api.ProgressRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.lifecycle.AddProgress(r.Context(), id, req.Quantity, clientToken(r, req.ClientToken))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, api.ProgressResponse{
		Batch:     toBatchResponse(res.Batch),
		Progress:  res.Progress,
		Finished:  res.Finished,
		Duplicate: res.Duplicate,
		Next:      toBatchResponsePtr(res.Next),
		Warning:   string(res.Warning),
		Shadow:    toShadowResponse(res.Shadow),
	})
}

// AddPackaging handles POST /batches/{id}/packaging.
func (h *Handlers) AddPackaging(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "batch")
	if !ok {
		return
	}
	var req api.PackagingRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := lifecycle.PackagingInput{
		BatchID:     id,
		Delta:       req.Quantity,
		ClientToken: clientToken(r, req.ClientToken),
	}
	if req.PackagingUnit != nil {
		pu := store.PackagingUnit(*req.PackagingUnit)
		in.PackagingUnit = &pu
	}
	res, err := h.lifecycle.AddPackaging(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, api.PackagingResponse{
		Batch:           toBatchResponse(res.Batch),
		Total:           res.Total,
		Overrun:         res.Overrun,
		AllowedMore:     res.AllowedMore,
		RemainingBefore: res.RemainingBefore,
		RemainingAfter:  res.RemainingAfter,
		Duplicate:       res.Duplicate,
		ClientToken:     res.ClientToken,
	})
}

// FinalizePackaging handles POST /batches/{id}/finalize.
func (h *Handlers) FinalizePackaging(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "batch")
	if !ok {
		return
	}
	b, err := h.lifecycle.FinalizePackaging(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, toBatchResponse(b))
}

// SetOutcome handles POST /batches/{id}/outcome.
func (h *Handlers) SetOutcome(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "batch")
	if !ok {
		return
	}
	var req api.OutcomeRequest
	if !h.decode(w, r, &req) {
		return
	}
	outcome, err := lifecycle.ParseOutcome(req.Outcome)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.lifecycle.SetOutcome(r.Context(), id, outcome)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, api.OutcomeResponse{
		Batch:   toBatchResponse(res.Batch),
		Status:  string(res.Status.Kind),
		Next:    toBatchResponsePtr(res.Next),
		Warning: string(res.Warning),
	})
}

// MoveBatch handles POST /batches/{ref}/move, where ref is an id or a batch number.
func (h *Handlers) MoveBatch(w http.ResponseWriter, r *http.Request) {
	var req api.MoveRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.lifecycle.MoveBatch(r.Context(), lifecycle.MoveInput{
		Ref:          r.PathValue("ref"),
		TargetRoomID: uuid.MustParse(req.TargetRoomID),
		OperatorID:   optionalUUID(req.OperatorID),
		Mode:         lifecycle.MoveMode(req.Mode),
		Force:        req.Force,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, api.MoveResponse{
		Batch:   toBatchResponse(res.Batch),
		Source:  toBatchResponsePtr(res.Source),
		Mode:    string(res.Mode),
		Warning: string(res.Warning),
	})
}

// MoveBatches handles POST /batches/move. Each id succeeds or fails on its own,
// so the response is always 200 with per-id results.
func (h *Handlers) MoveBatches(w http.ResponseWriter, r *http.Request) {
	var req api.BulkMoveRequest
	if !h.decode(w, r, &req) {
		return
	}
	ids := make([]uuid.UUID, len(req.BatchIDs))
	for i, s := range req.BatchIDs {
		ids[i] = uuid.MustParse(s)
	}

	results := h.lifecycle.MoveBatches(r.Context(), ids, uuid.MustParse(req.TargetRoomID),
		optionalUUID(req.OperatorID), lifecycle.MoveMode(req.Mode), req.Force)

	resp := api.BulkMoveResponse{Results: make([]api.BulkMoveItem, 0, len(results))}
	for _, res := range results {
		item := api.BulkMoveItem{BatchID: res.BatchID.String()}
		if res.Err != nil {
			body, code := errorBody(res.Err)
			if code == http.StatusInternalServerError {
				h.logger.Error("bulk move failed", "batch_id", res.BatchID, "error", res.Err)
			}
			item.Error = &body
		} else {
			item.Batch = toBatchResponsePtr(res.Result.Batch)
			item.Warning = string(res.Result.Warning)
		}
		resp.Results = append(resp.Results, item)
	}
	h.respondJson(w, http.StatusOK, resp)
}

// MarkInProgress handles POST /batches/{id}/start.
func (h *Handlers) MarkInProgress(w http.ResponseWriter, r *http.Request) {
	h.mark(w, r, h.lifecycle.MarkInProgress)
}

// MarkFinished handles POST /batches/{id}/finish.
func (h *Handlers) MarkFinished(w http.ResponseWriter, r *http.Request) {
	h.mark(w, r, h.lifecycle.MarkFinished)
}

// MarkReady handles POST /batches/{id}/ready.
func (h *Handlers) MarkReady(w http.ResponseWriter, r *http.Request) {
	h.mark(w, r, h.lifecycle.MarkReady)
}

func (h *Handlers) mark(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID) (*lifecycle.StatusResult, error)) {
	id, ok := h.pathID(w, r, "batch")
	if !ok {
		return
	}
	res, err := fn(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, api.StatusResponse{
		Batch:  toBatchResponse(res.Batch),
		Shadow: toShadowResponse(res.Shadow),
	})
}
