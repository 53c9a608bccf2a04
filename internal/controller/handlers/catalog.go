package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"prodflow/internal/lifecycle"
	"prodflow/internal/store"
	"prodflow/pkg/api"

	"github.com/google/uuid"
)

// CreateRoom handles POST /rooms.
func (h *Handlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req api.CreateRoomRequest
	if !h.decode(w, r, &req) {
		return
	}
	kind := store.ProcessKind(strings.ToLower(req.Kind))
	if !kind.Valid() {
		h.writeError(w, r, &lifecycle.Error{Kind: lifecycle.KindInvalidInput, Message: "unknown process kind " + req.Kind})
		return
	}

	room := &store.Room{
		ID:         uuid.New(),
		Code:       req.Code,
		Name:       req.Name,
		Kind:       kind,
		NextRoomID: optionalUUID(req.NextRoomID),
		CreatedAt:  time.Now().UTC(),
	}
	ctx := r.Context()
	if room.NextRoomID != nil {
		if _, err := h.catalog.GetRoomByID(ctx, nil, *room.NextRoomID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				err = &lifecycle.Error{Kind: lifecycle.KindNotFound, Message: "next room not found"}
			}
			h.writeError(w, r, err)
			return
		}
	}
	if err := h.catalog.CreateRoom(ctx, nil, room); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusCreated, toRoomResponse(room))
}

// ListRooms handles GET /rooms.
func (h *Handlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.catalog.ListRooms(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]api.RoomResponse, 0, len(rooms))
	for i := range rooms {
		resp = append(resp, toRoomResponse(&rooms[i]))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// CreateOperator handles POST /operators.
func (h *Handlers) CreateOperator(w http.ResponseWriter, r *http.Request) {
	var req api.CreateOperatorRequest
	if !h.decode(w, r, &req) {
		return
	}
	op := &store.Operator{
		ID:        uuid.New(),
		Name:      req.Name,
		Category:  req.Category,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.catalog.CreateOperator(r.Context(), nil, op); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusCreated, toOperatorResponse(op))
}

// ListOperators handles GET /operators.
func (h *Handlers) ListOperators(w http.ResponseWriter, r *http.Request) {
	ops, err := h.catalog.ListOperators(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]api.OperatorResponse, 0, len(ops))
	for i := range ops {
		resp = append(resp, toOperatorResponse(&ops[i]))
	}
	h.respondJson(w, http.StatusOK, resp)
}

func newItem(req api.CreateItemRequest, now time.Time) store.Item {
	it := store.Item{
		ID:          uuid.New(),
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   now,
	}
	if req.Barcode != nil && strings.TrimSpace(*req.Barcode) != "" {
		bc := strings.TrimSpace(*req.Barcode)
		it.Barcode = &bc
	}
	return it
}

// CreateItem handles POST /items.
func (h *Handlers) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req api.CreateItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	it := newItem(req, time.Now().UTC())
	if err := h.catalog.CreateItem(r.Context(), nil, &it); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusCreated, toItemResponse(&it))
}

// ListItems handles GET /items?limit=.
func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.ListItems(r.Context(), queryLimit(r, 100))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]api.ItemResponse, 0, len(items))
	for i := range items {
		resp = append(resp, toItemResponse(&items[i]))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// ImportItems handles POST /items/import. Descriptions already stored are skipped.
func (h *Handlers) ImportItems(w http.ResponseWriter, r *http.Request) {
	var req api.ImportItemsRequest
	if !h.decode(w, r, &req) {
		return
	}
	now := time.Now().UTC()
	items := make([]store.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, newItem(it, now))
	}

	inserted, err := h.catalog.ImportItems(r.Context(), nil, items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, api.ImportItemsResponse{
		Inserted: inserted,
		Skipped:  len(items) - inserted,
	})
}
