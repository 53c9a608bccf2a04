package handlers

import (
	"net/http"
	"time"

	"prodflow/internal/lifecycle"
	"prodflow/pkg/api"
)

// ListHistory handles GET /rooms/{id}/history?limit=.
func (h *Handlers) ListHistory(w http.ResponseWriter, r *http.Request) {
	roomID, ok := h.pathID(w, r, "room")
	if !ok {
		return
	}
	recs, err := h.lifecycle.ListHistory(r.Context(), roomID, queryLimit(r, 100))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := api.ListHistoryResponse{Records: make([]api.HistoryRecordResponse, 0, len(recs))}
	for _, rec := range recs {
		resp.Records = append(resp.Records, toHistoryResponse(rec))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// PurgeHistory handles DELETE /history?before=RFC3339. Without before every
// record is deleted.
func (h *Handlers) PurgeHistory(w http.ResponseWriter, r *http.Request) {
	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, r, &lifecycle.Error{Kind: lifecycle.KindInvalidInput, Message: "before must be an RFC3339 timestamp"})
			return
		}
		before = &t
	}
	n, err := h.lifecycle.PurgeHistory(r.Context(), before)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, api.PurgeHistoryResponse{Deleted: n})
}
