package handlers

import "net/http"

// LiveRoom handles GET /ws/rooms/{id}, streaming the room's lifecycle events.
func (h *Handlers) LiveRoom(w http.ResponseWriter, r *http.Request) {
	if h.live == nil {
		h.httpError(w, "Live feed disabled", http.StatusNotFound)
		return
	}
	roomID, ok := h.pathID(w, r, "room")
	if !ok {
		return
	}
	if _, err := h.catalog.GetRoomByID(r.Context(), nil, roomID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.live.Serve(w, r, roomID)
}
