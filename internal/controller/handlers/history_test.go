package handlers

import (
	"net/http"
	"testing"
	"time"

	"prodflow/internal/store"
	"prodflow/pkg/api"

	"github.com/google/uuid"
)

func TestListHistory(t *testing.T) {
	started := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	rec := store.HistoryRecord{
		ID:          1,
		BatchNumber: "240301-ABC123",
		ItemID:      uuid.New(),
		Quantity:    40,
		Unit:        store.UnitKilogram,
		RoomID:      uuid.New(),
		Outcome:     store.OutcomeRelease,
		StartedAt:   started,
		FinishedAt:  started.Add(90 * time.Minute),
	}
	h, _ := newTestHandlers(&mockLifecycle{history: []store.HistoryRecord{rec}})

	rr := do(t, "GET /rooms/{id}/history", h.ListHistory, http.MethodGet, "/rooms/"+rec.RoomID.String()+"/history", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d", rr.Code)
	}
	var resp api.ListHistoryResponse
	decodeBody(t, rr, &resp)
	if len(resp.Records) != 1 {
		t.Fatalf("got %d records", len(resp.Records))
	}
	if resp.Records[0].Duration.IntPart() != 5400 {
		t.Errorf("duration = %s, want 5400", resp.Records[0].Duration)
	}
	if resp.Records[0].Outcome != "release" {
		t.Errorf("outcome = %s", resp.Records[0].Outcome)
	}
}

func TestPurgeHistory(t *testing.T) {
	mock := &mockLifecycle{purged: 4}
	h, _ := newTestHandlers(mock)

	rr := do(t, "DELETE /history", h.PurgeHistory, http.MethodDelete, "/history?before=2024-03-01T00:00:00Z", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d", rr.Code)
	}
	var resp api.PurgeHistoryResponse
	decodeBody(t, rr, &resp)
	if resp.Deleted != 4 {
		t.Errorf("deleted = %d, want 4", resp.Deleted)
	}
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if mock.capturedBefore == nil || !mock.capturedBefore.Equal(want) {
		t.Errorf("before = %v, want %v", mock.capturedBefore, want)
	}

	mock.capturedBefore = nil
	do(t, "DELETE /history", h.PurgeHistory, http.MethodDelete, "/history", nil)
	if mock.capturedBefore != nil {
		t.Errorf("expected purge of everything, got cutoff %v", mock.capturedBefore)
	}

	rr = do(t, "DELETE /history", h.PurgeHistory, http.MethodDelete, "/history?before=yesterday", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad cutoff: got %d, want 400", rr.Code)
	}
}
