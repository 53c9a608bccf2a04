package handlers

import (
	"context"
	"net/http"
	"testing"

	"prodflow/internal/lifecycle"
	"prodflow/internal/store"
	"prodflow/internal/store/memory"
	"prodflow/pkg/api"

	"github.com/google/uuid"
)

// TestFlow drives the real lifecycle service over the memory store:
// create in MIX, fill it up, and watch it advance into QC.
func TestFlow(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	qc := &store.Room{ID: uuid.New(), Code: "QC", Name: "Quality", Kind: store.KindQualityControl}
	qcID := qc.ID
	mix := &store.Room{ID: uuid.New(), Code: "MIX", Name: "Mixing", Kind: store.KindMixing, NextRoomID: &qcID}
	item := &store.Item{ID: uuid.New(), Description: "Shower gel"}
	for _, r := range []*store.Room{qc, mix} {
		if err := mem.CreateRoom(ctx, nil, r); err != nil {
			t.Fatal(err)
		}
	}
	if err := mem.CreateItem(ctx, nil, item); err != nil {
		t.Fatal(err)
	}

	cfg := lifecycle.DefaultPolicyConfig()
	cfg.EntryRoom = "MIX"
	policy, err := lifecycle.ResolvePolicy(ctx, mem, cfg)
	if err != nil {
		t.Fatal(err)
	}
	svc := lifecycle.NewService(mem, policy, lifecycle.WithLogger(discardLogger()))
	h := New(svc, &pingCatalog{Store: mem}, nil, discardLogger())

	rr := do(t, "POST /batches", h.CreateBatch, http.MethodPost, "/batches", api.CreateBatchRequest{
		BatchNumber:    "GEL-1",
		ItemID:         item.ID.String(),
		TargetQuantity: 30,
		Unit:           "liter",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: got %d: %s", rr.Code, rr.Body.String())
	}
	var created api.BatchResponse
	decodeBody(t, rr, &created)
	if created.RoomID != mix.ID.String() || created.Status != "waiting" {
		t.Fatalf("unexpected batch %+v", created)
	}

	progressPath := "/batches/" + created.ID + "/progress"
	rr = do(t, "POST /batches/{id}/progress", h.AddProgress, http.MethodPost, progressPath,
		api.ProgressRequest{Quantity: 10}, IdempotencyHeader, "tok-1")
	var first api.ProgressResponse
	decodeBody(t, rr, &first)
	if first.Batch.ProgressPercent.String() != "33.33" {
		t.Errorf("progress percent = %s, want 33.33", first.Batch.ProgressPercent)
	}

	rr = do(t, "POST /batches/{id}/progress", h.AddProgress, http.MethodPost, progressPath,
		api.ProgressRequest{Quantity: 10}, IdempotencyHeader, "tok-1")
	var replay api.ProgressResponse
	decodeBody(t, rr, &replay)
	if !replay.Duplicate || replay.Progress != 10 {
		t.Errorf("replayed token should not apply: %+v", replay)
	}

	rr = do(t, "POST /batches/{id}/progress", h.AddProgress, http.MethodPost, progressPath,
		api.ProgressRequest{Quantity: 25})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("overshoot: got %d, want 422", rr.Code)
	}
	var over api.ErrorResponse
	decodeBody(t, rr, &over)
	if over.Allowed == nil || *over.Allowed != 20 {
		t.Errorf("allowed = %v, want 20", over.Allowed)
	}

	rr = do(t, "POST /batches/{id}/progress", h.AddProgress, http.MethodPost, progressPath,
		api.ProgressRequest{Quantity: 20})
	var done api.ProgressResponse
	decodeBody(t, rr, &done)
	if !done.Finished || done.Batch.Status != "finished_this_room" {
		t.Fatalf("expected batch to finish: %+v", done)
	}
	if done.Next == nil || done.Next.RoomID != qc.ID.String() || done.Next.Status != "waiting" {
		t.Fatalf("expected a waiting record in QC, got %+v", done.Next)
	}

	rr = do(t, "GET /rooms/{id}/history", h.ListHistory, http.MethodGet, "/rooms/"+mix.ID.String()+"/history", nil)
	var hist api.ListHistoryResponse
	decodeBody(t, rr, &hist)
	if len(hist.Records) != 1 || hist.Records[0].Quantity != 30 {
		t.Errorf("unexpected history %+v", hist.Records)
	}

	rr = do(t, "POST /batches/{ref}/move", h.MoveBatch, http.MethodPost, "/batches/GEL-1/move",
		api.MoveRequest{TargetRoomID: mix.ID.String()})
	if rr.Code != http.StatusConflict {
		t.Errorf("moving a waiting record: got %d, want 409 (%s)", rr.Code, rr.Body.String())
	}
}
