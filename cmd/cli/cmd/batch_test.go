package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"prodflow/pkg/api"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

func sampleBatch() api.BatchResponse {
	return api.BatchResponse{
		ID:              "0b6a5c1e-4c55-4b59-9f3d-1a2b3c4d5e6f",
		BatchNumber:     "240301-ABC123",
		ItemID:          "7d1f0e8a-3f0b-4f7e-9c52-6a4b3c2d1e0f",
		TargetQuantity:  40,
		Unit:            "kg",
		RoomID:          "5e0a9d7c-1b2c-4d3e-8f9a-0b1c2d3e4f5a",
		Status:          "in_progress",
		Progress:        10,
		ProgressPercent: decimal.NewFromInt(25),
	}
}

func TestBatchCreate_Success(t *testing.T) {
	resetViper()

	var reqBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/batches" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected application/json, got: %s", r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&reqBody)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(sampleBatch())
	}))
	defer server.Close()
	viper.Set("url", server.URL)

	output := execute(t, "batch", "create", "--item", "7d1f0e8a-3f0b-4f7e-9c52-6a4b3c2d1e0f",
		"--target", "40", "--unit", "kg", "--estimate", "0", "--packaging-unit", "karton",
		"--scheduled", "2024-03-01T06:00:00Z")

	if !strings.Contains(output, "Batch created") || !strings.Contains(output, "240301-ABC123") {
		t.Errorf("expected success message, got: %s", output)
	}
	if reqBody["target_quantity"] != float64(40) {
		t.Errorf("expected target_quantity=40, got %v", reqBody["target_quantity"])
	}
	if reqBody["estimated_packaging"] != float64(0) {
		t.Errorf("an explicit zero estimate should be sent, got %v", reqBody["estimated_packaging"])
	}
	if reqBody["packaging_unit"] != "karton" {
		t.Errorf("expected packaging_unit=karton, got %v", reqBody["packaging_unit"])
	}
	if reqBody["scheduled_at"] != "2024-03-01T06:00:00Z" {
		t.Errorf("expected scheduled_at, got %v", reqBody["scheduled_at"])
	}
}

func TestBatchCreate_BadScheduled(t *testing.T) {
	resetViper()
	viper.Set("url", "http://127.0.0.1:1")

	output := execute(t, "batch", "create", "--item", "x", "--target", "5", "--scheduled", "tomorrow")
	if !strings.Contains(output, "RFC3339") {
		t.Errorf("expected validation message, got: %s", output)
	}
}

func TestBatchProgress_ErrorShowsAllowance(t *testing.T) {
	resetViper()

	var reqBody api.ProgressRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/batches/abc/progress" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&reqBody)
		allowed := 30
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(api.ErrorResponse{
			Error: "adding 50 would exceed target 40", Code: "422", Kind: "quantity_exceeds_target", Allowed: &allowed,
		})
	}))
	defer server.Close()
	viper.Set("url", server.URL)

	output := execute(t, "batch", "progress", "abc", "50", "--token", "scan-17")

	if reqBody.Quantity != 50 || reqBody.ClientToken != "scan-17" {
		t.Errorf("unexpected request body %+v", reqBody)
	}
	if !strings.Contains(output, "Error (422)") || !strings.Contains(output, "Allowed: 30") {
		t.Errorf("expected API error with allowance, got: %s", output)
	}
}

func TestBatchProgress_Duplicate(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.ProgressResponse{Batch: sampleBatch(), Progress: 10, Duplicate: true})
	}))
	defer server.Close()
	viper.Set("url", server.URL)

	output := execute(t, "batch", "progress", "abc", "5", "--token", "scan-18")
	if !strings.Contains(output, "Already recorded") {
		t.Errorf("expected duplicate message, got: %s", output)
	}
}

func TestBatchProgress_InvalidQuantity(t *testing.T) {
	resetViper()
	viper.Set("url", "http://127.0.0.1:1")

	output := execute(t, "batch", "progress", "abc", "ten")
	if !strings.Contains(output, "whole number") {
		t.Errorf("expected validation message, got: %s", output)
	}
}

func TestBatchList_Query(t *testing.T) {
	resetViper()

	var query map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		json.NewEncoder(w).Encode(api.ListBatchesResponse{Batches: []api.BatchResponse{sampleBatch()}})
	}))
	defer server.Close()
	viper.Set("url", server.URL)

	output := execute(t, "batch", "list", "--room", "r-1", "--status", "waiting,in_progress", "--limit", "5")

	if got := query["status"]; len(got) != 1 || got[0] != "waiting,in_progress" {
		t.Errorf("unexpected status query %v", got)
	}
	if query["room_id"][0] != "r-1" || query["limit"][0] != "5" {
		t.Errorf("unexpected query %v", query)
	}
	if !strings.Contains(output, "240301-ABC123") {
		t.Errorf("expected batch in output, got: %s", output)
	}
}

func TestBatchMove_Single(t *testing.T) {
	resetViper()

	var reqBody api.MoveRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/batches/240301-ABC123/move" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&reqBody)
		json.NewEncoder(w).Encode(api.MoveResponse{Batch: sampleBatch(), Mode: "spawn"})
	}))
	defer server.Close()
	viper.Set("url", server.URL)

	output := execute(t, "batch", "move", "240301-ABC123", "--to", "room-2", "--mode", "spawn", "--force")

	if reqBody.TargetRoomID != "room-2" || reqBody.Mode != "spawn" || !reqBody.Force {
		t.Errorf("unexpected request body %+v", reqBody)
	}
	if !strings.Contains(output, "Moved 240301-ABC123 (spawn)") {
		t.Errorf("expected move message, got: %s", output)
	}
}

func TestBatchMove_Bulk(t *testing.T) {
	resetViper()

	var reqBody api.BulkMoveRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/batches/move" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&reqBody)
		b := sampleBatch()
		json.NewEncoder(w).Encode(api.BulkMoveResponse{Results: []api.BulkMoveItem{
			{BatchID: "id-1", Batch: &b},
			{BatchID: "id-2", Error: &api.ErrorResponse{Error: "batch B is waiting and not ready to move"}},
		}})
	}))
	defer server.Close()
	viper.Set("url", server.URL)

	output := execute(t, "batch", "move", "id-1", "id-2", "--to", "room-2", "--mode", "redirect")

	if len(reqBody.BatchIDs) != 2 || reqBody.Mode != "redirect" {
		t.Errorf("unexpected request body %+v", reqBody)
	}
	if !strings.Contains(output, "id-1") || !strings.Contains(output, "not ready to move") {
		t.Errorf("expected per-batch results, got: %s", output)
	}
}

func TestBatchMark_ShadowWarning(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/batches/abc/start" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(api.StatusResponse{
			Batch:  sampleBatch(),
			Shadow: &api.ShadowResponse{Error: "disk full"},
		})
	}))
	defer server.Close()
	viper.Set("url", server.URL)

	output := execute(t, "batch", "start", "abc")
	if !strings.Contains(output, "in_progress") || !strings.Contains(output, "disk full") {
		t.Errorf("expected status and shadow warning, got: %s", output)
	}
}

func TestBatchOutcome(t *testing.T) {
	resetViper()

	var reqBody api.OutcomeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&reqBody)
		b := sampleBatch()
		b.Outcome = "reject"
		json.NewEncoder(w).Encode(api.OutcomeResponse{Batch: b, Status: "finished_this_room"})
	}))
	defer server.Close()
	viper.Set("url", server.URL)

	output := execute(t, "batch", "outcome", "abc", "reject")
	if reqBody.Outcome != "reject" {
		t.Errorf("expected outcome=reject, got %q", reqBody.Outcome)
	}
	if !strings.Contains(output, "reject") || !strings.Contains(output, "finished_this_room") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestBatchShow(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(sampleBatch())
	}))
	defer server.Close()
	viper.Set("url", server.URL)

	output := execute(t, "batch", "show", "abc")
	if !strings.Contains(output, "10/40 kg (25.00%)") {
		t.Errorf("expected progress line, got: %s", output)
	}
}
