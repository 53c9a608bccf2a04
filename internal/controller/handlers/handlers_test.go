package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"prodflow/internal/lifecycle"
	"prodflow/internal/store"
	"prodflow/internal/store/memory"

	"github.com/google/uuid"
)

// mockLifecycle returns canned results and records what the handlers passed in.
type mockLifecycle struct {
	err error

	batch      *store.Batch
	progress   *lifecycle.ProgressResult
	packaging  *lifecycle.PackagingResult
	outcome    *lifecycle.OutcomeResult
	move       *lifecycle.MoveResult
	bulk       []lifecycle.MoveItemResult
	status     *lifecycle.StatusResult
	history    []store.HistoryRecord
	purged     int64
	listResult []store.Batch

	// Spies
	capturedToken   string
	capturedDelta   int
	capturedCreate  lifecycle.CreateBatchInput
	capturedMove    lifecycle.MoveInput
	capturedFilter  store.BatchFilter
	capturedBefore  *time.Time
	capturedOutcome store.Outcome
	capturedIDs     []uuid.UUID
}

func (m *mockLifecycle) CreateBatch(ctx context.Context, in lifecycle.CreateBatchInput) (*store.Batch, error) {
	m.capturedCreate = in
	return m.batch, m.err
}

func (m *mockLifecycle) GetBatch(ctx context.Context, id uuid.UUID) (*store.Batch, error) {
	return m.batch, m.err
}

func (m *mockLifecycle) ListBatches(ctx context.Context, filter store.BatchFilter) ([]store.Batch, error) {
	m.capturedFilter = filter
	return m.listResult, m.err
}

func (m *mockLifecycle) AddProgress(ctx context.Context, batchID uuid.UUID, delta int, clientToken string) (*lifecycle.ProgressResult, error) {
	m.capturedDelta, m.capturedToken = delta, clientToken
	return m.progress, m.err
}

func (m *mockLifecycle) AddPackaging(ctx context.Context, in lifecycle.PackagingInput) (*lifecycle.PackagingResult, error) {
	m.capturedDelta, m.capturedToken = in.Delta, in.ClientToken
	return m.packaging, m.err
}

func (m *mockLifecycle) FinalizePackaging(ctx context.Context, batchID uuid.UUID) (*store.Batch, error) {
	return m.batch, m.err
}

func (m *mockLifecycle) SetOutcome(ctx context.Context, batchID uuid.UUID, outcome store.Outcome) (*lifecycle.OutcomeResult, error) {
	m.capturedOutcome = outcome
	return m.outcome, m.err
}

func (m *mockLifecycle) MoveBatch(ctx context.Context, in lifecycle.MoveInput) (*lifecycle.MoveResult, error) {
	m.capturedMove = in
	return m.move, m.err
}

func (m *mockLifecycle) MoveBatches(ctx context.Context, ids []uuid.UUID, targetRoomID uuid.UUID, operatorID *uuid.UUID, mode lifecycle.MoveMode, force bool) []lifecycle.MoveItemResult {
	m.capturedIDs = ids
	return m.bulk
}

func (m *mockLifecycle) MarkInProgress(ctx context.Context, batchID uuid.UUID) (*lifecycle.StatusResult, error) {
	return m.status, m.err
}

func (m *mockLifecycle) MarkFinished(ctx context.Context, batchID uuid.UUID) (*lifecycle.StatusResult, error) {
	return m.status, m.err
}

func (m *mockLifecycle) MarkReady(ctx context.Context, batchID uuid.UUID) (*lifecycle.StatusResult, error) {
	return m.status, m.err
}

func (m *mockLifecycle) ListHistory(ctx context.Context, roomID uuid.UUID, limit int) ([]store.HistoryRecord, error) {
	return m.history, m.err
}

func (m *mockLifecycle) PurgeHistory(ctx context.Context, before *time.Time) (int64, error) {
	m.capturedBefore = before
	return m.purged, m.err
}

// pingCatalog is the memory store with a controllable Ping.
type pingCatalog struct {
	*memory.Store
	pingErr error
}

func (c *pingCatalog) Ping(ctx context.Context) error { return c.pingErr }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandlers(lc Lifecycle) (*Handlers, *pingCatalog) {
	catalog := &pingCatalog{Store: memory.New()}
	return New(lc, catalog, nil, discardLogger()), catalog
}

// do routes a single request through a mux so path values are populated.
func do(t *testing.T, pattern string, fn http.HandlerFunc, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	mux := http.NewServeMux()
	mux.HandleFunc(pattern, fn)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func sampleBatch() *store.Batch {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	est := 200
	count := 50
	return &store.Batch{
		ID:                 uuid.New(),
		BatchNumber:        "240301-ABC123",
		ItemID:             uuid.New(),
		TargetQuantity:     40,
		Unit:               store.UnitKilogram,
		RoomID:             uuid.New(),
		Status:             store.InProgress,
		Progress:           10,
		EstimatedPackaging: &est,
		PackagingCount:     &count,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}
