// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"prodflow/internal/lifecycle"
	"prodflow/internal/logger"
	"prodflow/internal/store"
	"prodflow/pkg/api"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Lifecycle is the batch state machine as the handlers use it.
type Lifecycle interface {
	CreateBatch(ctx context.Context, in lifecycle.CreateBatchInput) (*store.Batch, error)
	GetBatch(ctx context.Context, id uuid.UUID) (*store.Batch, error)
	ListBatches(ctx context.Context, filter store.BatchFilter) ([]store.Batch, error)
	AddProgress(ctx context.Context, batchID uuid.UUID, delta int, clientToken string) (*lifecycle.ProgressResult, error)
	AddPackaging(ctx context.Context, in lifecycle.PackagingInput) (*lifecycle.PackagingResult, error)
	FinalizePackaging(ctx context.Context, batchID uuid.UUID) (*store.Batch, error)
	SetOutcome(ctx context.Context, batchID uuid.UUID, outcome store.Outcome) (*lifecycle.OutcomeResult, error)
	MoveBatch(ctx context.Context, in lifecycle.MoveInput) (*lifecycle.MoveResult, error)
	MoveBatches(ctx context.Context, ids []uuid.UUID, targetRoomID uuid.UUID, operatorID *uuid.UUID, mode lifecycle.MoveMode, force bool) []lifecycle.MoveItemResult
	MarkInProgress(ctx context.Context, batchID uuid.UUID) (*lifecycle.StatusResult, error)
	MarkFinished(ctx context.Context, batchID uuid.UUID) (*lifecycle.StatusResult, error)
	MarkReady(ctx context.Context, batchID uuid.UUID) (*lifecycle.StatusResult, error)
	ListHistory(ctx context.Context, roomID uuid.UUID, limit int) ([]store.HistoryRecord, error)
	PurgeHistory(ctx context.Context, before *time.Time) (int64, error)
}

// Catalog is the reference data the controller manages directly.
type Catalog interface {
	Ping(ctx context.Context) error
	store.RoomStore
	store.OperatorStore
	store.ItemStore
}

// LiveFeed streams a room's events over a websocket.
type LiveFeed interface {
	Serve(w http.ResponseWriter, r *http.Request, roomID uuid.UUID)
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	lifecycle Lifecycle
	catalog   Catalog
	live      LiveFeed
	validate  *validator.Validate
	logger    *slog.Logger
}

// New creates a new Handlers instance. live may be nil, which disables the feed.
func New(lc Lifecycle, catalog Catalog, live LiveFeed, logger *slog.Logger) *Handlers {
	return &Handlers{
		lifecycle: lc,
		catalog:   catalog,
		live:      live,
		validate:  newValidator(),
		logger:    logger,
	}
}

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// statusForKind maps lifecycle error kinds to HTTP status codes.
func statusForKind(kind lifecycle.ErrorKind) int {
	switch kind {
	case lifecycle.KindInvalidQuantity, lifecycle.KindInvalidInput:
		return http.StatusBadRequest
	case lifecycle.KindNotFound:
		return http.StatusNotFound
	case lifecycle.KindInvalidStateForTransition, lifecycle.KindRejectedBatchImmutable,
		lifecycle.KindBatchNumberInUse, lifecycle.KindDuplicateBatchInRoom:
		return http.StatusConflict
	case lifecycle.KindQuantityExceedsTarget, lifecycle.KindPackagingOverEstimateHardCap:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// errorBody converts err into the API error payload and its status code.
// Unclassified errors are hidden behind a generic message.
func errorBody(err error) (api.ErrorResponse, int) {
	var le *lifecycle.Error
	if errors.As(err, &le) {
		code := statusForKind(le.Kind)
		return api.ErrorResponse{
			Error:   le.Message,
			Code:    strconv.Itoa(code),
			Kind:    string(le.Kind),
			Allowed: le.Allowed,
		}, code
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return api.ErrorResponse{Error: "Not found", Code: "404", Kind: string(lifecycle.KindNotFound)}, http.StatusNotFound
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrDuplicateBatchInRoom):
		return api.ErrorResponse{Error: "Conflicting record", Code: "409"}, http.StatusConflict
	}
	return api.ErrorResponse{Error: "Internal error", Code: "500"}, http.StatusInternalServerError
}

// writeError responds with the classified error and logs unexpected failures.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	body, code := errorBody(err)
	if code == http.StatusInternalServerError {
		logger.FromContext(r.Context(), h.logger).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}
	h.respondJson(w, code, body)
}

// decode reads a JSON body into dst and validates it.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondJson(w, http.StatusBadRequest, api.ErrorResponse{
			Error: "Invalid request body",
			Code:  "400",
			Kind:  string(lifecycle.KindInvalidInput),
		})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			h.httpError(w, "Invalid request body", http.StatusBadRequest)
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			field := fe.Namespace()
			if i := strings.Index(field, "."); i >= 0 {
				field = field[i+1:]
			}
			fields[field] = validationMessage(fe)
		}
		h.respondJson(w, http.StatusBadRequest, api.ErrorResponse{
			Error:  "Validation failed",
			Code:   "400",
			Kind:   string(lifecycle.KindInvalidInput),
			Fields: fields,
		})
		return false
	}
	return true
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("must have at least %s", fe.Param())
	}
	return "is invalid"
}

// pathID parses the {id} path value, writing a 400 on failure.
func (h *Handlers) pathID(w http.ResponseWriter, r *http.Request, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.respondJson(w, http.StatusBadRequest, api.ErrorResponse{
			Error: "Invalid " + what + " id",
			Code:  "400",
			Kind:  string(lifecycle.KindInvalidInput),
		})
		return uuid.Nil, false
	}
	return id, true
}

// optionalUUID parses an optional id field from a request body.
func optionalUUID(s *string) *uuid.UUID {
	if s == nil || *s == "" {
		return nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil
	}
	return &id
}

// queryLimit reads ?limit=, falling back to def for missing or invalid values.
func queryLimit(r *http.Request, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		return n
	}
	return def
}
