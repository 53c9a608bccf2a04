// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"prodflow/internal/controller/handlers"
	"prodflow/internal/controller/middleware"
)

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// Options carries the optional parts of the controller.
type Options struct {
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Live serves the websocket room feed when set.
	Live handlers.LiveFeed
	// RateLimit is requests per second per client; zero disables limiting.
	RateLimit      float64
	RateLimitBurst int
}

// NewHandler builds the routed handler chain.
func NewHandler(lc handlers.Lifecycle, catalog handlers.Catalog, logger *slog.Logger, opts Options) http.Handler {
	h := handlers.New(lc, catalog, opts.Live, logger)
	limit := middleware.NewRateLimiter(opts.RateLimit, opts.RateLimitBurst).Middleware()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	// Reference data
	mux.HandleFunc("GET /rooms", h.ListRooms)
	mux.HandleFunc("POST /rooms", h.CreateRoom)
	mux.HandleFunc("GET /rooms/{id}/history", h.ListHistory)
	mux.HandleFunc("GET /operators", h.ListOperators)
	mux.HandleFunc("POST /operators", h.CreateOperator)
	mux.HandleFunc("GET /items", h.ListItems)
	mux.HandleFunc("POST /items", h.CreateItem)
	mux.HandleFunc("POST /items/import", h.ImportItems)
	mux.HandleFunc("DELETE /history", h.PurgeHistory)

	// Batch lifecycle. Scanner stations post here, so writes are rate limited.
	mux.HandleFunc("GET /batches", h.ListBatches)
	mux.HandleFunc("GET /batches/{id}", h.GetBatch)
	mux.Handle("POST /batches", limit(http.HandlerFunc(h.CreateBatch)))
	mux.Handle("POST /batches/move", limit(http.HandlerFunc(h.MoveBatches)))
	mux.Handle("POST /batches/{id}/progress", limit(http.HandlerFunc(h.AddProgress)))
	mux.Handle("POST /batches/{id}/packaging", limit(http.HandlerFunc(h.AddPackaging)))
	mux.Handle("POST /batches/{id}/finalize", limit(http.HandlerFunc(h.FinalizePackaging)))
	mux.Handle("POST /batches/{id}/outcome", limit(http.HandlerFunc(h.SetOutcome)))
	mux.Handle("POST /batches/{id}/start", limit(http.HandlerFunc(h.MarkInProgress)))
	mux.Handle("POST /batches/{id}/finish", limit(http.HandlerFunc(h.MarkFinished)))
	mux.Handle("POST /batches/{id}/ready", limit(http.HandlerFunc(h.MarkReady)))
	mux.Handle("POST /batches/{ref}/move", limit(http.HandlerFunc(h.MoveBatch)))

	mux.HandleFunc("GET /ws/rooms/{id}", h.LiveRoom)

	return middleware.RequestID(logger)(mux)
}

// New creates a new controller server.
func New(addr string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
