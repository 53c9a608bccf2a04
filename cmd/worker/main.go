// Package main is the entry point for the prodflow worker.
// The worker promotes scheduled batches whose start time has passed and expires
// old idempotency tokens. Several workers may share one database.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"prodflow/internal/bootstrap"
	"prodflow/internal/config"
	"prodflow/internal/events"
	"prodflow/internal/lifecycle"
	"prodflow/internal/logger"
	"prodflow/internal/observability"
	"prodflow/internal/worker"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file (default: prodflow.yaml in current directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New().Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := bootstrap.OpenStore(ctx, cfg, false, log)
	if err != nil {
		log.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, observability.TraceConfig{
		Component:   "worker",
		Endpoint:    cfg.OTELEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		log.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Error("failed to shutdown metrics", "error", err)
		}
	}()

	var opts []lifecycle.Option
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		}, log)
		defer kp.Close()
		opts = append(opts, lifecycle.WithPublisher(kp))
	}

	svc, err := bootstrap.NewService(ctx, cfg, backend, log, opts...)
	if err != nil {
		log.Error("failed to build lifecycle service", "error", err)
		os.Exit(1)
	}

	hostname, _ := os.Hostname()
	sweeper := worker.New(svc, worker.Config{
		ID:             hostname,
		PollInterval:   cfg.SweepInterval,
		MaxBackoff:     cfg.SweepMaxBackoff,
		BatchSize:      cfg.SweepBatchSize,
		TokenRetention: cfg.IdempotencyRetention,
	}, log)

	go sweeper.Run(ctx)

	// Start a dedicated metrics server on port 6162
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		log.Info("worker metrics listening", "addr", ":6162")
		if err := http.ListenAndServe(":6162", mux); err != nil {
			log.Error("metrics server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker")
	cancel()

	<-sweeper.Done()
}
