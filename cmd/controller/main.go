// Package main is the entry point for the prodflow controller.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"prodflow/internal/bootstrap"
	"prodflow/internal/config"
	"prodflow/internal/controller"
	"prodflow/internal/controller/live"
	"prodflow/internal/events"
	"prodflow/internal/lifecycle"
	"prodflow/internal/logger"
	"prodflow/internal/observability"
)

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to config file (default: prodflow.yaml in current directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(logger.New(), "failed to load config", err)
	}
	log := logger.NewWithLevel(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)

	ctx := context.Background()

	backend, err := bootstrap.OpenStore(ctx, cfg, *migrateFlag, log)
	if err != nil {
		fatal(log, "failed to open storage", err)
	}
	defer backend.Close()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, observability.TraceConfig{
		Component:   "controller",
		Endpoint:    cfg.OTELEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		fatal(log, "failed to init tracing", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		fatal(log, "failed to init metrics", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Error("failed to shutdown metrics", "error", err)
		}
	}()
	if err := observability.RegisterBatchGauge(backend, log); err != nil {
		log.Error("failed to register batch gauge", "error", err)
	}

	// Events go to connected websocket clients and, when configured, to Kafka.
	hub := live.NewHub(log)
	defer hub.Close()
	publishers := events.Multi{hub}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		}, log)
		defer kp.Close()
		publishers = append(publishers, kp)
		log.Info("publishing events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	svc, err := bootstrap.NewService(ctx, cfg, backend, log, lifecycle.WithPublisher(publishers))
	if err != nil {
		fatal(log, "failed to build lifecycle service", err)
	}

	handler := controller.NewHandler(svc, backend, log, controller.Options{
		Metrics:        metricsHandler,
		Live:           hub,
		RateLimit:      cfg.RateLimit,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, handler)

	go func() {
		log.Info("prodflow controller starting", "addr", addr, "storage", cfg.StorageDriver)
		if err := srv.Run(ctx); err != nil {
			log.Error("server stopped", "error", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down controller")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		fatal(log, "server forced to shutdown", err)
	}
	log.Info("server exited properly")
}
