// Package observability provides OpenTelemetry instrumentation for tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"prodflow/internal/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// StatusCounter reports how many batch records currently carry each status.
type StatusCounter interface {
	CountBatchesByStatus(ctx context.Context) (map[store.StatusKind]int64, error)
}

// RegisterBatchGauge exposes prodflow_batches{status=...}, read from counter on
// every collection. Failed reads are logged and skip the observation.
func RegisterBatchGauge(counter StatusCounter, logger *slog.Logger) error {
	meter := otel.Meter("prodflow/observability")
	gauge, err := meter.Int64ObservableGauge("prodflow_batches",
		otelmetric.WithDescription("Batch records by lifecycle status"))
	if err != nil {
		return fmt.Errorf("failed to create batch gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(ctx context.Context, o otelmetric.Observer) error {
		counts, err := counter.CountBatchesByStatus(ctx)
		if err != nil {
			logger.Warn("failed to count batches for metrics", "error", err)
			return nil
		}
		for status, n := range counts {
			o.ObserveInt64(gauge, n, otelmetric.WithAttributes(attribute.String("status", string(status))))
		}
		return nil
	}, gauge)
	if err != nil {
		return fmt.Errorf("failed to register batch gauge: %w", err)
	}
	return nil
}
