package lifecycle

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type metrics struct {
	progressEvents  metric.Int64Counter
	completions     metric.Int64Counter
	transitions     metric.Int64Counter
	shadowsCreated  metric.Int64Counter
	shadowFailures  metric.Int64Counter
	duplicates      metric.Int64Counter
	promotions      metric.Int64Counter
	publishFailures metric.Int64Counter
}

// newMetrics registers the lifecycle counters on the global meter provider. A
// failed registration falls back to a no-op counter.
func newMetrics(log *slog.Logger) *metrics {
	meter := otel.Meter("prodflow/lifecycle")

	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			log.Warn("failed to register metric", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &metrics{
		progressEvents:  counter("prodflow.progress.events", "Accepted progress and packaging increments"),
		completions:     counter("prodflow.room.completions", "Batches that finished a room"),
		transitions:     counter("prodflow.transitions", "Batch records moved or spawned into another room"),
		shadowsCreated:  counter("prodflow.shadow.created", "Shadow records created downstream"),
		shadowFailures:  counter("prodflow.shadow.failures", "Shadow propagation attempts that failed"),
		duplicates:      counter("prodflow.idempotency.duplicates", "Replayed requests answered without side effects"),
		promotions:      counter("prodflow.sweep.promotions", "Waiting batches promoted by the sweep"),
		publishFailures: counter("prodflow.events.publish_failures", "Lifecycle events that could not be delivered"),
	}
}
