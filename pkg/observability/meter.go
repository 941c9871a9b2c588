package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "table-writer"

// Meter holds the write-path instruments. It satisfies metrics.Recorder.
type Meter struct {
	WriteAttempts  metric.Int64Counter
	WriteSuccesses metric.Int64Counter
	WriteRetries   metric.Int64Counter
	WriteFatals    metric.Int64Counter
	WriteDuration  metric.Float64Histogram

	component string
}

// ConfigureMeter creates and configures metrics based on the provided configuration
func ConfigureMeter(cfg *Config) *Meter {
	if !cfg.MetricsEnabled {
		return nil
	}

	ctx := context.Background()

	// Reads OTEL_EXPORTER_OTLP_ENDPOINT from the environment
	exporter, err := otlpmetrichttp.New(ctx)
	if err != nil {
		slog.Error("Failed to create OTLP metrics exporter", "error", err)
		return nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(buildResourceAttributes(cfg)...))
	if err != nil {
		slog.Error("Failed to create resource", "error", err)
		return nil
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(10*time.Second),
		)),
	)

	otel.SetMeterProvider(meterProvider)

	return NewMeter(meterProvider, cfg.ServiceName)
}

// NewMeter creates a new Meter instance with all the required metrics
func NewMeter(provider metric.MeterProvider, component string) *Meter {
	meter := provider.Meter(meterName)

	return &Meter{
		WriteAttempts: mustCreateCounter(meter, "tablewriter_write_attempts_total",
			"Total number of insert requests submitted to the store"),
		WriteSuccesses: mustCreateCounter(meter, "tablewriter_write_successes_total",
			"Total number of batches fully accepted by the store"),
		WriteRetries: mustCreateCounter(meter, "tablewriter_write_retries_total",
			"Total number of retries after retryable failures"),
		WriteFatals: mustCreateCounter(meter, "tablewriter_write_fatal_errors_total",
			"Total number of writes that failed permanently"),
		WriteDuration: mustCreateHistogram(meter, "tablewriter_write_duration_seconds",
			"Duration of completed writes in seconds"),
		component: component,
	}
}

func (m *Meter) attrs(table string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("component", m.component),
		attribute.String("table", table),
	)
}

func (m *Meter) RecordAttempt(ctx context.Context, table string) {
	m.WriteAttempts.Add(ctx, 1, m.attrs(table))
}

func (m *Meter) RecordSuccess(ctx context.Context, table string) {
	m.WriteSuccesses.Add(ctx, 1, m.attrs(table))
}

func (m *Meter) RecordRetry(ctx context.Context, table string) {
	m.WriteRetries.Add(ctx, 1, m.attrs(table))
}

func (m *Meter) RecordFatal(ctx context.Context, table string) {
	m.WriteFatals.Add(ctx, 1, m.attrs(table))
}

func (m *Meter) RecordLatency(ctx context.Context, table string, d time.Duration) {
	m.WriteDuration.Record(ctx, d.Seconds(), m.attrs(table))
}

func mustCreateCounter(meter metric.Meter, name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(
		name,
		metric.WithDescription(description),
		metric.WithUnit("1"),
	)
	if err != nil {
		slog.Error("Failed to create counter", "name", name, "error", err)
		panic(fmt.Sprintf("failed to create counter %s: %v", name, err))
	}
	return counter
}

func mustCreateHistogram(meter metric.Meter, name, description string) metric.Float64Histogram {
	histogram, err := meter.Float64Histogram(
		name,
		metric.WithDescription(description),
		metric.WithUnit("s"),
	)
	if err != nil {
		slog.Error("Failed to create histogram", "name", name, "error", err)
		panic(fmt.Sprintf("failed to create histogram %s: %v", name, err))
	}
	return histogram
}
