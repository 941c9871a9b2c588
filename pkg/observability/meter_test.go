package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	result := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			result[m.Name] = m.Data
		}
	}
	return result
}

func TestMeter_Records(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := NewMeter(provider, "test")
	ctx := context.Background()

	m.RecordAttempt(ctx, "ds.events")
	m.RecordAttempt(ctx, "ds.events")
	m.RecordRetry(ctx, "ds.events")
	m.RecordSuccess(ctx, "ds.events")
	m.RecordLatency(ctx, "ds.events", 150*time.Millisecond)

	data := collect(t, reader)

	attempts, ok := data["tablewriter_write_attempts_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, attempts.DataPoints, 1)
	assert.Equal(t, int64(2), attempts.DataPoints[0].Value)

	table, ok := attempts.DataPoints[0].Attributes.Value("table")
	require.True(t, ok)
	assert.Equal(t, "ds.events", table.AsString())

	retries, ok := data["tablewriter_write_retries_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(1), retries.DataPoints[0].Value)

	duration, ok := data["tablewriter_write_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, duration.DataPoints, 1)
	assert.Equal(t, uint64(1), duration.DataPoints[0].Count)

	_, recorded := data["tablewriter_write_fatal_errors_total"]
	assert.False(t, recorded, "no fatal errors were recorded")
}

func TestConfigureMeter_Disabled(t *testing.T) {
	assert.Nil(t, ConfigureMeter(&Config{MetricsEnabled: false}))
}
