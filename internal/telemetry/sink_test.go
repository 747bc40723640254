package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/collabengine/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumInt64(t *testing.T, agg metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := agg.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", agg)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetricSink_Observe(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	sink, err := NewMetricSink(mp.Meter(InstrumentationName))
	require.NoError(t, err)

	agg := metrics.NewAggregator(sink)
	agg.RecordBroadcast(20*time.Millisecond, 5, 4, 1)
	agg.RecordNegotiation("agreement", true, 3, time.Second)
	agg.RecordConflict("priority", false, time.Millisecond)

	data := collect(t, reader)
	assert.Equal(t, int64(3), sumInt64(t, data["collab.operations"]))
	assert.Equal(t, int64(10), sumInt64(t, data["collab.broadcast.deliveries"]))

	rounds, ok := data["collab.negotiation.rounds"].(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, rounds.DataPoints, 1)
	assert.Equal(t, int64(3), rounds.DataPoints[0].Sum)

	durations, ok := data["collab.operation.duration"].(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Len(t, durations.DataPoints, 3)
}
