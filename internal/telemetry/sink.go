package telemetry

import (
	"context"
	"fmt"

	"github.com/BaSui01/collabengine/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricSink 将引擎事件转为 OTel 指标
type MetricSink struct {
	operations metric.Int64Counter
	duration   metric.Float64Histogram
	deliveries metric.Int64Counter
	rounds     metric.Int64Histogram
}

var _ metrics.Sink = (*MetricSink)(nil)

// NewMetricSink 在 meter 上创建引擎指标
func NewMetricSink(meter metric.Meter) (*MetricSink, error) {
	s := &MetricSink{}
	var err error

	if s.operations, err = meter.Int64Counter("collab.operations",
		metric.WithDescription("Completed engine operations"),
		metric.WithUnit("{operation}")); err != nil {
		return nil, fmt.Errorf("create operations counter: %w", err)
	}
	if s.duration, err = meter.Float64Histogram("collab.operation.duration",
		metric.WithDescription("Engine operation duration"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	if s.deliveries, err = meter.Int64Counter("collab.broadcast.deliveries",
		metric.WithDescription("Broadcast recipient outcomes"),
		metric.WithUnit("{recipient}")); err != nil {
		return nil, fmt.Errorf("create deliveries counter: %w", err)
	}
	if s.rounds, err = meter.Int64Histogram("collab.negotiation.rounds",
		metric.WithDescription("Rounds run per negotiation"),
		metric.WithUnit("{round}")); err != nil {
		return nil, fmt.Errorf("create rounds histogram: %w", err)
	}
	return s, nil
}

// Observe 实现 metrics.Sink
func (s *MetricSink) Observe(ev metrics.Event) {
	ctx := context.Background()
	attrs := []attribute.KeyValue{
		attribute.String("operation", string(ev.Operation)),
		attribute.String("status", ev.Status),
	}
	if ev.ConflictType != "" {
		attrs = append(attrs, attribute.String("conflict_type", ev.ConflictType))
	}
	set := metric.WithAttributes(attrs...)

	s.operations.Add(ctx, 1, set)
	s.duration.Record(ctx, ev.Duration.Seconds(), set)

	switch ev.Operation {
	case metrics.OpBroadcast:
		s.deliveries.Add(ctx, int64(ev.Delivered), metric.WithAttributes(attribute.String("outcome", "delivered")))
		s.deliveries.Add(ctx, int64(ev.Acknowledged), metric.WithAttributes(attribute.String("outcome", "acknowledged")))
		s.deliveries.Add(ctx, int64(ev.Failed), metric.WithAttributes(attribute.String("outcome", "failed")))
	case metrics.OpNegotiation:
		s.rounds.Record(ctx, int64(ev.Rounds), metric.WithAttributes(attribute.String("status", ev.Status)))
	}
}
