package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of every evbus instrument.
const MeterName = "github.com/rzbill/evbus"

// Recorder records event bus metrics.
// Use New for OpenTelemetry metrics or Noop{} when disabled.
type Recorder interface {
	// EventPublished counts one event handed to the broadcaster.
	EventPublished(ctx context.Context, eventType string)

	// EventDelivered counts one event appended to a queue, fanned out to
	// the given number of subscribers.
	EventDelivered(ctx context.Context, queue string, subscribers int)

	// FilterRejected counts one event dropped by a queue filter.
	FilterRejected(ctx context.Context, queue string)

	// FilterError counts one failed filter evaluation.
	FilterError(ctx context.Context, queue string)

	// SubscriberAdded and SubscriberRemoved track the active subscriber gauge.
	SubscriberAdded(ctx context.Context, queue string)
	SubscriberRemoved(ctx context.Context, queue string)
}

type otelMetrics struct {
	published   metric.Int64Counter
	delivered   metric.Int64Counter
	deliveries  metric.Int64Counter
	rejected    metric.Int64Counter
	filterErrs  metric.Int64Counter
	subscribers metric.Int64UpDownCounter
}

// New builds a Recorder on the given provider. A nil provider means the
// global one from otel.GetMeterProvider.
func New(provider metric.MeterProvider) (Recorder, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(MeterName)

	published, err := meter.Int64Counter("evbus.events.published",
		metric.WithDescription("Events handed to the broadcaster"),
	)
	if err != nil {
		return nil, err
	}
	delivered, err := meter.Int64Counter("evbus.events.delivered",
		metric.WithDescription("Events accepted by a queue"),
	)
	if err != nil {
		return nil, err
	}
	deliveries, err := meter.Int64Counter("evbus.subscriber.deliveries",
		metric.WithDescription("Events appended to subscriber FIFOs"),
	)
	if err != nil {
		return nil, err
	}
	rejected, err := meter.Int64Counter("evbus.filter.rejected",
		metric.WithDescription("Events rejected by a queue filter"),
	)
	if err != nil {
		return nil, err
	}
	filterErrs, err := meter.Int64Counter("evbus.filter.errors",
		metric.WithDescription("Filter evaluation failures"),
	)
	if err != nil {
		return nil, err
	}
	subscribers, err := meter.Int64UpDownCounter("evbus.subscribers.active",
		metric.WithDescription("Currently connected subscribers"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		published:   published,
		delivered:   delivered,
		deliveries:  deliveries,
		rejected:    rejected,
		filterErrs:  filterErrs,
		subscribers: subscribers,
	}, nil
}

func queueAttr(queue string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("queue", queue))
}

func (m *otelMetrics) EventPublished(ctx context.Context, eventType string) {
	m.published.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

func (m *otelMetrics) EventDelivered(ctx context.Context, queue string, subscribers int) {
	m.delivered.Add(ctx, 1, queueAttr(queue))
	if subscribers > 0 {
		m.deliveries.Add(ctx, int64(subscribers), queueAttr(queue))
	}
}

func (m *otelMetrics) FilterRejected(ctx context.Context, queue string) {
	m.rejected.Add(ctx, 1, queueAttr(queue))
}

func (m *otelMetrics) FilterError(ctx context.Context, queue string) {
	m.filterErrs.Add(ctx, 1, queueAttr(queue))
}

func (m *otelMetrics) SubscriberAdded(ctx context.Context, queue string) {
	m.subscribers.Add(ctx, 1, queueAttr(queue))
}

func (m *otelMetrics) SubscriberRemoved(ctx context.Context, queue string) {
	m.subscribers.Add(ctx, -1, queueAttr(queue))
}

// Noop discards every measurement.
type Noop struct{}

func (Noop) EventPublished(context.Context, string)      {}
func (Noop) EventDelivered(context.Context, string, int) {}
func (Noop) FilterRejected(context.Context, string)      {}
func (Noop) FilterError(context.Context, string)         {}
func (Noop) SubscriberAdded(context.Context, string)     {}
func (Noop) SubscriberRemoved(context.Context, string)   {}
