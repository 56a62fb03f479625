package eventqueue

import (
	"context"

	"github.com/rzbill/evbus/internal/events"
	"github.com/rzbill/evbus/internal/filter"
	"github.com/rzbill/evbus/internal/telemetry"
	"github.com/rzbill/evbus/pkg/log"
)

// Broadcaster is the publish entry point. It routes an event to every
// queue accepting its type.
type Broadcaster struct {
	registry *Registry
	logger   log.Logger
	metrics  telemetry.Recorder
}

// NewBroadcaster creates a broadcaster over r.
func NewBroadcaster(r *Registry, opts ...Option) *Broadcaster {
	o := buildOptions(opts)
	return &Broadcaster{
		registry: r,
		logger:   o.logger.WithComponent("broadcaster"),
		metrics:  o.metrics,
	}
}

// Publish delivers ev to every matching queue. It never fails and never
// waits for subscribers.
func (b *Broadcaster) Publish(ctx context.Context, ev *events.Event) {
	b.metrics.EventPublished(ctx, ev.Type())
	queues := b.registry.QueuesForType(ev.Type())
	if len(queues) == 0 {
		b.logger.Debug("no queue accepts event", log.Str("type", ev.Type()))
		return
	}
	accepted := 0
	for _, q := range queues {
		if q.Publish(ctx, ev) == filter.Accepted {
			accepted++
		}
	}
	b.logger.Debug("event published",
		log.Str("type", ev.Type()), log.Int("queues", len(queues)), log.Int("accepted", accepted))
}

// PublishJSON decodes data (one object or an array of objects) and
// publishes each event in order. Nothing is published if any element is
// invalid.
func (b *Broadcaster) PublishJSON(ctx context.Context, data []byte) (int, error) {
	evs, err := events.DecodeMany(data)
	if err != nil {
		return 0, err
	}
	for _, ev := range evs {
		b.Publish(ctx, ev)
	}
	return len(evs), nil
}
