package eventqueue

import (
	"time"

	"github.com/rzbill/evbus/internal/telemetry"
	"github.com/rzbill/evbus/pkg/log"
)

// DefaultPollSlice bounds one idle suspension of WaitForEventContext.
const DefaultPollSlice = 100 * time.Millisecond

type options struct {
	logger    log.Logger
	metrics   telemetry.Recorder
	pollSlice time.Duration
}

// Option configures queues, registries and broadcasters.
type Option func(*options)

// WithLogger sets the logger. Components tag it with their own name.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m telemetry.Recorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithPollSlice overrides DefaultPollSlice.
func WithPollSlice(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollSlice = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:    log.NewNopLogger(),
		metrics:   telemetry.Noop{},
		pollSlice: DefaultPollSlice,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
