// Package transports provides pluggable transport implementations for the CLI.
package transports

import (
	"context"
	"errors"
)

// Credentials are sent as HTTP Basic auth or gRPC authorization metadata.
// An empty Name sends nothing.
type Credentials struct {
	Name     string
	Password string
}

// SubscribeRequest describes an event stream subscription.
type SubscribeRequest struct {
	Types  []string
	Queue  string
	Filter string
	// Limit stops the stream after this many events (0 = infinite).
	Limit int
}

// EventsTransport abstracts the transport used by the CLI (gRPC/HTTP).
type EventsTransport interface {
	// Subscribe invokes onEvent with one JSON-encoded event per call.
	Subscribe(ctx context.Context, req SubscribeRequest, onEvent func(line []byte) error) error
	// Publish sends a JSON event object or array and returns the number
	// of events accepted.
	Publish(ctx context.Context, data []byte) (int, error)
}

// errStop ends a stream once a limit is reached.
var errStop = errors.New("transports: limit reached")

// counted wraps onEvent to stop after limit events.
func counted(limit int, onEvent func([]byte) error) func([]byte) error {
	if limit <= 0 {
		return onEvent
	}
	n := 0
	return func(line []byte) error {
		if err := onEvent(line); err != nil {
			return err
		}
		n++
		if n >= limit {
			return errStop
		}
		return nil
	}
}
