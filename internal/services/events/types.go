package eventsvc

import (
	"context"

	"github.com/rzbill/evbus/internal/events"
)

// SubscribeRequest carries the parameters of one event stream.
type SubscribeRequest struct {
	Types  []string `json:"types"`
	Queue  string   `json:"queue"`
	Filter string   `json:"filter,omitempty"`
	// LegacyProtocol is set by transports that cannot stream, such as
	// HTTP/1.0 connections.
	LegacyProtocol bool `json:"-"`
}

// Sink is the transport side of one event stream.
type Sink interface {
	// Context is done when the peer disconnects.
	Context() context.Context
	// Start commits the success response. It is called exactly once,
	// after the subscriber is registered and before the first Send.
	Start() error
	// Send writes one event.
	Send(ev *events.Event) error
	// Flush pushes buffered output to the peer.
	Flush() error
}

// QueueInfo describes a registered queue for administrative listing.
type QueueInfo struct {
	Name        string   `json:"name"`
	Types       []string `json:"types"`
	Filter      string   `json:"filter,omitempty"`
	Subscribers int      `json:"subscribers"`
}

// State is the lifecycle phase of a stream.
type State int

const (
	StateValidating State = iota
	StateProvisioning
	StateStreaming
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateValidating:
		return "validating"
	case StateProvisioning:
		return "provisioning"
	case StateStreaming:
		return "streaming"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
