// Package eventsvc implements the event stream state machine and the
// publish and queue-listing operations exposed by the HTTP and gRPC
// servers.
//
// A stream moves through Validating, Provisioning, Streaming and
// Terminated. Validation never touches a queue; once provisioned, the
// subscriber is withdrawn on every exit path and the queue is removed
// from the registry when it has no subscribers left.
package eventsvc
