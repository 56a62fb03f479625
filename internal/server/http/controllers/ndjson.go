package controllers

import (
	"context"
	"net/http"

	"github.com/rzbill/evbus/internal/events"
)

// StreamContentType is the media type of event streams.
const StreamContentType = "application/x-json-stream"

// ndjsonSink writes events as newline-delimited JSON.
type ndjsonSink struct {
	w       http.ResponseWriter
	r       *http.Request
	started bool
}

// Context returns the request context for cancellation.
func (s *ndjsonSink) Context() context.Context {
	return s.r.Context()
}

// Start commits the 200 response headers.
func (s *ndjsonSink) Start() error {
	h := s.w.Header()
	h.Set("Content-Type", StreamContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	s.w.WriteHeader(http.StatusOK)
	s.started = true
	return s.Flush()
}

// Send writes one event as a single line.
func (s *ndjsonSink) Send(ev *events.Event) error {
	line, err := events.EncodeLine(ev)
	if err != nil {
		return err
	}
	_, err = s.w.Write(line)
	return err
}

// Flush flushes the HTTP response writer if it supports flushing.
func (s *ndjsonSink) Flush() error {
	return http.NewResponseController(s.w).Flush()
}
