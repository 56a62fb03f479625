package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rzbill/evbus/internal/authz"
	"github.com/rzbill/evbus/internal/runtime"
	eventsvc "github.com/rzbill/evbus/internal/services/events"
	logpkg "github.com/rzbill/evbus/pkg/log"
)

// EventsController serves event streams and event publishing.
type EventsController struct {
	rt     *runtime.Runtime
	svc    *eventsvc.Service
	logger logpkg.Logger
}

// NewEventsController creates a new events controller.
func NewEventsController(rt *runtime.Runtime, svc *eventsvc.Service, logger logpkg.Logger) *EventsController {
	return &EventsController{rt: rt, svc: svc, logger: logger.WithComponent("http.events")}
}

// RegisterRoutes registers:
// - POST /v1/events (newline-delimited JSON event stream)
// - POST /v1/events/publish
func (c *EventsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/events", c.handleSubscribe)
	mux.HandleFunc("/v1/events/publish", c.handlePublish)
}

// subscribeBody is the optional JSON body of a stream request.
type subscribeBody struct {
	Types  []string `json:"types"`
	Queue  string   `json:"queue"`
	Filter string   `json:"filter"`
}

// parseSubscribe merges query parameters with the JSON body; body values
// win when present. types may repeat in the query or be comma separated.
func parseSubscribe(r *http.Request) (eventsvc.SubscribeRequest, error) {
	q := r.URL.Query()
	req := eventsvc.SubscribeRequest{
		Queue:          q.Get("queue"),
		Filter:         q.Get("filter"),
		LegacyProtocol: !r.ProtoAtLeast(1, 1),
	}
	for _, v := range q["types"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				req.Types = append(req.Types, t)
			}
		}
	}
	if r.Body == nil {
		return req, nil
	}
	var body subscribeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return req, nil
		}
		return req, err
	}
	if len(body.Types) > 0 {
		req.Types = body.Types
	}
	if body.Queue != "" {
		req.Queue = body.Queue
	}
	if body.Filter != "" {
		req.Filter = body.Filter
	}
	return req, nil
}

// handleSubscribe streams events until the client disconnects.
//
// Validation failures answer 400 {"error":400,"status":"..."} before any
// stream byte is written.
func (c *EventsController) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if !r.ProtoAtLeast(1, 1) {
		WriteError(w, http.StatusBadRequest, "HTTP/1.0 not supported for event streams")
		return
	}
	req, err := parseSubscribe(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	sink := &ndjsonSink{w: w, r: r}
	err = c.svc.Subscribe(authz.UserFromContext(r.Context()), req, sink)
	if err == nil {
		return
	}
	if sink.started {
		c.logger.WithContext(r.Context()).Debug("event stream ended", logpkg.Err(err))
		return
	}
	writeServiceError(w, err)
}

// handlePublish accepts one event object or an array of them.
//
// Returns 202 {"published": n}.
func (c *EventsController) handlePublish(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	limit := c.rt.Config().Events.MaxPublishBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	n, err := c.svc.Publish(r.Context(), authz.UserFromContext(r.Context()), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"published": n})
}
