package controllers

import (
	"net/http"

	"github.com/rzbill/evbus/internal/authz"
	eventsvc "github.com/rzbill/evbus/internal/services/events"
)

// QueuesController serves administrative queue listing.
type QueuesController struct {
	svc *eventsvc.Service
}

// NewQueuesController creates a new queues controller.
func NewQueuesController(svc *eventsvc.Service) *QueuesController {
	return &QueuesController{svc: svc}
}

// RegisterRoutes registers GET /v1/queues and GET /v1/queues/{name}.
func (c *QueuesController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/queues", c.handleList)
	mux.HandleFunc("/v1/queues/{name}", c.handleGet)
}

func (c *QueuesController) handleList(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	infos, err := c.svc.ListQueues(authz.UserFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queues": infos})
}

func (c *QueuesController) handleGet(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	info, err := c.svc.GetQueue(authz.UserFromContext(r.Context()), r.PathValue("name"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
