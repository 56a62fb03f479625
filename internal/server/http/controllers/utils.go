package controllers

import (
	"encoding/json"
	"net/http"

	eventsvc "github.com/rzbill/evbus/internal/services/events"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  int    `json:"error"`
	Status string `json:"status"`
}

// WriteError writes {"error":<status>,"status":<message>} with the given status.
func WriteError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: status, Status: message})
}

// writeServiceError maps a service error to its status and message.
func writeServiceError(w http.ResponseWriter, err error) {
	WriteError(w, eventsvc.StatusOf(err), eventsvc.MessageOf(err))
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// requireMethod answers 405 unless r uses method.
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}
