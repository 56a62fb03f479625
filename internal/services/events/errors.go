package eventsvc

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrQueueNotFound is returned for lookups of unregistered queues.
var ErrQueueNotFound = errors.New("eventsvc: queue not found")

// RequestError is a request validation failure carrying the HTTP status
// the transport should answer with.
type RequestError struct {
	Status  int
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *RequestError) Unwrap() error { return e.Err }

func badRequest(msg string, err error) *RequestError {
	return &RequestError{Status: http.StatusBadRequest, Message: msg, Err: err}
}

// StatusOf returns the HTTP status for err: the RequestError status, or
// 500 for anything else.
func StatusOf(err error) int {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the client-facing message for err.
func MessageOf(err error) string {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Message
	}
	return err.Error()
}
