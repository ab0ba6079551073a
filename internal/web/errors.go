package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"edgegrid/internal/models"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func badRequest(msg string) error {
	return fmt.Errorf("%w: %s", models.ErrInvalidInput, msg)
}

// classify maps an error kind to its HTTP status and wire code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, models.ErrUnknownTest):
		return http.StatusNotFound, "unknown_test"
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, models.ErrAlreadyRunning):
		return http.StatusConflict, "already_running"
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, models.ErrDeviceUnavailable):
		return http.StatusLocked, "device_unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "err", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}
