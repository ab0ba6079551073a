package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"edgegrid/internal/models"
)

func (s *Server) deviceRoutes(r chi.Router) {
	r.Get("/", s.handleListDevices)
	r.Get("/phases", s.handlePhases)
	r.Get("/{id}", s.handleGetDevice)
	r.Post("/{id}/phase", s.handleSetPhase)
	r.Post("/{id}/toggle", s.handleToggleMode)
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	list, err := s.Devices.List(r.Context(), "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handlePhases(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Devices.Phases())
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.Devices.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type setPhaseRequest struct {
	Phase       models.Phase `json:"phase"`
	HoldSeconds int          `json:"hold_seconds"`
}

func (s *Server) handleSetPhase(w http.ResponseWriter, r *http.Request) {
	var req setPhaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.Devices.SetPhase(r.Context(), chi.URLParam(r, "id"), req.Phase, req.HoldSeconds)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleToggleMode(w http.ResponseWriter, r *http.Request) {
	d, err := s.Devices.ToggleMode(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
