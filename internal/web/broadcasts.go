package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"edgegrid/internal/broadcast"
	"edgegrid/internal/models"
)

func (s *Server) broadcastRoutes(r chi.Router) {
	r.Get("/", s.handleHistory)
	r.Post("/", s.handleSend)
	r.Get("/templates", s.handleTemplates)
	r.Get("/channels", s.handleChannels)
	r.Post("/channels/toggle", s.handleToggleChannel)
	r.Get("/priorities", s.handlePriorities)
	r.Get("/{id}", s.handleGetBroadcast)
}

type sendRequest struct {
	Body            string           `json:"body"`
	Channels        []models.Channel `json:"channels"`
	Priority        models.Priority  `json:"priority"`
	DurationMinutes int              `json:"duration_minutes"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.Broadcasts.Send(r.Context(), req.Body, req.Channels, req.Priority, req.DurationMinutes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	list, err := s.Broadcasts.History(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetBroadcast(w http.ResponseWriter, r *http.Request) {
	m, err := s.Broadcasts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Broadcasts.Templates())
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Broadcasts.Channels())
}

func (s *Server) handlePriorities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Broadcasts.Priorities())
}

type toggleRequest struct {
	Selection []models.Channel `json:"selection"`
	Channel   models.Channel   `json:"channel"`
}

func (s *Server) handleToggleChannel(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !req.Channel.Valid() {
		s.writeError(w, r, models.ErrInvalidChannelSet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"selection": broadcast.ToggleChannel(req.Selection, req.Channel)})
}
