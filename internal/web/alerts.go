package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"edgegrid/internal/models"
)

func (s *Server) alertRoutes(r chi.Router) {
	r.Get("/", s.handleListAlerts)
	r.Post("/", s.handleCreateAlert)
	r.Get("/summary", s.handleAlertSummary)
	r.Post("/read", s.handleMarkAllRead)
	r.Get("/{id}", s.handleGetAlert)
	r.Post("/{id}/resolve", s.handleResolveAlert)
	r.Post("/{id}/read", s.handleMarkRead)
	r.Delete("/{id}", s.handleDismissAlert)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.AlertFilter{
		Query:    q.Get("q"),
		Severity: models.Severity(facet(q.Get("severity"))),
		Category: facet(q.Get("category")),
		Status:   models.AlertStatus(facet(q.Get("status"))),
	}
	if v := q.Get("unread"); v != "" {
		unread, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, r, badRequest("unread must be a boolean"))
			return
		}
		f.Unread = unread
	}
	list, err := s.Alerts.List(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// facet maps the dashboard's "all" selector to no constraint.
func facet(v string) string {
	if v == "all" {
		return ""
	}
	return v
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var in models.NewAlert
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.Alerts.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleAlertSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.Alerts.Summarize(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	a, err := s.Alerts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	a, err := s.Alerts.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDismissAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.Alerts.Dismiss(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	a, err := s.Alerts.MarkRead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.Alerts.MarkAllRead(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": n})
}
