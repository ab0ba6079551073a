package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"edgegrid/internal/models"
)

func (s *Server) diagnosticRoutes(r chi.Router) {
	r.Get("/tests", s.handleTests)
	r.Get("/nodes", s.handleNodes)
	r.Post("/nodes/refresh", s.handleRefreshNodes)
	r.Get("/nodes/{id}", s.handleNode)
	r.Get("/running", s.handleRunning)
	r.Post("/runs", s.handleStartRun)
	r.Get("/runs/{test}/{scope}", s.handleRunResult)
	r.Delete("/runs/{test}/{scope}", s.handleCancelRun)
	r.Get("/runs/{test}/{scope}/history", s.handleRunHistory)
}

func (s *Server) handleTests(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Diagnostics.Tests())
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Nodes.Snapshot())
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	h, err := s.Nodes.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

// handleRefreshNodes polls every agent before answering.
func (s *Server) handleRefreshNodes(w http.ResponseWriter, r *http.Request) {
	s.Nodes.Tick(r.Context())
	writeJSON(w, http.StatusOK, s.Nodes.Snapshot())
}

func (s *Server) handleRunning(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Diagnostics.Running())
}

type startRunRequest struct {
	TestID string `json:"test_id"`
	Scope  string `json:"scope"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	run, err := s.Diagnostics.Start(r.Context(), req.TestID, req.Scope)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

type runResult struct {
	Status string          `json:"status"`
	Run    *models.TestRun `json:"run,omitempty"`
}

// handleRunResult reports "pending" while a run is in flight and "none" for
// a key that has never completed.
func (s *Server) handleRunResult(w http.ResponseWriter, r *http.Request) {
	test, scope := chi.URLParam(r, "test"), chi.URLParam(r, "scope")
	run, ok, err := s.Diagnostics.Result(r.Context(), test, scope)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	switch {
	case s.Diagnostics.IsRunning(test, scope):
		writeJSON(w, http.StatusOK, runResult{Status: "pending"})
	case !ok:
		writeJSON(w, http.StatusOK, runResult{Status: "none"})
	default:
		writeJSON(w, http.StatusOK, runResult{Status: string(run.Status), Run: &run})
	}
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.Diagnostics.Cancel(r.Context(), chi.URLParam(r, "test"), chi.URLParam(r, "scope"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunHistory(w http.ResponseWriter, r *http.Request) {
	test, scope := chi.URLParam(r, "test"), chi.URLParam(r, "scope")
	if _, _, err := s.Diagnostics.Result(r.Context(), test, scope); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.Runs == nil {
		writeJSON(w, http.StatusOK, []models.TestRun{})
		return
	}
	list, err := s.Runs.ListRuns(r.Context(), test, scope, queryInt(r, "limit", 20))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
