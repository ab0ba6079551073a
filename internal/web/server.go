// Package web exposes the control core over HTTP and streams change events
// to operator consoles over websockets.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"edgegrid/internal/alerts"
	"edgegrid/internal/broadcast"
	"edgegrid/internal/collector"
	"edgegrid/internal/diagnostics"
	"edgegrid/internal/events"
	"edgegrid/internal/models"
	"edgegrid/internal/traffic"
)

// AuditReader is the query side of the audit log.
type AuditReader interface {
	ListEvents(ctx context.Context, f events.Filter) ([]events.Event, error)
}

// RunHistory lists past terminal runs of a key, newest first.
type RunHistory interface {
	ListRuns(ctx context.Context, testID, scope string, limit int) ([]models.TestRun, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// HTTPObserver receives one observation per finished request.
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int, d time.Duration)
}

type Deps struct {
	Alerts      *alerts.Registry
	Devices     *traffic.ControlPlane
	Diagnostics *diagnostics.Orchestrator
	Nodes       *collector.Service
	Broadcasts  *broadcast.Dispatcher
	Audit       AuditReader
	Runs        RunHistory
	Ready       Pinger
	Hub         *Hub
	Metrics     http.Handler
	Observer    HTTPObserver
	// Auth wraps every /api and /ws route.
	Auth func(http.Handler) http.Handler
}

type Server struct {
	Deps
	log *slog.Logger
}

func NewServer(deps Deps, logger *slog.Logger) *Server {
	if deps.Auth == nil {
		deps.Auth = func(h http.Handler) http.Handler { return h }
	}
	if deps.Nodes == nil {
		deps.Nodes = collector.NewService(deps.Diagnostics.Nodes(), nil, nil, logger)
	}
	return &Server{Deps: deps, log: logger}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(logMiddleware(s.log, s.Observer))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.Auth)
		if s.Hub != nil {
			r.Get("/ws", s.Hub.ServeWS)
		}
		r.Route("/api", func(r chi.Router) {
			r.Route("/alerts", s.alertRoutes)
			r.Route("/devices", s.deviceRoutes)
			r.Route("/diagnostics", s.diagnosticRoutes)
			r.Route("/broadcasts", s.broadcastRoutes)
			r.Get("/audit", s.handleAudit)
		})
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.Ready != nil {
		if err := s.Ready.Ping(r.Context()); err != nil {
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.Audit == nil {
		writeJSON(w, http.StatusOK, []events.Event{})
		return
	}
	q := r.URL.Query()
	f := events.Filter{
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		Kind:     events.Kind(q.Get("kind")),
		Limit:    queryInt(r, "limit", 100),
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, r, badRequest("since must be RFC3339"))
			return
		}
		f.Since = since
	}
	list, err := s.Audit.ListEvents(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("malformed request body: " + err.Error())
	}
	return nil
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
