package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"edgegrid/internal/events"
)

func actorEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(events.ActorFrom(r.Context())))
	})
}

func TestIssueAndValidate(t *testing.T) {
	m := NewManager("s3cret", time.Hour)
	tok, err := m.Issue("op-1", RoleOperator)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c, err := m.Validate(tok)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if c.Subject != "op-1" || c.Role != RoleOperator {
		t.Fatalf("claims = %#v", c)
	}

	if _, err := NewManager("other", time.Hour).Validate(tok); err == nil {
		t.Fatal("expected signature error with a different secret")
	}

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := m.Validate(tok); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestIssueRejects(t *testing.T) {
	if _, err := NewManager("", 0).Issue("op", RoleOperator); err == nil {
		t.Fatal("expected error when disabled")
	}
	m := NewManager("s", 0)
	if _, err := m.Issue("", RoleOperator); err == nil {
		t.Fatal("expected error for empty subject")
	}
	if _, err := m.Issue("op", "root"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestMiddleware(t *testing.T) {
	m := NewManager("s3cret", time.Hour)
	opTok, _ := m.Issue("op-1", RoleOperator)
	viewTok, _ := m.Issue("viewer-1", RoleViewer)
	h := m.Middleware(actorEcho())

	tests := []struct {
		name   string
		method string
		target string
		auth   string
		status int
		actor  string
	}{
		{"no token", http.MethodGet, "/api/alerts", "", http.StatusUnauthorized, ""},
		{"garbage", http.MethodGet, "/api/alerts", "Bearer nope", http.StatusUnauthorized, ""},
		{"viewer read", http.MethodGet, "/api/alerts", "Bearer " + viewTok, http.StatusOK, "viewer-1"},
		{"viewer write", http.MethodPost, "/api/alerts/1/resolve", "Bearer " + viewTok, http.StatusForbidden, ""},
		{"operator write", http.MethodPost, "/api/alerts/1/resolve", "Bearer " + opTok, http.StatusOK, "op-1"},
		{"query token", http.MethodGet, "/ws?access_token=" + viewTok, "", http.StatusOK, "viewer-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.actor != "" && rec.Body.String() != tt.actor {
				t.Fatalf("actor = %q, want %q", rec.Body.String(), tt.actor)
			}
		})
	}
}

func TestMiddlewareDisabledUsesHeader(t *testing.T) {
	h := NewManager("", 0).Middleware(actorEcho())
	req := httptest.NewRequest(http.MethodPost, "/api/broadcasts", nil)
	req.Header.Set(OperatorHeader, "desk-2")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Body.String() != "desk-2" {
		t.Fatalf("actor = %q, want desk-2", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/alerts", nil))
	if rec.Body.String() != events.SystemActor {
		t.Fatalf("actor = %q, want %q", rec.Body.String(), events.SystemActor)
	}
}
