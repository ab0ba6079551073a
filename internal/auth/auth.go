// Package auth identifies operators from HS256 bearer tokens.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"edgegrid/internal/events"
)

const (
	RoleOperator = "operator"
	RoleViewer   = "viewer"

	issuer = "edgegrid"

	// OperatorHeader names the acting operator when token auth is disabled.
	OperatorHeader = "X-Operator"
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager returns a manager; an empty secret disables token checks.
func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (m *Manager) Enabled() bool { return len(m.secret) > 0 }

func (m *Manager) Issue(subject, role string) (string, error) {
	if !m.Enabled() {
		return "", errors.New("auth disabled: no jwt secret configured")
	}
	if subject == "" {
		return "", errors.New("token subject required")
	}
	if role != RoleOperator && role != RoleViewer {
		return "", fmt.Errorf("unknown role %q", role)
	}
	now := m.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *Manager) Validate(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// Middleware attaches the caller as event actor. With auth enabled every
// request needs a valid token and mutating methods need the operator role.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			ctx := events.WithActor(r.Context(), strings.TrimSpace(r.Header.Get(OperatorHeader)))
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		token := bearer(r)
		if token == "" {
			deny(w, http.StatusUnauthorized, "unauthorized", "bearer token required")
			return
		}
		claims, err := m.Validate(token)
		if err != nil {
			deny(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}
		if mutating(r.Method) && claims.Role != RoleOperator {
			deny(w, http.StatusForbidden, "forbidden", "operator role required")
			return
		}
		next.ServeHTTP(w, r.WithContext(events.WithActor(r.Context(), claims.Subject)))
	})
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if scheme, tok, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(tok)
	}
	// Browsers cannot set headers on websocket upgrades.
	if r.Method == http.MethodGet {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

func mutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

func deny(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": msg})
}
