package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

var defaultOpenPaths = []string{"/healthz", "/metrics"}

// Middleware rejects requests without a valid bearer token and stores the caller's claims on the context.
type Middleware struct {
	cfg  Config
	open map[string]struct{}
}

// NewMiddleware builds a Middleware. Paths in openPaths, /healthz, /metrics and CORS preflights skip authentication.
func NewMiddleware(cfg Config, openPaths ...string) *Middleware {
	open := make(map[string]struct{}, len(defaultOpenPaths)+len(openPaths))
	for _, p := range defaultOpenPaths {
		open[p] = struct{}{}
	}
	for _, p := range openPaths {
		open[p] = struct{}{}
	}
	return &Middleware{cfg: cfg, open: open}
}

// Wrap wraps an http.Handler with authentication.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := Parse(bearerToken(r), m.cfg)
		if err != nil {
			unauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func (m *Middleware) skip(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	_, ok := m.open[r.URL.Path]
	return ok
}

// bearerToken returns the credentials of a Bearer Authorization header, or "" when there is none.
// A header with another scheme yields a value Parse will reject.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return header
	}
	return token
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="wellness"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"type":    "unauthorized",
		"detail":  err.Error(),
	})
}
