// ABOUTME: foodlogd HTTP surface: routing, middleware and JSON helpers.
// ABOUTME: Serves a token endpoint and PostgREST-style per-user tables.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
)

// Server bundles state for foodlogd handlers.
type Server struct {
	cfg          Config
	repo         Store
	tokens       *TokenIssuer
	validate     *validator.Validate
	limiters     *rateLimiterStore // Per-user rate limiting for table endpoints
	authLimiters *rateLimiterStore // Per-IP rate limiting for auth endpoints
	now          func() time.Time
}

// NewServer wires handlers to a store.
func NewServer(cfg Config, repo Store) *Server {
	return &Server{
		cfg:          cfg,
		repo:         repo,
		tokens:       NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL),
		validate:     validator.New(),
		limiters:     newRateLimiterStore(DefaultRateLimitConfig()),
		authLimiters: newRateLimiterStore(AuthRateLimitConfig()),
		now:          time.Now,
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/auth/v1", func(auth chi.Router) {
		auth.Use(s.withAPIKey, s.withIPRateLimit)
		auth.Post("/signup", s.handleSignup)
		auth.Post("/token", s.handleToken)
	})

	r.Route("/rest/v1", func(rest chi.Router) {
		rest.Use(s.withAPIKey, s.withAuth)
		rest.Get("/{table}", s.handleSelect)
		rest.Post("/{table}", s.handleInsert)
		rest.Patch("/{table}", s.handleUpdate)
		rest.Delete("/{table}", s.handleDelete)
	})

	return r
}

// registerRoutes mounts the foodlogd surface on a PocketBase router.
func (s *Server) registerRoutes(r *router.Router[*core.RequestEvent]) {
	h := wrapHandler(s.routes().ServeHTTP)
	r.GET("/healthz", h)
	r.Any("/auth/v1/{path...}", h)
	r.Any("/rest/v1/{path...}", h)
}

// wrapHandler converts a standard http.HandlerFunc to PocketBase's handler signature.
func wrapHandler(h http.HandlerFunc) func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		h(e.Response, e.Request)
		return nil
	}
}

// withAPIKey rejects requests without the configured project key.
func (s *Server) withAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && r.Header.Get("apikey") != s.cfg.APIKey {
			fail(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withIPRateLimit applies per-IP rate limiting for auth endpoints.
func (s *Server) withIPRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authLimiters != nil {
			limiter := s.authLimiters.get(clientIP(r, s.cfg.TrustedProxy))
			if !limiter.Allow() {
				fail(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type ctxUserIDKey struct{}

// withAuth validates the bearer token and stores the user id in the context.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.authUser(r)
		if err != nil {
			fail(w, http.StatusUnauthorized, err.Error())
			return
		}

		if s.limiters != nil {
			if !s.limiters.get(userID).Allow() {
				fail(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}

		ctx := context.WithValue(r.Context(), ctxUserIDKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) authUser(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" || !strings.HasPrefix(h, "Bearer ") {
		return "", errors.New("missing bearer token")
	}
	raw := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	if raw == "" {
		return "", errors.New("missing bearer token")
	}
	claims, err := s.tokens.Validate(raw)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", errors.New("JWT expired")
		}
		return "", errors.New("invalid token")
	}
	return claims.Subject, nil
}

func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxUserIDKey{}).(string)
	return id
}

// helpers

func ok(w http.ResponseWriter, v any) {
	write(w, http.StatusOK, v)
}

func write(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func fail(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]any{"error": msg}); err != nil {
		log.Printf("write error response: %v", err)
	}
}
