// Package httpapi wires the content repository, chat orchestrator, and MCP
// streamable-HTTP transport onto the route table from spec.md §6, adapted
// from the teacher's sync-service router (internal/httpapi/router.go) —
// same chi middleware stack and handler-method-on-Server shape, rewritten
// for this spec's content/chat/MCP surface instead of the teacher's
// notes/tasks/comments sync endpoints.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/spencerjireh/portfoliobridge/internal/auth"
	"github.com/spencerjireh/portfoliobridge/internal/cache"
	"github.com/spencerjireh/portfoliobridge/internal/chatorch"
	"github.com/spencerjireh/portfoliobridge/internal/content"
	"github.com/spencerjireh/portfoliobridge/internal/mcpserver"
)

// Server holds every dependency the route handlers need.
type Server struct {
	DB          *pgxpool.Pool
	Content     content.Repository
	Chat        *chatorch.Orchestrator
	MCP         *mcpserver.HTTPTransport
	Cache       cache.Cache
	AdminSecret string
	DevMode     bool
	CORSOrigins []string
}

// Routes builds the full router from spec.md §6's external interface table.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	if len(s.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: s.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "X-Admin-Key", "Authorization", "Idempotency-Key", "Mcp-Session-Id"},
			ExposedHeaders: []string{"X-Request-Id", "Retry-After", "ETag", "Mcp-Session-Id"},
		}).Handler)
	}

	r.Get("/api/health", s.HealthLive)
	r.Get("/api/health/live", s.HealthLive)
	r.Get("/ready", s.HealthReady)

	r.Route("/api/v1/content", func(r chi.Router) {
		r.Get("/", s.ListPublicContent)
		r.Get("/bundle", s.GetBundle)
		r.Get("/{type}/{slug}", s.GetPublicContentItem)
	})

	r.Post("/api/v1/chat", s.PostChat)

	r.Route("/api/v1/admin/content", func(r chi.Router) {
		r.Use(auth.Middleware(s.AdminSecret, s.DevMode))

		r.Get("/", s.AdminListContent)
		r.Post("/", s.AdminCreateContent)
		r.Put("/{id}", s.AdminUpdateContent)
		r.Delete("/{id}", s.AdminDeleteContent)
		r.Get("/{id}/history", s.AdminGetHistory)
		r.Post("/{id}/restore", s.AdminRestoreVersion)
	})

	r.Route("/api/v1/admin/mcp-token", func(r chi.Router) {
		r.Use(auth.Middleware(s.AdminSecret, s.DevMode))
		r.Post("/", s.IssueMCPToken)
	})

	r.Handle("/mcp", s.MCP)
	r.Handle("/mcp/*", s.MCP)

	log.Info().Msg("httpapi: routes registered")
	return r
}
