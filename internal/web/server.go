// Package web provides the HTTP server for previewing, reviewing and
// committing roster imports.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/config"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/core"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/store"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/web/middleware"
)

// ImportStore persists committed imports. *store.Store implements it.
type ImportStore interface {
	SaveImport(ctx context.Context, id uuid.UUID, res *core.Result) error
	GetImport(ctx context.Context, id uuid.UUID) (*store.ImportDetail, error)
	ListImports(ctx context.Context, limit int) ([]store.ImportRecord, error)
	DeleteImport(ctx context.Context, id uuid.UUID) error
}

// Server is the HTTP server for roster imports.
type Server struct {
	pipeline *core.Pipeline
	limiter  *core.RunLimiter
	store    ImportStore
	previews *previewCache
	cfg      *config.Config

	router      *chi.Mux
	server      *http.Server
	rate        *middleware.RateLimiter
	stopCleanup context.CancelFunc
}

// NewServer creates a server. st may be nil, in which case commits are
// refused and stored imports cannot be listed.
func NewServer(pipeline *core.Pipeline, limiter *core.RunLimiter, st ImportStore, cfg *config.Config) *Server {
	s := &Server{
		pipeline: pipeline,
		limiter:  limiter,
		store:    st,
		previews: newPreviewCache(cfg.Import.PreviewCacheSize),
		cfg:      cfg,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger("/healthz"))
	s.router.Use(chimw.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	}
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		s.rate = middleware.NewRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(s.rate.Middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	// Pages
	s.router.Get("/", s.handleIndex)
	s.router.Post("/imports", s.handlePreviewPage)
	s.router.Get("/imports/{id}", s.handleReviewPage)
	s.router.Post("/imports/{id}/commit", s.handleCommitPage)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/profiles", s.handleListProfiles)
		r.Get("/profiles/{name}", s.handleGetProfile)

		r.Post("/imports/preview", s.handlePreview)
		r.Get("/imports", s.handleListImports)
		r.Get("/imports/{id}", s.handleGetImport)
		r.Group(func(r chi.Router) {
			r.Use(middleware.APIKeyAuth(s.cfg.Security.RequireAPIKey, s.cfg.Security.APIKeys))
			r.Post("/imports/{id}/commit", s.handleCommit)
			r.Delete("/imports/{id}", s.handleDeleteImport)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	if s.rate != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopCleanup = cancel
		go s.rate.Cleanup(ctx)
	}

	slog.Info("server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stopCleanup != nil {
		s.stopCleanup()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if enableCSP {
				// Review pages carry their stylesheet inline and load nothing else.
				h.Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON encodes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
