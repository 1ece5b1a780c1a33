// Package api provides the HTTP API server and handlers for PromptVault.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/promptvault/promptvault-server/internal/metrics"
	"github.com/promptvault/promptvault-server/internal/service"
	"github.com/promptvault/promptvault-server/internal/sse"
	"github.com/promptvault/promptvault-server/internal/store"
)

// Config holds the HTTP-level settings of the server.
type Config struct {
	CORSOrigins []string
	// Heartbeat is the SSE keep-alive interval.
	Heartbeat time.Duration
	// Retry governs resubscription for streaming clients.
	Retry service.RetryPolicy

	AuthPerSecond float64
	AuthBurst     int
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	docs            *store.Documents
	feed            *sse.Manager
	services        *Services
	metrics         *metrics.Collector
	cfg             Config
	router          *chi.Mux
	api             huma.API
	logger          *slog.Logger
	authRateLimiter *RateLimiter
}

// NewServer creates a new HTTP server with all routes configured.
// collector may be nil.
func NewServer(docs *store.Documents, feed *sse.Manager, services *Services, collector *metrics.Collector, cfg Config, logger *slog.Logger) *Server {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	if cfg.AuthPerSecond <= 0 {
		cfg.AuthPerSecond = 1
	}
	if cfg.AuthBurst <= 0 {
		cfg.AuthBurst = 10
	}

	s := &Server{
		docs:            docs,
		feed:            feed,
		services:        services,
		metrics:         collector,
		cfg:             cfg,
		router:          chi.NewRouter(),
		logger:          logger,
		authRateLimiter: NewRateLimiter(cfg.AuthPerSecond, cfg.AuthBurst),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API exposes the huma API, mainly for OpenAPI generation.
func (s *Server) API() huma.API {
	return s.api
}

// Close releases background resources.
func (s *Server) Close() {
	s.authRateLimiter.Stop()
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
	}

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	s.router.Use(authMiddleware(s.services.Auth))
}

func (s *Server) setupRoutes() {
	humaConfig := huma.DefaultConfig("PromptVault API", "1.0.0")
	humaConfig.Info.Description = "Owner-scoped prompt storage with live snapshots"
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerAuthRoutes()
	s.registerUserRoutes()
	s.registerPromptRoutes()
	s.registerSearchRoutes()

	// SSE and metrics are plain handlers; huma has no streaming response type.
	s.router.With(RateLimitMiddleware(s.authRateLimiter, s.logger)).
		Get("/api/v1/prompts/stream", s.handlePromptStream)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}
}
