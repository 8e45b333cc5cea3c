package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/opensource-finance/fdrates/internal/catalog"
	"github.com/opensource-finance/fdrates/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server. bus and stats may be nil; without a
// bus POST /rates answers 503.
func NewServer(cfg domain.ServerConfig, reports *catalog.Service, bus domain.EventBus, stats StatsSource, analysis domain.AnalysisConfig, version string) *Server {
	handler := NewHandler(reports, bus, stats, analysis, version)
	router := chi.NewRouter()

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader, TraceIDHeader},
		ExposedHeaders: []string{RequestIDHeader, TraceIDHeader},
		MaxAge:         86400,
	}))
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Route("/rates", func(r chi.Router) {
		r.Get("/", handler.ListRates)
		r.Post("/", handler.IngestRates)
		r.Get("/{id}", handler.GetRate)
		r.Delete("/{id}", handler.DeleteRate)
	})

	router.Get("/summary", handler.Summary)
	router.Get("/analysis/terms", handler.Terms)
	router.Get("/analyze", handler.Analyze)
	router.Post("/analyze", handler.Analyze)
	router.Get("/top-banks", handler.TopBanks)
	router.Get("/banks/leaderboard", handler.Leaderboard)
	router.Get("/filters", handler.Filters)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
