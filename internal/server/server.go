// Package server provides the HTTP server and routing for sharpescan.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/sharpescan/internal/database"
	"github.com/aristath/sharpescan/internal/events"
	"github.com/aristath/sharpescan/internal/modules/runs"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	DataDir   string
	Runs      *runs.Service
	EventBus  *events.Bus
	Metrics   http.Handler            // Prometheus handler, optional
	Databases map[string]*database.DB // For system stats
	Quota     QuotaReporter           // Market data API quota, optional
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	port           int
	runHandlers    *RunHandlers
	streamHandler  *RunStreamHandler
	systemHandlers *SystemHandlers
	metrics        http.Handler
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		port:           cfg.Port,
		runHandlers:    NewRunHandlers(cfg.Runs, cfg.Log),
		streamHandler:  NewRunStreamHandler(cfg.EventBus, cfg.Runs.Repository(), cfg.Log),
		systemHandlers: NewSystemHandlers(cfg.DataDir, cfg.Databases, cfg.Quota, cfg.Log),
		metrics:        cfg.Metrics,
	}

	s.setupMiddleware()
	s.setupRoutes(cfg.DevMode)

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: run streams stay open for the whole search.
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(devMode bool) {
	s.router.Get("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics)
	}

	s.router.Route("/api", func(r chi.Router) {
		// Streams outlive the request timeout.
		r.Get("/runs/{id}/stream", s.streamHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			if !devMode {
				r.Use(middleware.Compress(5))
			}

			r.Get("/system", s.systemHandlers.HandleSystem)

			r.Route("/runs", func(r chi.Router) {
				r.Post("/", s.runHandlers.HandleCreate)
				r.Get("/", s.runHandlers.HandleList)
				r.Get("/{id}", s.runHandlers.HandleGet)
				r.Delete("/{id}", s.runHandlers.HandleDelete)
				r.Post("/{id}/cancel", s.runHandlers.HandleCancel)
				r.Get("/{id}/results", s.runHandlers.HandleResults)
				r.Get("/{id}/results.csv", s.runHandlers.HandleResultsCSV)
			})
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
