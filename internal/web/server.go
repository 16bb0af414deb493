// Package web serves the JSON API.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/copwatch-uk/copwatch/internal/config"
	"github.com/copwatch-uk/copwatch/internal/web/handlers"
	"github.com/copwatch-uk/copwatch/internal/web/middleware"
)

// Server is the HTTP API server.
type Server struct {
	config     *config.WebConfig
	router     *chi.Mux
	httpServer *http.Server

	media    *handlers.MediaHandler
	officers *handlers.OfficerHandler
	merges   *handlers.MergeHandler
}

// NewServer creates the API server and wires up its routes.
func NewServer(cfg *config.WebConfig, media *handlers.MediaHandler, officers *handlers.OfficerHandler, merges *handlers.MergeHandler) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:   cfg,
		router:   r,
		media:    media,
		officers: officers,
		merges:   merges,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(5 * time.Minute))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Listen,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // uploads can be large
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("Shutting down API server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
