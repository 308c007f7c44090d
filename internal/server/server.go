// Package server provides the HTTP API for Kumitate.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kumitate/internal/config"
	"github.com/hyperjump/kumitate/internal/orchestrator"
	"github.com/hyperjump/kumitate/internal/registry"
)

// Server is the HTTP server for the Kumitate API.
type Server struct {
	registry registry.Registry
	orch     *orchestrator.Orchestrator
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	reg registry.Registry,
	orch *orchestrator.Orchestrator,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		registry: reg,
		orch:     orch,
		config:   cfg,
		logger:   logger,
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Post("/api/v1/compile", s.handleCompile)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/api/v1/definitions", s.handleListDefinitions)
	r.Post("/api/v1/definitions", s.handleCreateDefinition)
	r.Get("/api/v1/definitions/{name}", s.handleGetDefinition)
	r.Put("/api/v1/definitions/{name}", s.handleUpdateDefinition)
	r.Patch("/api/v1/definitions/{name}/enabled", s.handleSetEnabled)
	r.Delete("/api/v1/definitions/{name}", s.handleDeleteDefinition)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
