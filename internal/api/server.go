// Package api exposes the HTTP orchestration surface. The core pipeline
// never depends on this package; it is the outer collaborator described
// by the system contracts.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/NicolasKol/reforge/internal/config"
	"github.com/NicolasKol/reforge/internal/jobs"
	"github.com/NicolasKol/reforge/internal/logging"
	"github.com/NicolasKol/reforge/internal/pipeline"
)

// Server represents the HTTP API server
type Server struct {
	router   *http.ServeMux
	server   *http.Server
	addr     string
	logger   *logging.Logger
	pipeline *pipeline.Pipeline
	runner   *jobs.Runner
	store    *jobs.Store
}

// NewServer creates a new HTTP server instance
func NewServer(cfg config.ServerConfig, pl *pipeline.Pipeline, runner *jobs.Runner, store *jobs.Store, logger *logging.Logger) *Server {
	s := &Server{
		addr:     cfg.Addr,
		logger:   logger,
		pipeline: pl,
		runner:   runner,
		store:    store,
		router:   http.NewServeMux(),
	}

	s.registerRoutes()

	handler := s.applyMiddleware(s.router)
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", map[string]interface{}{
		"addr": s.addr,
	})
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server", nil)
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// applyMiddleware wraps the handler with middleware in the correct order
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	handler = RecoveryMiddleware(s.logger)(handler)
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware()(handler)
	return handler
}

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", s.handleHealth)

	s.router.HandleFunc("/submit-synthetic-build", s.handleSubmitBuild)
	s.router.HandleFunc("/run-dwarf-oracle", s.handleRunDwarfOracle)
	s.router.HandleFunc("/run-ts-oracle", s.handleRunTsOracle)
	s.router.HandleFunc("/run-join-dwarf-ts", s.handleRunJoinDwarfTs)
	s.router.HandleFunc("/run-reshape-decompile", s.handleRunReshapeDecompile)
	s.router.HandleFunc("/run-join-oracles-to-decompile", s.handleRunJoinDecompile)

	s.router.HandleFunc("/jobs", s.handleListJobs)
	s.router.HandleFunc("/jobs/", s.handleJobRoutes)
}
