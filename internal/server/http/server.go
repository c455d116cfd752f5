// Package httpserver provides the HTTP REST API server for the evidence service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/researchgpt/evidence-service/internal/database"
	"github.com/researchgpt/evidence-service/internal/eventlog"
	"github.com/researchgpt/evidence-service/internal/repository"
	"github.com/researchgpt/evidence-service/internal/scout"
)

// JobDriver starts the discovery job for a run. Satisfied by *scout.Scout.
type JobDriver interface {
	Run(ctx context.Context, runID uuid.UUID, req scout.DiscoveryRequest) error
}

// Server is the HTTP REST API server.
type Server struct {
	router            chi.Router
	httpServer        *http.Server
	runs              repository.RunRepository
	artifacts         repository.ArtifactRepository
	eventLog          *eventlog.Log
	scout             JobDriver
	db                *database.DB
	validate          *validator.Validate
	heartbeatInterval time.Duration
	logger            zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// HeartbeatInterval is how often an idle SSE stream receives a
	// comment frame. Defaults to sseHeartbeatInterval.
	HeartbeatInterval time.Duration
}

// NewServer creates a new HTTP server with all dependencies.
func NewServer(
	cfg Config,
	runs repository.RunRepository,
	artifacts repository.ArtifactRepository,
	eventLog *eventlog.Log,
	jobDriver JobDriver,
	db *database.DB,
	logger zerolog.Logger,
) *Server {
	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = sseHeartbeatInterval
	}

	s := &Server{
		runs:              runs,
		artifacts:         artifacts,
		eventLog:          eventLog,
		scout:             jobDriver,
		db:                db,
		validate:          validator.New(),
		heartbeatInterval: heartbeat,
		logger:            logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)

	// Health endpoints
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1/runs", func(r chi.Router) {
		r.Post("/", s.createRun)
		r.Get("/", s.listRuns)

		r.Route("/{runID}", func(r chi.Router) {
			r.Get("/", s.getRun)
			r.Post("/discover", s.startDiscovery)
			r.Get("/events", s.listEvents)
			r.Get("/stream", s.streamEvents)
			r.Post("/artifacts", s.putArtifact)
			r.Get("/artifacts", s.getArtifacts)
		})
	})

	return r
}

// Router exposes the built router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status == "healthy" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler returns readiness status.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
