// Package dash exposes the relay's read-only observability surface: the
// bounded task history, the static rule list, health, and Prometheus metrics.
package dash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-mail-relay/pkg/history"
	"github.com/illmade-knight/go-mail-relay/pkg/rules"
)

// Config holds the configuration for the dashboard server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
}

// Server serves the dashboard API. All endpoints are read-only snapshots;
// nothing here mutates pipeline state.
type Server struct {
	tasks      *history.TaskLog
	matcher    *rules.Matcher
	logger     zerolog.Logger
	httpServer *http.Server
	actualAddr string
	mu         sync.RWMutex
}

// NewServer creates a dashboard Server.
func NewServer(cfg Config, tasks *history.TaskLog, matcher *rules.Matcher, logger zerolog.Logger) (*Server, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("dashboard listen address cannot be empty")
	}
	if tasks == nil {
		return nil, fmt.Errorf("task log cannot be nil")
	}
	if matcher == nil {
		return nil, fmt.Errorf("rule matcher cannot be nil")
	}

	s := &Server{
		tasks:   tasks,
		matcher: matcher,
		logger:  logger.With().Str("component", "DashServer").Logger(),
	}
	s.httpServer = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.setupRoutes(),
	}
	return s, nil
}

// setupRoutes configures all HTTP routes and middleware.
func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)

	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/tasks", s.handleTasks).Methods(http.MethodGet)
	v1.HandleFunc("/rules", s.handleRules).Methods(http.MethodGet)

	return router
}

// Start initiates the HTTP server in a background goroutine.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}

	s.mu.Lock()
	s.actualAddr = listener.Addr().String()
	s.mu.Unlock()

	s.logger.Info().Str("address", s.actualAddr).Msg("Dashboard server starting to listen.")
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Dashboard server failed.")
		}
	}()
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down dashboard server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("dashboard server shutdown: %w", err)
	}
	s.logger.Info().Msg("Dashboard server stopped.")
	return nil
}

// Addr returns the actual listen address once started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.actualAddr
}

// Handler returns the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleTasks(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.tasks.Snapshot())
}

func (s *Server) handleRules(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.matcher.Rules())
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response.")
	}
}

// loggingMiddleware logs each request at debug level.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(started)).
			Msg("Handled request.")
	})
}
