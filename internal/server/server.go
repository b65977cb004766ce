// Package server exposes a storage backend over HTTP so that several qt
// clients can share one store.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/Tiliavir/quarter-tracker/internal/metrics"
	"github.com/Tiliavir/quarter-tracker/internal/storage"
)

// Server is the HTTP API server.
type Server struct {
	cfg     *Config
	backend storage.Backend
	logger  *slog.Logger
	tokens  *TokenService
	http    *http.Server
	metrics *metrics.Server
}

// New creates a server for backend. The backend stays owned by the caller.
func New(cfg *Config, backend storage.Backend, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if backend == nil {
		return nil, errors.New("storage backend is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		backend: backend,
		logger:  logger.With(slog.String("component", "server")),
	}
	if cfg.Auth.JWTSecret != "" {
		s.tokens = NewTokenService([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	}
	s.http = &http.Server{
		Addr:         cfg.Server.HTTPAddress,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.Server.MetricsAddress != "" {
		s.metrics = metrics.NewServer(cfg.Server.MetricsAddress, logger)
	}
	return s, nil
}

// Tokens returns the token service, or nil in single-user mode.
func (s *Server) Tokens() *TokenService {
	return s.tokens
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger(s.logger, s.cfg.Server.Verbose))
	r.Use(recordMetrics)

	h := &handler{backend: s.backend, srv: s}
	limiter := newUserLimiter(s.cfg.Server.RateLimitPerSecond, s.cfg.Server.RateLimitBurst)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authenticate(s.tokens, s.logger))
		r.Use(limiter.middleware)

		r.Route("/slots", func(r chi.Router) {
			r.Get("/", h.listSlots)
			r.Post("/", h.insertSlots)
			r.Delete("/", h.deleteSlots)
			r.Patch("/{id}", h.updateSlot)
		})
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", h.listProjects)
			r.Post("/", h.createProject)
			r.Put("/{id}", h.updateProject)
			r.Delete("/{id}", h.deleteProject)
		})
		r.Route("/settings", func(r chi.Router) {
			r.Get("/", h.getSettings)
			r.Post("/", h.createSettings)
			r.Patch("/{id}", h.updateSettings)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, &Error{Code: CodeNotFound, Message: "no such endpoint", Status: http.StatusNotFound})
	})
	return r
}

// Run serves the API, and metrics if configured, until ctx is canceled or a
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("HTTP API listening",
			slog.String("addr", s.cfg.Server.HTTPAddress),
			slog.Bool("auth", s.tokens != nil))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if s.metrics != nil {
		g.Go(s.metrics.Start)
	}

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down HTTP API server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		err := s.http.Shutdown(shutdownCtx)
		if s.metrics != nil {
			err = errors.Join(err, s.metrics.Shutdown(shutdownCtx))
		}
		return err
	})

	return g.Wait()
}
