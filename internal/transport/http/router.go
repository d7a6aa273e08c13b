package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	loaderrors "pitloader/internal/errors"
	"pitloader/internal/middleware"
)

// NewRouter builds the ops router: health, readiness, version and, when
// metrics is non-nil, the Prometheus scrape endpoint.
func NewRouter(health *HealthHandler, metrics http.Handler, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.NotFound(loaderrors.NotFound)
	r.MethodNotAllowed(loaderrors.MethodNotAllowed)

	r.Group(func(r chi.Router) {
		r.Use(middleware.StructuredLogger(logger))
		r.Use(middleware.Recoverer(logger))

		r.Get("/healthz", health.HealthCheck)
		r.Get("/readyz", health.ReadinessCheck)
		r.Get("/version", health.Version)
	})

	// Outside the logging group so scrapes stay quiet
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	return r
}

// Server runs the ops router until shut down
type Server struct {
	srv             *http.Server
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// NewServer creates a server for handler on addr
func NewServer(addr string, handler http.Handler, readTimeout, shutdownTimeout time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: readTimeout,
			ReadTimeout:       readTimeout,
		},
		logger:          logger,
		shutdownTimeout: shutdownTimeout,
	}
}

// Start binds the listener and serves in the background. It returns the
// bound address, which differs from the configured one for ":0".
func (s *Server) Start(ctx context.Context) (string, error) {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.ErrorContext(ctx, "Ops server error", slog.String("error", err.Error()))
		}
	}()

	addr := ln.Addr().String()
	s.logger.InfoContext(ctx, "Ops server started", slog.String("address", addr))
	return addr, nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.logger.InfoContext(ctx, "Ops server stopped")
	return nil
}
