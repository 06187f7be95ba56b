// Package api exposes a small status HTTP surface for a running pipeline:
// liveness, per-source progress, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/dolma-harvest/internal/pipeline"
)

// ProgressReporter supplies per-source completion snapshots.
type ProgressReporter interface {
	Progress() map[string]pipeline.SourceProgress
}

// Server serves the status endpoints.
type Server struct {
	router   chi.Router
	reporter ProgressReporter
	logger   *zap.Logger
}

// NewServer constructs a Server with its routes.
func NewServer(reporter ProgressReporter, logger *zap.Logger) *Server {
	s := &Server{
		reporter: reporter,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Get("/healthz", s.healthz)
	r.Get("/progress", s.progress)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) progress(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.reporter.Progress())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

// Serve runs the status server until ctx is canceled, then shuts it down
// with a short grace period. Serve errors other than a clean shutdown are
// logged, never fatal: the status surface must not take down a run.
func (s *Server) Serve(ctx context.Context, port int) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("status server shutdown failed", zap.Error(err))
		}
	}()

	s.logger.Info("status server listening", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Warn("status server stopped", zap.Error(err))
	}
}
