package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/brettbedarf/memfs/internal/util"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the global registry at /metrics
type Server struct {
	server       *http.Server
	shutdownOnce sync.Once
}

// NewServer creates a stopped metrics server for addr (host:port)
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	return &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Handler serves the global registry, or 503 while metrics are disabled
func Handler() http.Handler {
	logger := util.GetLogger("metrics.Handler")

	if !IsEnabled() {
		logger.Debug().Msg("Metrics collection disabled")
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "Metrics collection is disabled\n")
		})
	}
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{
		ErrorLog:          util.NewLogLogger("promhttp", util.ErrorLevel),
		EnableOpenMetrics: true,
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	logger := util.GetLogger("metrics.Server")

	errChan := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", s.server.Addr).Msg("Metrics server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// ctx is already done; give shutdown its own deadline
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the server down; safe to call more than once
func (s *Server) Stop(ctx context.Context) error {
	logger := util.GetLogger("metrics.Server")

	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("metrics server shutdown error: %w", err)
			logger.Error().Err(err).Msg("Metrics server shutdown error")
			return
		}
		logger.Info().Msg("Metrics server stopped")
	})
	return shutdownErr
}
