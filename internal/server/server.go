package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vpntrail/vpntrail/internal/health"
	"github.com/vpntrail/vpntrail/internal/logging"
)

// Server exposes metrics and health endpoints on one listener. The
// daemon is small enough that a second port buys nothing.
type Server struct {
	httpServer *http.Server
	logger     *logging.Logger
}

// Config holds server configuration
type Config struct {
	Address         string
	MetricsPath     string
	MetricsRegistry *prometheus.Registry
	HealthChecker   *health.Checker
	Logger          *logging.Logger
}

// New creates a new server
func New(cfg Config) *Server {
	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	mux := http.NewServeMux()
	if cfg.MetricsRegistry != nil {
		mux.Handle(metricsPath, promhttp.HandlerFor(
			cfg.MetricsRegistry,
			promhttp.HandlerOpts{
				EnableOpenMetrics: true,
			},
		))
	}
	if cfg.HealthChecker != nil {
		mux.HandleFunc("/health", cfg.HealthChecker.HTTPHandler())
		mux.HandleFunc("/health/live", cfg.HealthChecker.LivenessHandler())
		mux.HandleFunc("/health/ready", cfg.HealthChecker.ReadinessHandler())
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Address,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: cfg.Logger.WithComponent("server"),
	}
}

// Start starts the server and reports immediate startup errors.
func (s *Server) Start() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info().
			Str("address", s.httpServer.Addr).
			Msg("Starting metrics server")

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down metrics server")
	return s.httpServer.Shutdown(ctx)
}
