// Package observability provides health checks and metrics for the dedupe engine.
//
// The Server exposes:
//   - /healthz: Liveness probe (always returns OK)
//   - /readyz: Readiness probe (checks database connectivity)
//   - /metrics: Prometheus metrics endpoint
package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Pinger is satisfied by anything that can check connectivity to its
// backing store, used by the /readyz probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server hosts the liveness/readiness/metrics endpoints on their own port,
// independent of the main claims API router.
type Server struct {
	pinger Pinger
	port   int
	logger *zerolog.Logger
}

// NewServer creates a health/metrics server bound to the given pinger and port.
func NewServer(pinger Pinger, port int, logger *zerolog.Logger) *Server {
	return &Server{pinger: pinger, port: port, logger: logger}
}

// Start runs the server until ctx is cancelled, then shuts it down gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "OK")
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.pinger == nil {
			w.WriteHeader(http.StatusOK)
			_, _ = fmt.Fprint(w, "OK")

			return
		}

		if err := s.pinger.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "DB error: %v", err)

			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "OK")
	})

	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)

		defer cancel()

		//nolint:errcheck,contextcheck // shutdown in signal handler is best-effort, non-inherited context intentional
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Int("port", s.port).Msg("health check server starting")

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}
