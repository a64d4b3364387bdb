package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// DefaultPath is where metrics are served when no path is configured.
const DefaultPath = "/metrics"

// Server serves a collector's registry over HTTP.
type Server struct {
	addr      string
	path      string
	collector *Collector
	logger    *logrus.Logger

	addrCh chan net.Addr
}

// NewServer creates a metrics server listening on addr.
func NewServer(addr, path string, collector *Collector, logger *logrus.Logger) *Server {
	if path == "" {
		path = DefaultPath
	}
	return &Server{
		addr:      addr,
		path:      path,
		collector: collector,
		logger:    logger,
		addrCh:    make(chan net.Addr, 1),
	}
}

// Handler returns the HTTP handler for the metrics endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(s.collector.Registry(), promhttp.HandlerOpts{}))
	return mux
}

// Addr blocks until the server is listening and returns its address.
func (s *Server) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case addr := <-s.addrCh:
		s.addrCh <- addr
		return addr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start serves until ctx is cancelled. It returns nil after a clean
// shutdown.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.addrCh <- listener.Addr()

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.WithFields(logrus.Fields{
		"addr": listener.Addr().String(),
		"path": s.path,
	}).Info("Starting metrics server")

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown error: %w", err)
		}
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	}
}
