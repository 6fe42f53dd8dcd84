package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/moolen/tripwire/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves /metrics for a registry. It implements lifecycle.Component.
type Server struct {
	addr     string
	gatherer prometheus.Gatherer
	logger   *logging.Logger

	server   *http.Server
	listener net.Listener
}

// NewServer creates a metrics server listening on addr.
func NewServer(addr string, gatherer prometheus.Gatherer) *Server {
	return &Server{
		addr:     addr,
		gatherer: gatherer,
		logger:   logging.GetLogger("metrics.server"),
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	if s.server != nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.ErrorWithErr("metrics server stopped", err)
		}
	}()

	s.logger.Info("Serving metrics on %s", listener.Addr())
	return nil
}

// Stop shuts the server down within the context deadline.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.server = nil
	return err
}

// Name implements lifecycle.Component.
func (s *Server) Name() string {
	return "Metrics Server"
}

// Addr returns the bound address once started, or the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
