package observability

import (
	"context"
	"net/http"
	"time"
)

// Server exposes /metrics and /healthz.
type Server struct {
	srv *http.Server
}

// NewServer builds the observability HTTP server on addr.
func NewServer(addr string, checker *HealthChecker) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler())
	if checker != nil {
		mux.Handle("/healthz", checker.Handler())
	}

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Start serves until Shutdown. It returns http.ErrServerClosed on a clean
// stop, like the underlying server.
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
