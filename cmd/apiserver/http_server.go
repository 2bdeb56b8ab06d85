package main

import (
	"context"
	"net/http"

	"github.com/watchkeeper/watchkeeper/internal/config"
)

// HTTPServer wraps the standard library server with the timeouts and
// graceful-shutdown behavior the teacher's cmd/server package applies.
type HTTPServer struct {
	server *http.Server
}

func NewHTTPServer(handler http.Handler, cfg config.HTTPConfig) *HTTPServer {
	addr := cfg.Host + ":" + cfg.Port
	return &HTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
		},
	}
}

func (s *HTTPServer) Start() error {
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Addr reports the configured listen address, mainly for startup logging.
func (s *HTTPServer) Addr() string { return s.server.Addr }
