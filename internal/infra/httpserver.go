package infra

import (
	"context"
	"net/http"
	"time"
)

// HTTPServer wraps http.Server to provide graceful startup and shutdown helpers.
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer creates a configured HTTP server instance. The write timeout
// must leave room for a slow upstream submit call.
func NewHTTPServer(cfg *Config, handler http.Handler) *HTTPServer {
	writeTimeout := cfg.HTTPWriteTimeout
	if floor := cfg.BFLTimeout + 5*time.Second; writeTimeout < floor {
		writeTimeout = floor
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}

	return &HTTPServer{server: srv}
}

// Addr reports the listen address.
func (s *HTTPServer) Addr() string {
	if s.server == nil {
		return ""
	}
	return s.server.Addr
}

// Start runs the HTTP server in the current goroutine. It returns nil after a
// graceful Shutdown.
func (s *HTTPServer) Start() error {
	if s.server == nil {
		return nil
	}
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
