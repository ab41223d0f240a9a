// Package api is the operations API for the lead router: rule management,
// flag and cap visibility, unassigned-lead inspection, and a manual re-drive
// of the assignment orchestrator. It is an internal tool surface, not the
// public lead intake.
package api

import (
	"context"
	"net/http"
	"time"
)

// Server wraps the HTTP server lifecycle around the router.
type Server struct {
	handler http.Handler
	server  *http.Server
}

// NewServer creates an API server over the configured routes.
func NewServer(h *Handlers, apiKey string) *Server {
	return &Server{handler: SetupRoutes(h, apiKey)}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the routed handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}
