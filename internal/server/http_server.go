// Package server constructs and runs the CollabHub HTTP service.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Server owns the hub, router, and HTTP surface. It is created at process
// start and torn down at shutdown; there is no package-level state.
type Server struct {
	cfg      *Config
	hub      *Hub
	router   *Router
	origins  *originPolicy
	upgrader websocket.Upgrader
	server   *http.Server
}

// NewServer wires a Server from the given configuration and starts the hub's
// event loop.
func NewServer(cfg *Config) *Server {
	hub := NewHub()
	go hub.Run()

	s := &Server{
		cfg:     cfg,
		hub:     hub,
		router:  NewRouter(hub),
		origins: newOriginPolicy(cfg.AllowedOrigins),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
	s.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the server's root HTTP handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Hub returns the server's hub, for shutdown coordination and tests.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for connections. It blocks until the server stops.
func (s *Server) Start() error {
	slog.Info("server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Serve starts the HTTP server on the given listener.
func (s *Server) Serve(l net.Listener) error {
	return s.server.Serve(l)
}

// Shutdown gracefully stops the HTTP server, then the hub. The HTTP server
// drains first so no new connections register while the hub unwinds.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)

	timeout := s.cfg.ShutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if herr := s.hub.Shutdown(timeout); err == nil {
		err = herr
	}

	return err
}
