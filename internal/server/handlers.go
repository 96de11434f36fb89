// Package server exposes the HTTP handlers: the WebSocket upgrade endpoint
// and the health probe.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
)

// handleWebSocket upgrades the HTTP connection and hands the resulting
// client to the hub, which launches its read/write pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, s.hub, s.router, s.cfg, r.RemoteAddr)
	s.hub.register <- client
}

// handleHealth responds with a plain text message indicating the server is up.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "CollabHub server is running!")
}
