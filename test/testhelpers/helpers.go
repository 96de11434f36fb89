// Package testhelpers provides shared utilities for the CollabHub
// integration tests: spinning up a server, dialing WebSocket connections,
// and exchanging protocol events.
package testhelpers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Hucinty/collabhub/internal/server"
	"github.com/gorilla/websocket"
)

// TestOrigin is the origin the test server allows and clients present.
const TestOrigin = "http://localhost:3000"

// StartTestServer starts a CollabHub server on an httptest listener and
// registers cleanup for both the listener and the hub.
func StartTestServer(t *testing.T) (*httptest.Server, *server.Server) {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{TestOrigin}

	srv := server.NewServer(cfg)
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return ts, srv
}

// WebSocketURL converts an httptest server URL to its /ws endpoint.
func WebSocketURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// Dial opens a WebSocket connection to the test server with the allowed
// origin and registers cleanup.
func Dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, err := DialWithOrigin(url, TestOrigin)
	if err != nil {
		t.Fatalf("failed to dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// DialWithOrigin opens a WebSocket connection presenting the given origin.
func DialWithOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendEvent writes one protocol envelope to the connection.
func SendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("failed to marshal %s payload: %v", event, err)
	}
	if err := conn.WriteJSON(server.Envelope{Event: event, Data: raw}); err != nil {
		t.Fatalf("failed to send %s event: %v", event, err)
	}
}

// ReadEvent reads the next protocol envelope from the connection, failing the
// test if none arrives within the timeout.
func ReadEvent(t *testing.T, conn *websocket.Conn) server.Envelope {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	var env server.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	return env
}

// ReadUsers reads the next event and decodes it as a room-users snapshot.
func ReadUsers(t *testing.T, conn *websocket.Conn) []server.RoomUser {
	t.Helper()

	env := ReadEvent(t, conn)
	if env.Event != server.EventRoomUsers {
		t.Fatalf("expected %s event, got %s", server.EventRoomUsers, env.Event)
	}
	var users []server.RoomUser
	if err := json.Unmarshal(env.Data, &users); err != nil {
		t.Fatalf("failed to decode room-users payload: %v", err)
	}
	return users
}

// ReadMessage reads the next event and decodes it as a chat message.
func ReadMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	env := ReadEvent(t, conn)
	if env.Event != server.EventMessage {
		t.Fatalf("expected %s event, got %s", server.EventMessage, env.Event)
	}
	var msg map[string]any
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		t.Fatalf("failed to decode message payload: %v", err)
	}
	return msg
}

// CloseWebSocket performs a clean close handshake on the connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
