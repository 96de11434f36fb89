// Package server manages individual WebSocket connections, handling read and
// write pumps, per-connection identity, and lifecycle control.
package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

// Client represents one live client connection. Its identity (ID and display
// name) is assigned once at connect time and never changes; the current room
// and closed flag are mutated only by the Hub, under the Hub's mutex.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	handler *Router
	addr    string

	id          string
	displayName string

	// room and closed are guarded by hub.mu.
	room   string
	closed bool

	limiter        *rate.Limiter
	maxMessageSize int64
}

// NewClient creates a Client for an upgraded connection, assigning it a fresh
// connection ID and a generated display name.
func NewClient(conn *websocket.Conn, hub *Hub, handler *Router, cfg *Config, addr string) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:           conn,
		send:           make(chan []byte, sendBufferSize),
		hub:            hub,
		handler:        handler,
		addr:           addr,
		id:             uuid.NewString(),
		displayName:    fmt.Sprintf("User-%d", rand.Intn(1000)),
		limiter:        newMessageLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		maxMessageSize: cfg.MaxMessageSize,
	}
}

// ID returns the server-assigned connection identifier.
func (c *Client) ID() string {
	return c.id
}

// DisplayName returns the generated display name assigned at connect time.
func (c *Client) DisplayName() string {
	return c.displayName
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Error("setting initial read deadline", "addr", c.addr, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			slog.Error("setting read deadline in pong handler", "addr", c.addr, "error", err)
		}
		return nil
	})
}

// logReadError classifies a read failure and logs it at the appropriate
// level. Every read error ends the pump; this only decides how it is reported.
func (c *Client) logReadError(err error) {
	if errors.Is(err, websocket.ErrReadLimit) {
		slog.Warn("message exceeded maximum size", "addr", c.addr, "max_bytes", c.maxMessageSize)
		return
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		slog.Info("client disconnected", "addr", c.addr, "reason", err)
		return
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		slog.Info("client connection closed", "addr", c.addr, "reason", err)
		return
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		slog.Warn("unexpected websocket error", "addr", c.addr, "error", err)
		return
	}

	slog.Warn("websocket read error", "addr", c.addr, "error", err)
}

// allowMessage checks the per-connection rate limit and reports whether the
// inbound message should be processed.
func (c *Client) allowMessage() bool {
	if c.limiter != nil && !c.limiter.Allow() {
		slog.Warn("rate limit exceeded; discarding message", "id", c.id, "addr", c.addr)
		return false
	}
	return true
}

// readPump reads inbound events off the transport and hands them to the
// router. When the transport drops, the deferred unregister runs the
// connection's disconnect lifecycle before the pump exits.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
			c.hub.Disconnect(c)
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			slog.Error("closing connection in readPump", "addr", c.addr, "error", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			break
		}

		if !c.allowMessage() {
			continue
		}

		c.handler.Handle(c, raw)
	}
}

// writePump drains the send channel onto the transport, one frame per event,
// and keeps the connection alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			slog.Error("closing connection in writePump", "addr", c.addr, "error", err)
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				slog.Error("setting write deadline", "addr", c.addr, "error", err)
				return
			}
			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
					slog.Error("writing close message", "addr", c.addr, "error", err)
				}
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				slog.Error("setting write deadline for ping", "addr", c.addr, "error", err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
