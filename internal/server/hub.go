// Package server coordinates room membership, session lifecycle, and event
// fan-out for the CollabHub WebSocket system via the Hub type.
package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrConnectionClosed is returned by lifecycle operations invoked on a
// connection that has already disconnected.
var ErrConnectionClosed = errors.New("connection already closed")

// room holds the members of one broadcast group in join order. Rooms are
// created lazily on first join and deleted once the last member is gone; an
// empty room and a missing room behave identically.
type room struct {
	members []*Client
}

func (r *room) indexOf(c *Client) int {
	for i, m := range r.members {
		if m == c {
			return i
		}
	}
	return -1
}

func (r *room) remove(c *Client) bool {
	i := r.indexOf(c)
	if i < 0 {
		return false
	}
	r.members = append(r.members[:i], r.members[i+1:]...)
	return true
}

// Hub owns the room registry and drives every connection's lifecycle. All
// membership mutations and the snapshot broadcasts they trigger run under one
// mutex, so every broadcast reflects post-mutation membership.
type Hub struct {
	mu      sync.Mutex
	rooms   map[string]*room
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub with an empty registry, ready to manage connections.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		rooms:      make(map[string]*room),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main event loop, handling connection registration and
// teardown. It should be called in its own goroutine as it runs until
// Shutdown is invoked.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				slog.Warn("nil client registration; skipping")
				continue
			}

			h.registerClient(client)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.Disconnect(client)
		}
	}
}

// registerClient adds a freshly connected client to the registry. No room
// broadcast happens here; the connection has no room until its first join.
func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	total := len(h.clients)
	h.mu.Unlock()

	slog.Info("client connected", "id", c.id, "name", c.displayName, "addr", c.addr, "total", total)
}

// Join moves the connection into roomID, leaving its previous room first if
// it had one. Both rooms receive fresh membership snapshots; the joiner gets
// a personal notice and everyone else in the room is told who arrived.
// Repeated joins to the same room re-broadcast rather than short-circuit.
func (h *Hub) Join(c *Client, roomID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	if c.room != "" && c.room != roomID {
		h.departRoomLocked(c, c.room)
	}

	r := h.rooms[roomID]
	if r == nil {
		r = &room{}
		h.rooms[roomID] = r
	}
	if r.indexOf(c) < 0 {
		r.members = append(r.members, c)
	}
	c.room = roomID

	h.sendRoomUsersLocked(r)

	if payload, err := encodeEvent(EventMessage, newSystemMessage("You joined #"+roomID)); err == nil {
		h.sendLocked(c, payload)
	}
	if payload, err := encodeEvent(EventMessage, newSystemMessage(c.displayName+" joined the room")); err == nil {
		for _, m := range r.members {
			if m != c {
				h.sendLocked(m, payload)
			}
		}
	}

	slog.Info("client joined room", "id", c.id, "room", roomID, "members", len(r.members))
	return nil
}

// Leave removes the connection from roomID if it is a member. The room's
// remaining members always receive a recomputed snapshot; the departure
// notice is sent only when the connection was actually removed.
func (h *Hub) Leave(c *Client, roomID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	r := h.rooms[roomID]
	if r == nil {
		return nil
	}

	removed := r.remove(c)
	if removed && c.room == roomID {
		c.room = ""
	}

	h.sendRoomUsersLocked(r)
	if removed {
		if payload, err := encodeEvent(EventMessage, newSystemMessage(c.displayName+" left the room")); err == nil {
			for _, m := range r.members {
				h.sendLocked(m, payload)
			}
		}
		slog.Info("client left room", "id", c.id, "room", roomID, "members", len(r.members))
	}

	if len(r.members) == 0 {
		delete(h.rooms, roomID)
	}
	return nil
}

// Disconnect tears down the connection: it is pulled out of its room, the
// remaining members get a snapshot and a disconnect notice, and the
// connection transitions to its terminal state. Safe to call more than once;
// only the first call has any effect.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	if c.closed {
		h.mu.Unlock()
		return
	}
	c.closed = true
	delete(h.clients, c.id)

	if roomID := c.room; roomID != "" {
		c.room = ""
		if r := h.rooms[roomID]; r != nil && r.remove(c) {
			h.sendRoomUsersLocked(r)
			if payload, err := encodeEvent(EventMessage, newSystemMessage(c.displayName+" disconnected")); err == nil {
				for _, m := range r.members {
					h.sendLocked(m, payload)
				}
			}
			if len(r.members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	total := len(h.clients)
	h.mu.Unlock()

	// Closed after the flag is set: every sender checks c.closed under the
	// same mutex, so nothing can write to the channel past this point.
	close(c.send)
	slog.Info("client disconnected", "id", c.id, "name", c.displayName, "total", total)
}

// CurrentRoom reports the room the connection currently occupies, or "" if it
// has not joined one.
func (h *Hub) CurrentRoom(c *Client) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return c.room
}

// BroadcastToRoom delivers an event to every member of roomID, including the
// sender if the sender is a member. An unknown or empty room delivers to
// nobody and is not an error.
func (h *Hub) BroadcastToRoom(roomID, event string, data any) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		slog.Error("encode broadcast event", "event", event, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.rooms[roomID]
	if r == nil {
		return
	}
	for _, m := range r.members {
		h.sendLocked(m, payload)
	}
}

// BroadcastToOthers delivers an event to every member of roomID except the
// sender.
func (h *Hub) BroadcastToOthers(sender *Client, roomID, event string, data any) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		slog.Error("encode broadcast event", "event", event, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.rooms[roomID]
	if r == nil {
		return
	}
	for _, m := range r.members {
		if m != sender {
			h.sendLocked(m, payload)
		}
	}
}

// EmitTo delivers an event to a single connection by ID. An unknown or
// already-disconnected ID is silently dropped so the rest of a fan-out can
// proceed.
func (h *Hub) EmitTo(connectionID, event string, data any) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		slog.Error("encode emit event", "event", event, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if c := h.clients[connectionID]; c != nil {
		h.sendLocked(c, payload)
	}
}

// departRoomLocked handles the implicit leave half of a room switch: the old
// room's remaining members see a fresh snapshot so nobody keeps a stale view.
// Caller holds h.mu.
func (h *Hub) departRoomLocked(c *Client, roomID string) {
	r := h.rooms[roomID]
	if r == nil || !r.remove(c) {
		return
	}
	c.room = ""
	h.sendRoomUsersLocked(r)
	if len(r.members) == 0 {
		delete(h.rooms, roomID)
	}
}

// sendRoomUsersLocked sends each member a membership snapshot with their own
// entry renamed to "You". Caller holds h.mu.
func (h *Hub) sendRoomUsersLocked(r *room) {
	for _, recipient := range r.members {
		users := make([]RoomUser, 0, len(r.members))
		for _, m := range r.members {
			name := m.displayName
			if m == recipient {
				name = "You"
			}
			users = append(users, RoomUser{ID: m.id, Name: name})
		}
		payload, err := encodeEvent(EventRoomUsers, users)
		if err != nil {
			slog.Error("encode room-users snapshot", "error", err)
			return
		}
		h.sendLocked(recipient, payload)
	}
}

// sendLocked queues a payload for one connection without blocking. Delivery
// is fire and forget: a closed connection or a full buffer drops the event.
// Caller holds h.mu.
func (h *Hub) sendLocked(c *Client, payload []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		slog.Warn("send buffer full, dropping event", "id", c.id)
		return false
	}
}

// shutdownClients closes every live transport so the pump goroutines unwind.
func (h *Hub) shutdownClients() {
	slog.Info("shutting down all client connections...")

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				slog.Error("closing client connection", "addr", client.addr, "error", err)
			}
		}
	}

	slog.Info("closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all pump
// goroutines to finish, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	slog.Info("initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		slog.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
