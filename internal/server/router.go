// Package server routes inbound client events to the hub operation or
// broadcast that handles them. The router never mutates room membership
// itself; that is the hub's job.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Router decodes inbound event envelopes and dispatches them. Lifecycle
// events go through the hub's join/leave operations; everything else fans out
// through the hub's broadcast primitives.
type Router struct {
	hub *Hub
}

// NewRouter creates a Router bound to the given hub.
func NewRouter(hub *Hub) *Router {
	return &Router{hub: hub}
}

// Handle processes one raw inbound frame from a client. Malformed frames and
// unknown event names are logged and dropped; the connection stays up.
func (rt *Router) Handle(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Warn("invalid event envelope", "id", c.id, "error", err)
		return
	}

	switch env.Event {
	case EventJoinRoom:
		rt.handleJoin(c, env.Data)
	case EventLeaveRoom:
		rt.handleLeave(c, env.Data)
	case EventMessage:
		rt.handleChatMessage(c, env.Data)
	case EventShareFile:
		rt.handleShareFile(c, env.Data)
	case EventStartScreenShare:
		rt.handleScreenShare(c, env.Data, c.displayName+" started screen sharing")
	case EventStopScreenShare:
		rt.handleScreenShare(c, env.Data, c.displayName+" stopped screen sharing")
	case EventNewRecording:
		rt.handleNewRecording(c, env.Data)
	case EventFileConverted:
		rt.handleFileConverted(c, env.Data)
	default:
		slog.Debug("unknown event", "id", c.id, "event", env.Event)
	}
}

// handleJoin runs the join lifecycle. Room ids are opaque strings, with one
// exception: the empty string is indistinguishable from the hub's "no current
// room" state, so frames naming it are dropped.
func (rt *Router) handleJoin(c *Client, data json.RawMessage) {
	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil || roomID == "" {
		slog.Warn("invalid join-room payload", "id", c.id, "error", err)
		return
	}
	if err := rt.hub.Join(c, roomID); err != nil {
		slog.Warn("join rejected", "id", c.id, "room", roomID, "error", err)
	}
}

// handleLeave runs the leave lifecycle. The empty id is dropped for the same
// sentinel reason as in handleJoin.
func (rt *Router) handleLeave(c *Client, data json.RawMessage) {
	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil || roomID == "" {
		slog.Warn("invalid leave-room payload", "id", c.id, "error", err)
		return
	}
	if err := rt.hub.Leave(c, roomID); err != nil {
		slog.Warn("leave rejected", "id", c.id, "room", roomID, "error", err)
	}
}

// handleChatMessage rebroadcasts a chat payload to the whole room, sender
// included. The payload passes through untouched except for the
// server-assigned delivery timestamp.
func (rt *Router) handleChatMessage(c *Client, data json.RawMessage) {
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("invalid message payload", "id", c.id, "error", err)
		return
	}
	roomID, _ := msg["room"].(string)
	if roomID == "" {
		slog.Warn("message without room", "id", c.id)
		return
	}

	msg["timestamp"] = displayTimestamp(time.Now())
	rt.hub.BroadcastToRoom(roomID, EventMessage, msg)
}

// handleShareFile forwards file metadata to the whole room as a file-shared
// event with the sender's display name attached.
func (rt *Router) handleShareFile(c *Client, data json.RawMessage) {
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		slog.Warn("invalid share-file payload", "id", c.id, "error", err)
		return
	}
	roomID, _ := meta["room"].(string)
	if roomID == "" {
		slog.Warn("share-file without room", "id", c.id)
		return
	}

	meta["sender"] = c.displayName
	rt.hub.BroadcastToRoom(roomID, EventFileShared, meta)
}

// handleScreenShare tells everyone else in the named room that the sender
// started or stopped sharing their screen.
func (rt *Router) handleScreenShare(c *Client, data json.RawMessage, notice string) {
	var p ScreenSharePayload
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		slog.Warn("invalid screen-share payload", "id", c.id, "error", err)
		return
	}
	rt.hub.BroadcastToOthers(c, p.Room, EventMessage, newSystemMessage(notice))
}

// handleNewRecording notifies the sender's current room about a recording
// they just produced. A sender with no current room notifies nobody.
func (rt *Router) handleNewRecording(c *Client, data json.RawMessage) {
	var p RecordingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Warn("invalid new-recording payload", "id", c.id, "error", err)
		return
	}
	text := fmt.Sprintf("%s created a new %s recording (%gs)", c.displayName, p.Type, p.Duration)
	rt.hub.BroadcastToOthers(c, rt.hub.CurrentRoom(c), EventNotification, newNotification(text))
}

// handleFileConverted notifies the sender's current room about a completed
// file conversion.
func (rt *Router) handleFileConverted(c *Client, data json.RawMessage) {
	var p ConversionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Warn("invalid file-converted payload", "id", c.id, "error", err)
		return
	}
	text := fmt.Sprintf("%s converted a file from %s to %s", c.displayName, p.From, p.To)
	rt.hub.BroadcastToOthers(c, rt.hub.CurrentRoom(c), EventNotification, newNotification(text))
}
