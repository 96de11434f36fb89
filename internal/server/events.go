// Package server defines the wire protocol exchanged with clients: the event
// envelope plus the typed payloads for room, chat, and activity events.
package server

import (
	"encoding/json"
	"time"
)

// Inbound event names (client to hub).
const (
	EventJoinRoom         = "join-room"
	EventLeaveRoom        = "leave-room"
	EventMessage          = "message"
	EventShareFile        = "share-file"
	EventStartScreenShare = "start-screen-share"
	EventStopScreenShare  = "stop-screen-share"
	EventNewRecording     = "new-recording"
	EventFileConverted    = "file-converted"
)

// Outbound event names (hub to client). EventMessage is used in both
// directions.
const (
	EventRoomUsers    = "room-users"
	EventNotification = "notification"
	EventFileShared   = "file-shared"
)

// systemSender is the sender name attached to hub-generated chat messages.
const systemSender = "System"

// Envelope wraps every event on the wire with its event name.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RoomUser is one entry of a room-users membership snapshot. The recipient's
// own entry carries the name "You".
type RoomUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Notification is an activity notice with an ISO timestamp, used for
// recording and conversion events.
type Notification struct {
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// ScreenSharePayload is the inbound payload of start/stop-screen-share.
type ScreenSharePayload struct {
	Room string `json:"room"`
}

// RecordingPayload is the inbound payload of new-recording.
type RecordingPayload struct {
	Type      string  `json:"type"`
	Duration  float64 `json:"duration"`
	WithAudio bool    `json:"withAudio,omitempty"`
}

// ConversionPayload is the inbound payload of file-converted.
type ConversionPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
	Size int64  `json:"size"`
}

// encodeEvent marshals an event name and payload into a wire-ready envelope.
func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// displayTimestamp formats a wall-clock time the way chat messages show it.
func displayTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}

// newSystemMessage builds a hub-generated chat message carrying a display
// timestamp. Chat payloads stay maps so client-supplied fields pass through
// untouched.
func newSystemMessage(text string) map[string]any {
	return map[string]any{
		"text":      text,
		"sender":    systemSender,
		"timestamp": displayTimestamp(time.Now()),
	}
}

// newNotification builds an activity notice stamped with the current UTC time
// in RFC 3339 form.
func newNotification(text string) Notification {
	return Notification{
		Text:      text,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
