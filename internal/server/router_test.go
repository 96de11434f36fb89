package server

import (
	"encoding/json"
	"testing"
	"time"
)

// joinedPair creates two registered clients in the same room with their event
// queues drained, ready for router dispatch tests.
func joinedPair(t *testing.T, h *Hub, roomID string) (*Client, *Client) {
	t.Helper()
	a := newTestClient(t, h)
	b := newTestClient(t, h)
	if err := h.Join(a, roomID); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if err := h.Join(b, roomID); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	drain(a)
	drain(b)
	return a, b
}

func decodeNotification(t *testing.T, env Envelope) Notification {
	t.Helper()
	if env.Event != EventNotification {
		t.Fatalf("expected %s event, got %s", EventNotification, env.Event)
	}
	var n Notification
	if err := json.Unmarshal(env.Data, &n); err != nil {
		t.Fatalf("failed to decode notification payload: %v", err)
	}
	return n
}

// TestRouterJoinRoom verifies that a join-room frame runs the join lifecycle.
func TestRouterJoinRoom(t *testing.T) {
	h := NewHub()
	rt := NewRouter(h)
	a := newTestClient(t, h)

	rt.Handle(a, []byte(`{"event":"join-room","data":"general"}`))

	users := decodeUsers(t, recvEvent(t, a))
	if len(users) != 1 || users[0].Name != "You" {
		t.Errorf("unexpected snapshot after join: %+v", users)
	}
	if got := h.CurrentRoom(a); got != "general" {
		t.Errorf("expected current room general, got %q", got)
	}
}

// TestRouterLeaveRoom verifies that a leave-room frame runs the leave
// lifecycle.
func TestRouterLeaveRoom(t *testing.T) {
	h := NewHub()
	rt := NewRouter(h)
	a, b := joinedPair(t, h, "general")

	rt.Handle(b, []byte(`{"event":"leave-room","data":"general"}`))

	users := decodeUsers(t, recvEvent(t, a))
	if len(users) != 1 || users[0].ID != a.ID() {
		t.Errorf("expected snapshot without leaver, got %+v", users)
	}
	if got := h.CurrentRoom(b); got != "" {
		t.Errorf("expected no current room, got %q", got)
	}
}

// TestRouterChatMessage verifies that a chat message is rebroadcast to the
// whole room, sender included, with a server-assigned timestamp and all
// client-supplied fields passed through.
func TestRouterChatMessage(t *testing.T) {
	h := NewHub()
	rt := NewRouter(h)
	a, b := joinedPair(t, h, "general")

	rt.Handle(a, []byte(`{"event":"message","data":{"room":"general","text":"hi","sender":"Alice","clientTag":42}}`))

	for _, c := range []*Client{a, b} {
		msg := decodeMessage(t, recvEvent(t, c))
		if msg["text"] != "hi" {
			t.Errorf("unexpected text: %v", msg["text"])
		}
		if msg["sender"] != "Alice" {
			t.Errorf("sender not passed through: %v", msg["sender"])
		}
		if msg["clientTag"] != float64(42) {
			t.Errorf("extra field not passed through: %v", msg["clientTag"])
		}
		if ts, _ := msg["timestamp"].(string); ts == "" {
			t.Error("message missing server timestamp")
		}
	}
}

// TestRouterChatMessageWithoutRoom verifies that a chat message without a
// room produces no deliveries and no error.
func TestRouterChatMessageWithoutRoom(t *testing.T) {
	h := NewHub()
	rt := NewRouter(h)
	a, b := joinedPair(t, h, "general")

	rt.Handle(a, []byte(`{"event":"message","data":{"text":"orphan"}}`))

	assertNoEvent(t, a)
	assertNoEvent(t, b)
}

// TestRouterShareFile verifies that file metadata is forwarded to the whole
// room as a file-shared event with the sender's display name attached.
func TestRouterShareFile(t *testing.T) {
	h := NewHub()
	rt := NewRouter(h)
	a, b := joinedPair(t, h, "general")

	rt.Handle(a, []byte(`{"event":"share-file","data":{"room":"general","name":"demo.webm","size":1024}}`))

	for _, c := range []*Client{a, b} {
		env := recvEvent(t, c)
		if env.Event != EventFileShared {
			t.Fatalf("expected %s event, got %s", EventFileShared, env.Event)
		}
		var meta map[string]any
		if err := json.Unmarshal(env.Data, &meta); err != nil {
			t.Fatalf("failed to decode file-shared payload: %v", err)
		}
		if meta["name"] != "demo.webm" {
			t.Errorf("file metadata not passed through: %v", meta["name"])
		}
		if meta["sender"] != a.DisplayName() {
			t.Errorf("expected sender %q, got %v", a.DisplayName(), meta["sender"])
		}
	}
}

// TestRouterScreenShare verifies that screen share notices reach everyone in
// the room except the sharer.
func TestRouterScreenShare(t *testing.T) {
	h := NewHub()
	rt := NewRouter(h)
	a, b := joinedPair(t, h, "general")

	rt.Handle(a, []byte(`{"event":"start-screen-share","data":{"room":"general"}}`))
	if text := messageText(t, recvEvent(t, b)); text != a.DisplayName()+" started screen sharing" {
		t.Errorf("unexpected start notice: %q", text)
	}
	assertNoEvent(t, a)

	rt.Handle(a, []byte(`{"event":"stop-screen-share","data":{"room":"general"}}`))
	if text := messageText(t, recvEvent(t, b)); text != a.DisplayName()+" stopped screen sharing" {
		t.Errorf("unexpected stop notice: %q", text)
	}
	assertNoEvent(t, a)
}

// TestRouterNewRecording verifies that recording notices go to the sender's
// current room as notifications with an RFC 3339 timestamp.
func TestRouterNewRecording(t *testing.T) {
	h := NewHub()
	rt := NewRouter(h)
	a, b := joinedPair(t, h, "general")

	rt.Handle(a, []byte(`{"event":"new-recording","data":{"type":"video","duration":12,"withAudio":true}}`))

	n := decodeNotification(t, recvEvent(t, b))
	want := a.DisplayName() + " created a new video recording (12s)"
	if n.Text != want {
		t.Errorf("notification text %q, want %q", n.Text, want)
	}
	if _, err := time.Parse(time.RFC3339, n.Timestamp); err != nil {
		t.Errorf("timestamp %q is not RFC 3339: %v", n.Timestamp, err)
	}
	assertNoEvent(t, a)
}

// TestRouterNewRecordingWithoutRoom verifies that a recording notice from a
// connection that never joined a room delivers to nobody.
func TestRouterNewRecordingWithoutRoom(t *testing.T) {
	h := NewHub()
	rt := NewRouter(h)
	a := newTestClient(t, h)

	rt.Handle(a, []byte(`{"event":"new-recording","data":{"type":"audio","duration":3}}`))
	assertNoEvent(t, a)
}

// TestRouterFileConverted verifies the conversion notice text and audience.
func TestRouterFileConverted(t *testing.T) {
	h := NewHub()
	rt := NewRouter(h)
	a, b := joinedPair(t, h, "general")

	rt.Handle(a, []byte(`{"event":"file-converted","data":{"from":"wav","to":"mp3","size":2048}}`))

	n := decodeNotification(t, recvEvent(t, b))
	want := a.DisplayName() + " converted a file from wav to mp3"
	if n.Text != want {
		t.Errorf("notification text %q, want %q", n.Text, want)
	}
	assertNoEvent(t, a)
}

// TestRouterIgnoresMalformedFrames verifies that invalid JSON and unknown
// event names are dropped without disturbing the connection.
func TestRouterIgnoresMalformedFrames(t *testing.T) {
	h := NewHub()
	rt := NewRouter(h)
	a, b := joinedPair(t, h, "general")

	rt.Handle(a, nil)
	rt.Handle(a, []byte(`{not json`))
	rt.Handle(a, []byte(`{"event":"no-such-event","data":{}}`))
	rt.Handle(a, []byte(`{"event":"join-room","data":123}`))

	assertNoEvent(t, a)
	assertNoEvent(t, b)

	// The connection still works afterwards.
	rt.Handle(a, []byte(`{"event":"message","data":{"room":"general","text":"still here"}}`))
	if text := messageText(t, recvEvent(t, b)); text != "still here" {
		t.Errorf("connection broken after malformed frames: %q", text)
	}
	drain(a)
}

// TestRouterRejectsEmptyRoomID verifies that join and leave frames naming the
// empty room id are dropped: the empty string is reserved as the hub's
// "no current room" state and must never become a room.
func TestRouterRejectsEmptyRoomID(t *testing.T) {
	h := NewHub()
	rt := NewRouter(h)
	a := newTestClient(t, h)

	rt.Handle(a, []byte(`{"event":"join-room","data":""}`))

	assertNoEvent(t, a)
	if got := h.CurrentRoom(a); got != "" {
		t.Errorf("empty join must not set a current room, got %q", got)
	}
	if n := memberCount(h, a); n != 0 {
		t.Errorf("empty join created %d memberships, want 0", n)
	}

	rt.Handle(a, []byte(`{"event":"leave-room","data":""}`))
	assertNoEvent(t, a)
}

// TestRouterRejectsLifecycleAfterDisconnect verifies that join frames from a
// disconnected connection are refused rather than silently applied.
func TestRouterRejectsLifecycleAfterDisconnect(t *testing.T) {
	h := NewHub()
	rt := NewRouter(h)
	a := newTestClient(t, h)
	h.Disconnect(a)

	rt.Handle(a, []byte(`{"event":"join-room","data":"general"}`))

	h.mu.Lock()
	_, exists := h.rooms["general"]
	h.mu.Unlock()
	if exists {
		t.Error("disconnected connection must not create room membership")
	}
}
