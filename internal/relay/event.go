// Package relay implements the multi-user session relay for the editor:
// connection identity tracking, room membership, and best-effort fan-out
// of scene events to room peers. Payloads are opaque to the relay; it
// routes them, it never interprets them.
package relay

import "encoding/json"

// Inbound event names (client to server).
const (
	EventJoinRoom        = "join-room"
	EventUserTransform   = "user-transform"
	EventObjectTransform = "object-transform"
	EventChatMessage     = "chat-message"
	EventAddObject       = "add-object"
	EventRemoveObject    = "remove-object"
)

// Outbound event names (server to client).
const (
	EventExistingUsers = "existing-users"
	EventUserJoined    = "user-joined"
	EventUserLeft      = "user-left"
)

// Envelope is the wire frame for every message in both directions:
// a named event plus a JSON payload the relay does not inspect.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Vec3 is a position or rotation triple in the client's coordinate space.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// JoinPayload is the inbound join-room event body. Position and Rotation
// are optional; absent values default to the zero vector.
type JoinPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	RoomID   string `json:"roomId"`
	Position *Vec3  `json:"position,omitempty"`
	Rotation *Vec3  `json:"rotation,omitempty"`
}

// TransformPayload is the user-transform event body, inbound and relayed.
// On the way out UserID is always the sender's bound identity.
type TransformPayload struct {
	UserID   string `json:"userId,omitempty"`
	Position Vec3   `json:"position"`
	Rotation Vec3   `json:"rotation"`
}

// MemberSnapshot is one entry of the existing-users list sent to a joiner.
type MemberSnapshot struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Position Vec3   `json:"position"`
	Rotation Vec3   `json:"rotation"`
}

// UserJoinedPayload announces a new member to the rest of the room.
// Timestamp is server wall clock in Unix milliseconds.
type UserJoinedPayload struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Position  Vec3   `json:"position"`
	Timestamp int64  `json:"timestamp"`
}

// UserLeftPayload announces a departed member to the rest of the room.
type UserLeftPayload struct {
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

// Sink delivers outbound envelopes to a single connection. Send must not
// block: implementations enqueue and report an error when the connection
// is closed or its buffer is full.
type Sink interface {
	Send(env Envelope) error
}
