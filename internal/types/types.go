package types

import (
	"encoding/json"
	"time"

	"github.com/coder/websocket"
)

// Identity is the authenticated user bound to a connection. It is immutable
// once bound; the registry hands out copies, never pointers into its own maps.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// ChatEvent is the outbound JSON frame pushed to clients.
type ChatEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// InboundEvent is a client frame as read off the websocket. Data stays raw
// until the handler for the event type decides how to interpret it: the
// user-message payload may be a bare string, an object, or anything else the
// client felt like sending.
type InboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ChatMessage is the broadcast payload constructed by the relay. It is never
// mutated after construction and is fanned out verbatim to every live
// connection, including the sender.
type ChatMessage struct {
	Text              string `json:"text"`
	SenderDisplayName string `json:"sender_display_name"`
	SenderUserID      string `json:"sender_user_id"`
	Time              string `json:"time"`
	SentAt            int64  `json:"sent_at"`
	ConnectionID      string `json:"connection_id"`
	TempID            string `json:"temp_id,omitempty"`
}

// JoinAck is the reply to a join-chat event.
type JoinAck struct {
	Success     bool   `json:"success"`
	UserID      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Error       string `json:"error,omitempty"`
}

// MessageAck is the reply to a user-message event. MessageData echoes the
// broadcast payload back to the sender so it can reconcile optimistic UI
// state via TempID.
type MessageAck struct {
	Success     bool         `json:"success"`
	Message     string       `json:"message,omitempty"`
	MessageData *ChatMessage `json:"message_data,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// SessionContext carries the login-session state resolved at transport
// establishment time. Identity is nil until the session token (or a
// re-verified client claim) yields a verified user. It is written only by
// the connection's own read goroutine.
type SessionContext struct {
	Token    string
	Identity *Identity
}

// WebSocketConnection pairs a websocket with its outbound send buffer.
// Writes go through Send so a slow consumer never blocks a broadcast;
// the write pump is the only goroutine writing to Conn.
type WebSocketConnection struct {
	Conn         *websocket.Conn
	ConnectionID string
	Send         chan []byte
	Session      *SessionContext
}

type ChatEventType string

const (
	// Client -> server.
	EventJoinChat    ChatEventType = "join-chat"
	EventUserMessage ChatEventType = "user-message"

	// Server -> client.
	EventJoinAck    ChatEventType = "join-ack"
	EventMessageAck ChatEventType = "message-ack"
	EventMessage    ChatEventType = "message"
)

// ServerStats is the payload of the /api/stats endpoint.
type ServerStats struct {
	ConnectedClients      int `json:"connected_clients"`
	BoundIdentities       int `json:"bound_identities"`
	DroppedBroadcasts     int `json:"dropped_broadcasts"`
	MessageBufferLength   int `json:"message_buffer_length"`
	MessageBufferCapacity int `json:"message_buffer_capacity"`
}
