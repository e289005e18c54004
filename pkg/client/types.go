package client

import (
	"encoding/json"
	"time"
)

// ChatEvent is the wire envelope exchanged with the relay server.
type ChatEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// serverEvent keeps the payload raw so each event type can decode its own
// shape after dispatch.
type serverEvent struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// JoinAck reports the outcome of a join handshake.
type JoinAck struct {
	Success     bool   `json:"success"`
	UserID      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ChatMessage is a relayed message as broadcast by the server.
type ChatMessage struct {
	Text              string `json:"text"`
	SenderDisplayName string `json:"sender_display_name"`
	SenderUserID      string `json:"sender_user_id"`
	Time              string `json:"time"`
	SentAt            int64  `json:"sent_at"`
	ConnectionID      string `json:"connection_id,omitempty"`
	TempID            string `json:"temp_id,omitempty"`
}

// MessageAck reports the outcome of a message send.
type MessageAck struct {
	Success     bool         `json:"success"`
	Message     string       `json:"message,omitempty"`
	MessageData *ChatMessage `json:"message_data,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// ClientConfig holds configuration for the chat client.
type ClientConfig struct {
	ServerURL    string // websocket endpoint, e.g. ws://localhost:8080/ws
	SessionToken string // optional login token, passed on the dial URL
	UserAgent    string
}
