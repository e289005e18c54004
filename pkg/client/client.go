package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/coder/websocket"

	cidpkg "chatrelay/internal/cid"
	"chatrelay/pkg/protocol"
)

// buildDialHeaders constructs the HTTP header map used for websocket.Dial.
// Extracted to allow unit testing of header propagation.
func buildDialHeaders(ctx context.Context, userAgent string) map[string][]string {
	headers := map[string][]string{"User-Agent": {userAgent}}
	cidpkg.AddHeaderFromContext(headers, ctx)
	return headers
}

// dialURL appends the session token to the endpoint when one is configured.
// Extracted to allow unit testing of token propagation.
func dialURL(serverURL, token string) (string, error) {
	if token == "" {
		return serverURL, nil
	}
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	q := u.Query()
	q.Set(protocol.TokenQueryParam, token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ChatClient represents a chat relay client
type ChatClient struct {
	conn         *websocket.Conn
	config       ClientConfig
	connected    bool
	eventHandler EventHandler
}

// EventHandler defines callbacks for handling server events
type EventHandler interface {
	OnConnected()
	OnDisconnected()
	OnJoinAck(ack JoinAck)
	OnMessageAck(ack MessageAck)
	OnMessage(msg ChatMessage)
	OnServerEvent(eventType string, data json.RawMessage)
}

// DefaultEventHandler provides a basic implementation of EventHandler
type DefaultEventHandler struct{}

func (h *DefaultEventHandler) OnConnected()    { log.Printf("Connected to server") }
func (h *DefaultEventHandler) OnDisconnected() { log.Printf("Disconnected from server") }
func (h *DefaultEventHandler) OnJoinAck(ack JoinAck) {
	if ack.Success {
		log.Printf("Joined chat as %s", ack.DisplayName)
	} else {
		log.Printf("Join failed: %s", ack.Error)
	}
}
func (h *DefaultEventHandler) OnMessageAck(ack MessageAck) {
	if !ack.Success {
		log.Printf("Send failed: %s", ack.Error)
	}
}
func (h *DefaultEventHandler) OnMessage(msg ChatMessage) {
	log.Printf("[%s] %s: %s", msg.Time, msg.SenderDisplayName, msg.Text)
}
func (h *DefaultEventHandler) OnServerEvent(eventType string, data json.RawMessage) {
	log.Printf("Event: %s", eventType)
}

// NewChatClient creates a new chat client
func NewChatClient(config ClientConfig) *ChatClient {
	if config.UserAgent == "" {
		config.UserAgent = "chatrelay-client/1.0.0"
	}
	return &ChatClient{
		config:       config,
		eventHandler: &DefaultEventHandler{},
	}
}

// SetEventHandler sets a custom event handler
func (c *ChatClient) SetEventHandler(handler EventHandler) {
	c.eventHandler = handler
}

// IsConnected returns whether the client is connected
func (c *ChatClient) IsConnected() bool {
	return c.connected
}

// Connect establishes a WebSocket connection to the server
func (c *ChatClient) Connect(ctx context.Context) error {
	target, err := dialURL(c.config.ServerURL, c.config.SessionToken)
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPHeader: buildDialHeaders(ctx, c.config.UserAgent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}

	c.conn = conn
	c.connected = true
	c.eventHandler.OnConnected()
	return nil
}

// Disconnect closes the WebSocket connection
func (c *ChatClient) Disconnect() error {
	if c.conn != nil {
		c.connected = false
		err := c.conn.Close(websocket.StatusNormalClosure, "client disconnect")
		c.eventHandler.OnDisconnected()
		return err
	}
	return nil
}

// Join performs the chat join handshake. userID may be empty when the
// session token already carries the identity.
func (c *ChatClient) Join(ctx context.Context, userID string) error {
	event := ChatEvent{
		Type:      "join-chat",
		Timestamp: time.Now(),
	}
	if userID != "" {
		event.Data = map[string]string{"user_id": userID}
	}

	if err := c.sendEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to join chat: %w", err)
	}
	return nil
}

// SendMessage sends a chat message. tempID is an optional client-side
// correlation id echoed back in the ack and broadcast.
func (c *ChatClient) SendMessage(ctx context.Context, text, tempID string) error {
	event := ChatEvent{
		Type:      "user-message",
		Timestamp: time.Now(),
	}
	if tempID != "" {
		event.Data = map[string]string{"text": text, "temp_id": tempID}
	} else {
		event.Data = text
	}

	if err := c.sendEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// ListenForMessages starts listening for server messages (blocking)
func (c *ChatClient) ListenForMessages(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msgType, data, err := c.conn.Read(ctx)
			if err != nil {
				c.connected = false
				return fmt.Errorf("read error: %w", err)
			}

			if msgType != websocket.MessageText {
				continue
			}
			var event serverEvent
			if err := json.Unmarshal(data, &event); err != nil {
				log.Printf("Failed to unmarshal message: %v", err)
				continue
			}
			c.handleServerEvent(event)
		}
	}
}

// sendEvent sends a JSON event to the server
func (c *ChatClient) sendEvent(ctx context.Context, event ChatEvent) error {
	if !c.connected {
		return fmt.Errorf("client not connected")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return c.conn.Write(ctx, websocket.MessageText, data)
}

// handleServerEvent processes events received from the server
func (c *ChatClient) handleServerEvent(event serverEvent) {
	switch event.Type {
	case "join-ack":
		var ack JoinAck
		if err := json.Unmarshal(event.Data, &ack); err != nil {
			log.Printf("Failed to unmarshal join ack: %v", err)
			return
		}
		c.eventHandler.OnJoinAck(ack)
	case "message-ack":
		var ack MessageAck
		if err := json.Unmarshal(event.Data, &ack); err != nil {
			log.Printf("Failed to unmarshal message ack: %v", err)
			return
		}
		c.eventHandler.OnMessageAck(ack)
	case "message":
		var msg ChatMessage
		if err := json.Unmarshal(event.Data, &msg); err != nil {
			log.Printf("Failed to unmarshal message: %v", err)
			return
		}
		c.eventHandler.OnMessage(msg)
	default:
		c.eventHandler.OnServerEvent(event.Type, event.Data)
	}
}
