package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/coder/websocket"

	"chatrelay/internal/session"
	"chatrelay/internal/state"
	"chatrelay/internal/types"
	"chatrelay/pkg/protocol"
)

// Heartbeat tuning. Variables so tests can shorten the intervals.
var (
	PingInterval = 30 * time.Second
	PongTimeout  = 10 * time.Second
)

// identityResolveTimeout bounds session and claim lookups during the join
// handshake; a slow backing store must fail the handshake, not hang the
// connection.
var identityResolveTimeout = 5 * time.Second

// ConnectionManager owns one client connection: its read loop processes
// events strictly in arrival order, the write pump drains the send buffer,
// and the heartbeat loop detects dead peers. Every fault while handling a
// single event is converted to an ack for this client only.
type ConnectionManager struct {
	wsConn       *types.WebSocketConnection
	stateManager *state.Manager
	sessions     session.Validator
	connID       string
}

func (c *ConnectionManager) readPump(ctx context.Context) {
	for {
		msgType, data, err := c.wsConn.Conn.Read(ctx)
		if err != nil {
			log.Printf("read error on connection %s: %v", c.connID, err)
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var ev types.InboundEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("unparseable frame from connection %s: %v", c.connID, err)
			continue
		}
		c.handleEvent(ctx, &ev)
	}
}

func (c *ConnectionManager) handleEvent(ctx context.Context, ev *types.InboundEvent) {
	switch types.ChatEventType(ev.Type) {
	case types.EventJoinChat:
		c.handleJoin(ctx, ev)
	case types.EventUserMessage:
		c.handleUserMessage(ev)
	default:
		log.Printf("unknown event type %q from connection %s", ev.Type, c.connID)
	}
}

// handleJoin runs the join handshake: transition the connection from unbound
// to bound exactly once. Resolution order: verified identity already on the
// session context, then the session token, then a client-supplied user-id
// claim re-verified against the user store.
func (c *ConnectionManager) handleJoin(ctx context.Context, ev *types.InboundEvent) {
	identity, err := c.resolveJoinIdentity(ctx, ev.Data)
	if err != nil {
		log.Printf("identity resolution failed on connection %s: %v", c.connID, err)
		c.sendAck(types.EventJoinAck, types.JoinAck{Success: false, Error: protocol.ErrServerAuthFault})
		return
	}
	if identity == nil {
		// Connection stays unbound; the client may retry after signing in.
		c.sendAck(types.EventJoinAck, types.JoinAck{Success: false, Error: protocol.ErrAuthenticationRequired})
		return
	}

	if err := c.stateManager.Bind(c.connID, *identity); err != nil {
		log.Printf("bind rejected on connection %s: %v", c.connID, err)
		c.sendAck(types.EventJoinAck, types.JoinAck{Success: false, Error: protocol.ErrAuthenticationRequired})
		return
	}

	log.Printf("user joined: %s (%s) on connection %s", identity.DisplayName, identity.UserID, c.connID)
	c.sendAck(types.EventJoinAck, types.JoinAck{
		Success:     true,
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
	})
}

// resolveJoinIdentity returns nil without error when no path yields a
// verified identity.
func (c *ConnectionManager) resolveJoinIdentity(ctx context.Context, raw json.RawMessage) (*types.Identity, error) {
	sess := c.wsConn.Session
	if sess.Identity != nil {
		return sess.Identity, nil
	}

	ctx, cancel := context.WithTimeout(ctx, identityResolveTimeout)
	defer cancel()

	if sess.Token != "" {
		identity, ok, err := c.sessions.Resolve(ctx, sess.Token)
		if err != nil {
			return nil, err
		}
		if ok {
			sess.Identity = &identity
			return &identity, nil
		}
	}

	var claim struct {
		UserID string `json:"user_id"`
	}
	if len(raw) > 0 {
		// A malformed claim payload is just an absent claim.
		_ = json.Unmarshal(raw, &claim)
	}
	if claim.UserID == "" {
		return nil, nil
	}

	identity, ok, err := c.sessions.ResolveClaim(ctx, claim.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	sess.Identity = &identity
	if sess.Token != "" {
		// Persist the verified claim into the session so the next handshake
		// on this session skips the lookup. Best effort.
		if err := c.sessions.Rebind(ctx, sess.Token, identity); err != nil {
			log.Printf("session rebind failed on connection %s: %v", c.connID, err)
		}
	}
	return &identity, nil
}

// handleUserMessage runs the relay steps in order: normalize, reject empty,
// reject unbound, build the broadcast payload, queue the fan-out, ack the
// sender. The empty check deliberately precedes the auth check.
func (c *ConnectionManager) handleUserMessage(ev *types.InboundEvent) {
	text, tempID := coerceMessagePayload(ev.Data)
	text = normalizeText(text)

	if text == "" {
		c.sendAck(types.EventMessageAck, types.MessageAck{Success: false, Error: protocol.ErrMessageEmpty})
		return
	}

	identity, bound := c.stateManager.Identity(c.connID)
	if !bound {
		c.sendAck(types.EventMessageAck, types.MessageAck{Success: false, Error: protocol.ErrAuthenticationRequired})
		return
	}

	now := time.Now()
	msg := &types.ChatMessage{
		Text:              text,
		SenderDisplayName: identity.DisplayName,
		SenderUserID:      identity.UserID,
		Time:              now.Format(protocol.TimeLayout),
		SentAt:            now.UnixMilli(),
		ConnectionID:      c.connID,
		TempID:            tempID,
	}

	if err := c.stateManager.BroadcastMessage(msg); err != nil {
		log.Printf("broadcast failed for connection %s: %v", c.connID, err)
		c.sendAck(types.EventMessageAck, types.MessageAck{Success: false, Error: protocol.ErrSendFailed})
		return
	}

	c.sendAck(types.EventMessageAck, types.MessageAck{
		Success:     true,
		Message:     protocol.MsgMessageSent,
		MessageData: msg,
	})
}

// coerceMessagePayload accepts a bare JSON string, an object with a text
// field (plus optional temp_id), or any other JSON value coerced to its
// string representation.
func coerceMessagePayload(raw json.RawMessage) (text, tempID string) {
	if len(raw) == 0 {
		return "", ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, ""
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		tempID, _ = obj["temp_id"].(string)
		if v, ok := obj["text"]; ok {
			return stringify(v), tempID
		}
		return stringify(obj), tempID
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw), ""
	}
	return stringify(v), ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

// normalizeText trims surrounding whitespace and truncates to the protocol
// limit, counted in runes.
func normalizeText(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) > protocol.MaxMessageLen {
		return string(runes[:protocol.MaxMessageLen])
	}
	return s
}

// sendAck queues a reply event on this connection's send buffer. The send
// never blocks; an ack to a stalled client is dropped like any other
// delivery.
func (c *ConnectionManager) sendAck(eventType types.ChatEventType, payload any) {
	data, err := json.Marshal(types.ChatEvent{
		Type:      string(eventType),
		Timestamp: time.Now(),
		Data:      payload,
	})
	if err != nil {
		log.Printf("marshal ack failed for connection %s: %v", c.connID, err)
		return
	}
	select {
	case c.wsConn.Send <- data:
	default:
		log.Printf("ack dropped for connection %s: send buffer full", c.connID)
	}
}

func (c *ConnectionManager) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-c.wsConn.Send:
			if err := c.wsConn.Conn.Write(ctx, websocket.MessageText, message); err != nil {
				log.Printf("write error on connection %s: %v", c.connID, err)
				return
			}
		}
	}
}

// heartbeatLoop pings the peer on an interval and tears the connection down
// when a pong doesn't arrive in time.
func (c *ConnectionManager) heartbeatLoop(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, PongTimeout)
			err := c.wsConn.Conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				log.Printf("heartbeat failed on connection %s: %v", c.connID, err)
				cancel()
				_ = c.wsConn.Conn.Close(websocket.StatusPolicyViolation, "heartbeat timeout")
				return
			}
		}
	}
}
