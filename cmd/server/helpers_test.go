package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"chatrelay/internal/session"
	"chatrelay/internal/state"
	"chatrelay/internal/types"
)

// fakeValidator is an in-memory session.Validator for handler unit tests.
type fakeValidator struct {
	tokens     map[string]types.Identity
	claims     map[string]types.Identity
	resolveErr error
	claimErr   error
	rebound    map[string]types.Identity
}

func newFakeValidator() *fakeValidator {
	return &fakeValidator{
		tokens:  make(map[string]types.Identity),
		claims:  make(map[string]types.Identity),
		rebound: make(map[string]types.Identity),
	}
}

func (f *fakeValidator) Resolve(ctx context.Context, token string) (types.Identity, bool, error) {
	if f.resolveErr != nil {
		return types.Identity{}, false, f.resolveErr
	}
	if id, ok := f.rebound[token]; ok {
		return id, true, nil
	}
	id, ok := f.tokens[token]
	return id, ok, nil
}

func (f *fakeValidator) ResolveClaim(ctx context.Context, userID string) (types.Identity, bool, error) {
	if f.claimErr != nil {
		return types.Identity{}, false, f.claimErr
	}
	id, ok := f.claims[userID]
	return id, ok, nil
}

func (f *fakeValidator) Rebind(ctx context.Context, token string, identity types.Identity) error {
	f.rebound[token] = identity
	return nil
}

// newTestCM builds a registered connection with a buffered send channel, no
// real websocket behind it.
func newTestCM(connID, token string, sessions session.Validator) (*state.Manager, *ConnectionManager, *types.WebSocketConnection) {
	sm := state.NewManager()
	wsConn := &types.WebSocketConnection{
		ConnectionID: connID,
		Send:         make(chan []byte, 10),
		Session:      &types.SessionContext{Token: token},
	}
	sm.AddClient(wsConn)

	cm := &ConnectionManager{
		wsConn:       wsConn,
		stateManager: sm,
		sessions:     sessions,
		connID:       connID,
	}
	return sm, cm, wsConn
}

// ackEnvelope mirrors the outbound frame with the payload kept raw so each
// test can decode the ack type it expects.
type ackEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readEnvelope(t *testing.T, ws *types.WebSocketConnection) ackEnvelope {
	t.Helper()
	select {
	case msg := <-ws.Send:
		var env ackEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("failed to unmarshal outbound frame: %v", err)
		}
		return env
	case <-time.After(1 * time.Second):
		t.Fatalf("no frame queued on send channel")
		return ackEnvelope{}
	}
}

func decodeJoinAck(t *testing.T, env ackEnvelope) types.JoinAck {
	t.Helper()
	if env.Type != string(types.EventJoinAck) {
		t.Fatalf("expected %s frame, got %s", types.EventJoinAck, env.Type)
	}
	var ack types.JoinAck
	if err := json.Unmarshal(env.Data, &ack); err != nil {
		t.Fatalf("failed to unmarshal join ack: %v", err)
	}
	return ack
}

func decodeMessageAck(t *testing.T, env ackEnvelope) types.MessageAck {
	t.Helper()
	if env.Type != string(types.EventMessageAck) {
		t.Fatalf("expected %s frame, got %s", types.EventMessageAck, env.Type)
	}
	var ack types.MessageAck
	if err := json.Unmarshal(env.Data, &ack); err != nil {
		t.Fatalf("failed to unmarshal message ack: %v", err)
	}
	return ack
}

func rawData(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal test payload: %v", err)
	}
	return data
}
