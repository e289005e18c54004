package state_test

import (
	"testing"

	"chatrelay/internal/state"
	"chatrelay/internal/types"
)

func newConn(id string) *types.WebSocketConnection {
	return &types.WebSocketConnection{
		ConnectionID: id,
		Send:         make(chan []byte, 10),
		Session:      &types.SessionContext{},
	}
}

func TestBind_OncePerConnection(t *testing.T) {
	m := state.NewManager()
	m.AddClient(newConn("c1"))

	alice := types.Identity{UserID: "u1", DisplayName: "Alice"}
	if err := m.Bind("c1", alice); err != nil {
		t.Fatalf("first bind failed: %v", err)
	}

	// Rebinding the identical identity is an idempotent success.
	if err := m.Bind("c1", alice); err != nil {
		t.Fatalf("idempotent rebind failed: %v", err)
	}

	// A different identity must be rejected.
	bob := types.Identity{UserID: "u2", DisplayName: "Bob"}
	if err := m.Bind("c1", bob); err != state.ErrAlreadyBound {
		t.Fatalf("expected ErrAlreadyBound, got %v", err)
	}

	got, ok := m.Identity("c1")
	if !ok || got != alice {
		t.Fatalf("expected bound identity %v, got %v (ok=%v)", alice, got, ok)
	}
}

func TestBind_UnknownConnection(t *testing.T) {
	m := state.NewManager()
	err := m.Bind("missing", types.Identity{UserID: "u1", DisplayName: "Alice"})
	if err != state.ErrClientNotFound {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}
}

func TestRemoveClient_DropsIdentityAndMembership(t *testing.T) {
	m := state.NewManager()
	m.AddClient(newConn("c1"))
	m.AddClient(newConn("c2"))
	if err := m.Bind("c1", types.Identity{UserID: "u1", DisplayName: "Alice"}); err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	m.RemoveClient("c1")

	if _, ok := m.GetClient("c1"); ok {
		t.Fatalf("removed client still present")
	}
	if _, ok := m.Identity("c1"); ok {
		t.Fatalf("identity survived removal")
	}

	snap := m.Snapshot()
	if len(snap) != 1 || snap[0].ConnectionID != "c2" {
		t.Fatalf("expected snapshot with only c2, got %+v", snap)
	}
}

func TestSnapshot_IncludesUnboundConnections(t *testing.T) {
	m := state.NewManager()
	m.AddClient(newConn("c1"))
	m.AddClient(newConn("c2"))
	if err := m.Bind("c1", types.Identity{UserID: "u1", DisplayName: "Alice"}); err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	snap := m.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(snap))
	}
	for _, e := range snap {
		switch e.ConnectionID {
		case "c1":
			if e.Identity == nil || e.Identity.UserID != "u1" {
				t.Fatalf("expected c1 bound to u1, got %+v", e.Identity)
			}
		case "c2":
			if e.Identity != nil {
				t.Fatalf("expected c2 unbound, got %+v", e.Identity)
			}
		default:
			t.Fatalf("unexpected entry %q", e.ConnectionID)
		}
	}
}

func TestBroadcastMessage_DropsWhenBufferFull(t *testing.T) {
	m := state.NewManagerWithBuffer(1)

	first := &types.ChatMessage{Text: "one"}
	if err := m.BroadcastMessage(first); err != nil {
		t.Fatalf("first broadcast failed: %v", err)
	}
	if err := m.BroadcastMessage(&types.ChatMessage{Text: "two"}); err != state.ErrBroadcastBufferFull {
		t.Fatalf("expected ErrBroadcastBufferFull, got %v", err)
	}

	stats := m.GetStats()
	if stats.DroppedBroadcasts != 1 {
		t.Fatalf("expected 1 dropped broadcast, got %d", stats.DroppedBroadcasts)
	}

	if got := <-m.Messages(); got != first {
		t.Fatalf("expected queued message to survive the drop")
	}
}

func TestGetStats_Counts(t *testing.T) {
	m := state.NewManager()
	m.AddClient(newConn("c1"))
	m.AddClient(newConn("c2"))
	if err := m.Bind("c2", types.Identity{UserID: "u2", DisplayName: "Bob"}); err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	stats := m.GetStats()
	if stats.ConnectedClients != 2 {
		t.Fatalf("expected 2 connected clients, got %d", stats.ConnectedClients)
	}
	if stats.BoundIdentities != 1 {
		t.Fatalf("expected 1 bound identity, got %d", stats.BoundIdentities)
	}
	if stats.MessageBufferCapacity == 0 {
		t.Fatalf("expected non-zero buffer capacity")
	}
}
