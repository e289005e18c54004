package state

import (
	"sync"

	"chatrelay/internal/types"
)

const defaultMessageBuffer = 100

// Entry is one element of a registry snapshot: a live connection and the
// identity bound to it, or nil while the connection has not joined yet.
type Entry struct {
	ConnectionID string
	Client       *types.WebSocketConnection
	Identity     *types.Identity
}

// Manager is the connection registry: the single piece of shared mutable
// state in the relay. All reads and writes of the live-connection set go
// through its mutex; message normalization and identity resolution happen
// elsewhere and never hold this lock.
type Manager struct {
	mu         sync.RWMutex
	clients    map[string]*types.WebSocketConnection
	identities map[string]types.Identity
	messages   chan *types.ChatMessage
	dropped    int
}

func NewManager() *Manager {
	return NewManagerWithBuffer(defaultMessageBuffer)
}

func NewManagerWithBuffer(buffer int) *Manager {
	return &Manager{
		clients:    make(map[string]*types.WebSocketConnection),
		identities: make(map[string]types.Identity),
		messages:   make(chan *types.ChatMessage, buffer),
	}
}

// AddClient registers an open transport. Membership in the registry is
// exactly the set of connections with an open transport.
func (m *Manager) AddClient(conn *types.WebSocketConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[conn.ConnectionID] = conn
}

// RemoveClient drops a connection and any identity bound to it. Called
// unconditionally on transport close; an in-flight broadcast keeps working
// off its own snapshot.
func (m *Manager) RemoveClient(connectionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, connectionID)
	delete(m.identities, connectionID)
}

func (m *Manager) GetClient(connectionID string) (*types.WebSocketConnection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, exists := m.clients[connectionID]
	return client, exists
}

// Bind attaches an identity to a registered connection. A connection holds
// at most one identity for its lifetime: rebinding with the identical
// identity succeeds idempotently, anything else is ErrAlreadyBound.
func (m *Manager) Bind(connectionID string, identity types.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.clients[connectionID]; !exists {
		return ErrClientNotFound
	}
	if bound, exists := m.identities[connectionID]; exists {
		if bound == identity {
			return nil
		}
		return ErrAlreadyBound
	}
	m.identities[connectionID] = identity
	return nil
}

// Identity returns the identity bound to a connection, if any.
func (m *Manager) Identity(connectionID string) (types.Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	identity, exists := m.identities[connectionID]
	return identity, exists
}

// Snapshot returns a point-in-time copy of the live-connection set for
// fan-out iteration. A connection closing mid-broadcast fails only its own
// delivery attempt.
func (m *Manager) Snapshot() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]Entry, 0, len(m.clients))
	for id, client := range m.clients {
		entry := Entry{ConnectionID: id, Client: client}
		if identity, exists := m.identities[id]; exists {
			identityCopy := identity
			entry.Identity = &identityCopy
		}
		entries = append(entries, entry)
	}
	return entries
}

// BroadcastMessage queues a message for fan-out. The send never blocks: when
// the buffer is full the message is dropped and the caller gets
// ErrBroadcastBufferFull so it can report the failure to its own client.
func (m *Manager) BroadcastMessage(msg *types.ChatMessage) error {
	select {
	case m.messages <- msg:
		return nil
	default:
		m.mu.Lock()
		m.dropped++
		m.mu.Unlock()
		return ErrBroadcastBufferFull
	}
}

// Messages exposes the broadcast queue to the fan-out loop.
func (m *Manager) Messages() <-chan *types.ChatMessage {
	return m.messages
}

func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *Manager) GetStats() types.ServerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return types.ServerStats{
		ConnectedClients:      len(m.clients),
		BoundIdentities:       len(m.identities),
		DroppedBroadcasts:     m.dropped,
		MessageBufferLength:   len(m.messages),
		MessageBufferCapacity: cap(m.messages),
	}
}
