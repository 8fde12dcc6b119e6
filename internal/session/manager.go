package session

import "sync"

// Manager tracks every live session a transport (stdio or HTTP) has
// open. Most deployments run a single session at a time over stdio, but
// the streamable-HTTP surface multiplexes many concurrently, keyed by
// the Mcp-Session-Id header.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create allocates and tracks a new session.
func (m *Manager) Create(clientName, clientInfo string) *Session {
	s := New(clientName, clientInfo)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get looks up a tracked session by ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close drops a session from tracking, e.g. on DELETE /mcp or client
// disconnect.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len reports the number of tracked sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
