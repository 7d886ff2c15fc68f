package session

import (
	"fmt"
	"sync"

	"github.com/azybler/routeviz/pkg/idgen"
)

// Manager owns the live sessions of a server. All sessions share the same
// Options (loader, publisher, logger).
type Manager struct {
	opts        Options
	maxSessions int

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager holding at most maxSessions sessions
// (unlimited when maxSessions <= 0).
func NewManager(opts Options, maxSessions int) *Manager {
	return &Manager{
		opts:        opts.withDefaults(),
		maxSessions: maxSessions,
		sessions:    make(map[string]*Session),
	}
}

// Create starts a new session from rawQuery.
func (m *Manager) Create(rawQuery string) (*Session, error) {
	id, err := idgen.Session()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: limit %d", ErrTooManySessions, m.maxSessions)
	}
	s := New(id, m.opts)
	m.sessions[id] = s
	m.mu.Unlock()
	activeSessions.Inc()

	if err := s.Start(rawQuery); err != nil {
		m.Delete(id)
		return nil, err
	}
	return s, nil
}

// Get looks up a session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Delete closes and forgets a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	activeSessions.Dec()
	s.Close()
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close closes every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		activeSessions.Dec()
		s.Close()
	}
}
