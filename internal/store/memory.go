package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/voicemcp/internal/domain"
	"github.com/google/uuid"
)

// MemoryStore is a process-local SessionStore.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	now      func() time.Time
	newID    func() string
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*domain.Session),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

var _ SessionStore = (*MemoryStore)(nil)

// Create registers a new waiting session.
func (m *MemoryStore) Create() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.newID()
	for {
		if _, exists := m.sessions[id]; !exists {
			break
		}
		id = m.newID()
	}

	s := domain.NewSession(id, m.now())
	m.sessions[id] = &s
	slog.Debug("Session created", "session_id", id)
	return s
}

// Get returns a snapshot of the session.
func (m *MemoryStore) Get(id string) (domain.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return domain.Session{}, false
	}
	return *s, true
}

// Update mutates a copy of the session and stores it only if fn succeeds.
func (m *MemoryStore) Update(id string, fn func(*domain.Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}

	updated := *s
	if err := fn(&updated); err != nil {
		return err
	}
	m.sessions[id] = &updated
	return nil
}

// Delete removes the session.
func (m *MemoryStore) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Sweep removes sessions whose age exceeds maxAge, whatever their status.
func (m *MemoryStore) Sweep(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, s := range m.sessions {
		if s.Age(now) > maxAge {
			delete(m.sessions, id)
			removed++
			slog.Debug("Session expired", "session_id", id, "status", s.Status)
		}
	}
	return removed
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
