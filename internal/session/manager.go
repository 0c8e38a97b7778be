// Package session tracks issued page sessions: every server-rendered page
// gets one, recording which modules it was rendered with. A join is only
// accepted when its token's session still exists and permits the module.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Session is one rendered page.
type Session struct {
	ID         string
	CreatedAt  time.Time
	LastAccess time.Time
	modules    map[string]bool
}

// Manager owns the session table.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewManager creates a manager. A zero ttl defaults to 24 hours.
func NewManager(ttl time.Duration) *Manager {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

// Create starts a session for a freshly rendered page.
func (m *Manager) Create() (*Session, error) {
	id, err := generateID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	now := time.Now()
	s := &Session{
		ID:         id,
		CreatedAt:  now,
		LastAccess: now,
		modules:    make(map[string]bool),
	}
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s, nil
}

// Permit records that a module was rendered into the session's page.
func (m *Manager) Permit(sessionID, module string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		s.modules[module] = true
		s.LastAccess = time.Now()
	}
}

// Allowed reports whether the session exists, is unexpired, and permits the
// module. A hit refreshes the session's access time; an expired session is
// dropped on the spot.
func (m *Manager) Allowed(sessionID, module string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	if time.Since(s.LastAccess) > m.ttl {
		delete(m.sessions, sessionID)
		return false
	}
	if !s.modules[module] {
		return false
	}
	s.LastAccess = time.Now()
	return true
}

// Delete removes a session.
func (m *Manager) Delete(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CleanupExpired drops sessions idle past the TTL, returning how many went.
func (m *Manager) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	cutoff := time.Now().Add(-m.ttl)
	for id, s := range m.sessions {
		if s.LastAccess.Before(cutoff) {
			delete(m.sessions, id)
			count++
		}
	}
	return count
}

func generateID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
