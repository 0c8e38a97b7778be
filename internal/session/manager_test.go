package session

import (
	"testing"
	"time"
)

func TestNewManagerDefaultsTTL(t *testing.T) {
	tests := []struct {
		name string
		ttl  time.Duration
		want time.Duration
	}{
		{name: "custom ttl", ttl: 12 * time.Hour, want: 12 * time.Hour},
		{name: "zero ttl uses default", ttl: 0, want: 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.ttl)
			if m.ttl != tt.want {
				t.Errorf("ttl = %v, want %v", m.ttl, tt.want)
			}
		})
	}
}

func TestCreatePermitAllowed(t *testing.T) {
	m := NewManager(time.Hour)
	s, err := m.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID == "" {
		t.Fatal("session id must be set")
	}

	m.Permit(s.ID, "counter")

	if !m.Allowed(s.ID, "counter") {
		t.Error("permitted module must be allowed")
	}
	if m.Allowed(s.ID, "profile") {
		t.Error("unpermitted module must be refused")
	}
	if m.Allowed("no-such-session", "counter") {
		t.Error("unknown session must be refused")
	}
}

func TestAllowedRefusesExpired(t *testing.T) {
	m := NewManager(50 * time.Millisecond)
	s, _ := m.Create()
	m.Permit(s.ID, "counter")

	time.Sleep(80 * time.Millisecond)

	if m.Allowed(s.ID, "counter") {
		t.Error("expired session must be refused")
	}
	if m.Count() != 0 {
		t.Errorf("expired session must be dropped, %d remain", m.Count())
	}
}

func TestDelete(t *testing.T) {
	m := NewManager(time.Hour)
	s, _ := m.Create()
	m.Permit(s.ID, "counter")

	m.Delete(s.ID)

	if m.Allowed(s.ID, "counter") {
		t.Error("deleted session must be refused")
	}
}

func TestCleanupExpired(t *testing.T) {
	m := NewManager(50 * time.Millisecond)
	fresh, _ := m.Create()
	stale, _ := m.Create()

	// Backdate one session past the TTL.
	m.mu.Lock()
	m.sessions[stale.ID].LastAccess = time.Now().Add(-time.Minute)
	m.mu.Unlock()

	removed := m.CleanupExpired()

	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if m.Count() != 1 {
		t.Errorf("count = %d, want 1", m.Count())
	}
	m.Permit(fresh.ID, "counter")
	if !m.Allowed(fresh.ID, "counter") {
		t.Error("fresh session must survive cleanup")
	}
}
