package auth

import (
	"context"
	"sync"
	"time"
)

type refreshEntry struct {
	staffID   string
	expiresAt time.Time
	revoked   bool
}

// MemoryStore keeps staff in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	staff  map[string]Staff
	tokens map[string]refreshEntry
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{staff: map[string]Staff{}, tokens: map[string]refreshEntry{}}
}

func (m *MemoryStore) CreateStaff(_ context.Context, s Staff) (Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.staff {
		if cur.Email == s.Email {
			return Staff{}, ErrStaffExists
		}
	}
	m.staff[s.ID] = s
	return s, nil
}

func (m *MemoryStore) StaffByEmail(_ context.Context, email string) (Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.staff {
		if s.Email == email {
			return s, nil
		}
	}
	return Staff{}, ErrStaffNotFound
}

func (m *MemoryStore) StaffByID(_ context.Context, id string) (Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.staff[id]
	if !ok {
		return Staff{}, ErrStaffNotFound
	}
	return s, nil
}

func (m *MemoryStore) SaveRefreshToken(_ context.Context, staffID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = refreshEntry{staffID: staffID, expiresAt: expiresAt}
	return nil
}

func (m *MemoryStore) ConsumeRefreshToken(_ context.Context, token string, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.tokens[token]
	if !ok || e.revoked || !now.Before(e.expiresAt) {
		return "", ErrTokenRevoked
	}
	e.revoked = true
	m.tokens[token] = e
	return e.staffID, nil
}

func (m *MemoryStore) RevokeRefreshToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.tokens[token]; ok {
		e.revoked = true
		m.tokens[token] = e
	}
	return nil
}
