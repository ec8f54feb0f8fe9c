package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore provides an in-process session store guarded by an RWMutex.
// Tests and single-node development use it in place of Redis.
type MemoryStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[string]memoryEntry
}

type memoryEntry struct {
	data      Data
	expiresAt time.Time
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		sessions: make(map[string]memoryEntry),
	}
}

// Get returns a copy of the stored session so callers cannot mutate shared
// state without a Put.
func (m *MemoryStore) Get(_ context.Context, id string) (*Data, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.sessions[id]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrNotFound
	}
	data := entry.data
	return &data, nil
}

// Put inserts or replaces a session and refreshes its expiry.
func (m *MemoryStore) Put(_ context.Context, id string, data *Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = memoryEntry{data: *data, expiresAt: time.Now().Add(m.ttl)}
	return nil
}

// Delete removes a session.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}
