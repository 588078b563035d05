package completion

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of the Store interface. It backs
// tests, and it is the degradation target when durable storage is
// unavailable: completions tracked here last for the session only.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

func recordKey(userID, promptID string) string {
	return userID + "\x00" + promptID
}

// Get returns the record for (userID, promptID), sweeping it lazily if its
// window has permanently passed.
func (m *MemoryStore) Get(ctx context.Context, userID, promptID string) (*Record, error) {
	key := recordKey(userID, promptID)

	m.mu.RLock()
	rec, ok := m.records[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	if m.now().After(rec.ExpiresAt) {
		m.mu.Lock()
		delete(m.records, key)
		m.mu.Unlock()
		return nil, nil
	}
	return &rec, nil
}

// Set stores a record, replacing any existing one for the same keys.
func (m *MemoryStore) Set(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordKey(rec.UserID, rec.PromptID)] = rec
	return nil
}

// Delete removes a record. Idempotent.
func (m *MemoryStore) Delete(ctx context.Context, userID, promptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, recordKey(userID, promptID))
	return nil
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}
