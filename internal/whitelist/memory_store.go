package whitelist

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and demo mode.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

func (m *MemoryStore) Create(ctx context.Context, e *Entry) error {
	if e.Pattern == "" {
		return ErrEmptyPattern
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries[e.ID] = &cp
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return ErrNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, userID string) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Entry
	for _, e := range m.entries {
		if e.UserID == userID || e.UserID == "" {
			cp := *e
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryStore) Patterns(ctx context.Context, userID string) ([]string, error) {
	entries, err := m.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	patterns := make([]string, 0, len(entries))
	for _, e := range entries {
		patterns = append(patterns, e.Pattern)
	}
	return patterns, nil
}
