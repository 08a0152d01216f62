package history

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and demo mode.
type MemoryStore struct {
	mu        sync.RWMutex
	profiles  map[string]*Profile
	baselines map[string]*Baseline
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:  make(map[string]*Profile),
		baselines: make(map[string]*Baseline),
	}
}

func (m *MemoryStore) UpsertProfile(ctx context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	now := time.Now()
	if existing, ok := m.profiles[p.UserID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	m.profiles[p.UserID] = &cp
	return nil
}

func (m *MemoryStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) SaveBaselines(ctx context.Context, batch []*Baseline) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range batch {
		cp := *b
		m.baselines[b.UserID] = &cp
	}
	return nil
}

func (m *MemoryStore) GetBaseline(ctx context.Context, userID string) (*Baseline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.baselines[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}
