package intervention

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and demo mode.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (m *MemoryStore) Create(ctx context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Record
	for _, r := range m.records {
		if r.UserID == userID {
			cp := *r
			result = append(result, &cp)
		}
	}
	sortRecords(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) ListAlerts(ctx context.Context, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Record
	for _, r := range m.records {
		if r.Alert {
			cp := *r
			result = append(result, &cp)
		}
	}
	sortRecords(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func sortRecords(rs []*Record) {
	sort.Slice(rs, func(i, j int) bool {
		return rs[i].CreatedAt.After(rs[j].CreatedAt)
	})
}
