package transaction

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and demo mode.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[string]*Transaction
	byProvider map[string]string // provider tx id -> internal id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]*Transaction),
		byProvider: make(map[string]string),
	}
}

func (m *MemoryStore) Create(ctx context.Context, t *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byProvider[t.ProviderTxID]; exists {
		return ErrDuplicate
	}

	cp := *t
	m.byID[t.ID] = &cp
	m.byProvider[t.ProviderTxID] = t.ID
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) GetByProviderID(ctx context.Context, providerTxID string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byProvider[providerTxID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Transaction
	for _, t := range m.byID {
		if t.UserID == userID {
			cp := *t
			result = append(result, &cp)
		}
	}
	sortNewestFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) ListByUserSince(ctx context.Context, userID string, since time.Time) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Transaction
	for _, t := range m.byID {
		if t.UserID == userID && !t.Timestamp.Before(since) {
			cp := *t
			result = append(result, &cp)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

func (m *MemoryStore) ListRecent(ctx context.Context, limit int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Transaction, 0, len(m.byID))
	for _, t := range m.byID {
		cp := *t
		result = append(result, &cp)
	}
	sortNewestFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) ListRecentBefore(ctx context.Context, before time.Time, beforeID string, limit int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Transaction, 0, len(m.byID))
	for _, t := range m.byID {
		if t.Timestamp.After(before) {
			continue
		}
		if t.Timestamp.Equal(before) && t.ID >= beforeID {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}
	sortNewestFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) ActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var users []string
	for _, t := range m.byID {
		if !t.Timestamp.Before(since) && !seen[t.UserID] {
			seen[t.UserID] = true
			users = append(users, t.UserID)
		}
	}
	sort.Strings(users)
	return users, nil
}

func sortNewestFirst(txs []*Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].ID > txs[j].ID
		}
		return txs[i].Timestamp.After(txs[j].Timestamp)
	})
}
