package transactions

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory transaction store for testing and demo mode.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*Transaction
	byKey map[string]string
}

// NewMemoryStore creates a new in-memory transaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]*Transaction),
		byKey: make(map[string]string),
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Create(ctx context.Context, t *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byKey[t.Key]; ok {
		return ErrDuplicateKey
	}
	m.byID[t.ID] = clone(t)
	m.byKey[t.Key] = t.ID
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.byID[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return clone(t), nil
}

func (m *MemoryStore) GetByKey(ctx context.Context, key string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[key]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return clone(m.byID[id]), nil
}

func (m *MemoryStore) Update(ctx context.Context, t *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[t.ID]; !ok {
		return ErrTransactionNotFound
	}
	m.byID[t.ID] = clone(t)
	return nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Transaction
	for _, t := range m.byID {
		if t.BuyerID == userID || t.SellerID == userID {
			result = append(result, clone(t))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func clone(t *Transaction) *Transaction {
	cp := *t
	cp.Timeline = append([]Event(nil), t.Timeline...)
	if t.Shipping != nil {
		s := *t.Shipping
		cp.Shipping = &s
	}
	return &cp
}
