package deposits

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory deposit store for testing and demo mode.
type MemoryStore struct {
	deposits map[string]*Deposit
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory deposit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{deposits: make(map[string]*Deposit)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Create(ctx context.Context, d *Deposit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ExternalRef != "" {
		for _, existing := range m.deposits {
			if existing.ExternalRef == d.ExternalRef {
				return ErrDuplicateExtRef
			}
		}
	}
	cp := *d
	m.deposits[d.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Deposit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deposits[id]
	if !ok {
		return nil, ErrDepositNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) GetByExternalRef(ctx context.Context, ref string) (*Deposit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.deposits {
		if ref != "" && d.ExternalRef == ref {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrDepositNotFound
}

func (m *MemoryStore) Update(ctx context.Context, d *Deposit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deposits[d.ID]; !ok {
		return ErrDepositNotFound
	}
	cp := *d
	m.deposits[d.ID] = &cp
	return nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Deposit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Deposit
	for _, d := range m.deposits {
		if d.UserID == userID {
			cp := *d
			result = append(result, &cp)
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
