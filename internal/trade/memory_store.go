package trade

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory offer store for testing and demo mode.
type MemoryStore struct {
	offers map[string]*Offer
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory offer store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{offers: make(map[string]*Offer)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Create(ctx context.Context, o *Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers[o.ID] = o.clone()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.offers[id]
	if !ok {
		return nil, ErrOfferNotFound
	}
	return o.clone(), nil
}

func (m *MemoryStore) Update(ctx context.Context, o *Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.offers[o.ID]; !ok {
		return ErrOfferNotFound
	}
	m.offers[o.ID] = o.clone()
	return nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Offer, error) {
	return m.collect(limit, func(o *Offer) bool {
		return o.ProposerID == userID || o.SellerID == userID
	}), nil
}

func (m *MemoryStore) ListOpenByProduct(ctx context.Context, productID string) ([]*Offer, error) {
	return m.collect(0, func(o *Offer) bool {
		return o.ProductID == productID && o.State.IsOpen()
	}), nil
}

func (m *MemoryStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*Offer, error) {
	return m.collect(limit, func(o *Offer) bool {
		return o.State.IsOpen() && o.ExpiresAt != nil && !o.ExpiresAt.After(now)
	}), nil
}

// collect returns matching offers newest first. limit <= 0 means all.
func (m *MemoryStore) collect(limit int, match func(*Offer) bool) []*Offer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Offer
	for _, o := range m.offers {
		if match(o) {
			result = append(result, o.clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
