package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/merakimarket/meraki/internal/apperr"
	"github.com/merakimarket/meraki/internal/idgen"
	"github.com/merakimarket/meraki/internal/pagination"
)

// MemoryStore is an in-memory ledger store for development and testing
type MemoryStore struct {
	balances   map[string]*Balance
	entries    []*Entry
	references map[string]bool // type + reference
	mu         sync.RWMutex
}

// NewMemoryStore creates a new in-memory ledger store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances:   make(map[string]*Balance),
		entries:    make([]*Entry, 0),
		references: make(map[string]bool),
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if bal, ok := m.balances[userID]; ok {
		cp := *bal
		return &cp, nil
	}
	return &Balance{UserID: userID, UpdatedAt: time.Now()}, nil
}

func (m *MemoryStore) Credit(ctx context.Context, userID string, amount int64, entryType EntryType, reference, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := string(entryType) + ":" + reference
	if reference != "" && m.references[key] {
		return ErrDuplicateReference
	}

	bal := m.balanceLocked(userID)
	bal.Available += amount
	bal.TotalIn += amount
	bal.UpdatedAt = time.Now()

	m.appendLocked(userID, entryType, amount, reference, description)
	return nil
}

func (m *MemoryStore) EscrowLock(ctx context.Context, userID string, amount int64, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal := m.balanceLocked(userID)
	if bal.Available < amount {
		return &apperr.InsufficientFundsError{Required: amount, Available: bal.Available}
	}
	bal.Available -= amount
	bal.Escrowed += amount
	bal.UpdatedAt = time.Now()

	m.appendLocked(userID, EntryEscrowLock, amount, reference, "escrow_locked")
	return nil
}

func (m *MemoryStore) RefundEscrow(ctx context.Context, userID string, amount int64, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal := m.balanceLocked(userID)
	if bal.Escrowed < amount {
		return fmt.Errorf("refund %d for %s: %w", amount, userID, ErrEscrowShortfall)
	}
	bal.Escrowed -= amount
	bal.Available += amount
	bal.UpdatedAt = time.Now()

	m.appendLocked(userID, EntryEscrowRefund, amount, reference, "escrow_refunded")
	return nil
}

func (m *MemoryStore) SettleEscrow(ctx context.Context, s Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.Reference != "" && m.references[string(EntryEscrowSettle)+":"+s.Reference] {
		return ErrDuplicateReference
	}
	buyer := m.balanceLocked(s.BuyerID)
	if buyer.Escrowed < s.Amount {
		return fmt.Errorf("settle %d for %s: %w", s.Amount, s.BuyerID, ErrEscrowShortfall)
	}
	now := time.Now()

	buyer.Escrowed -= s.Amount
	buyer.TotalOut += s.Amount
	buyer.UpdatedAt = now
	m.appendLocked(s.BuyerID, EntryEscrowSettle, s.Amount, s.Reference, "escrow_settled")

	if net := s.Net(); net > 0 {
		seller := m.balanceLocked(s.SellerID)
		seller.Available += net
		seller.TotalIn += net
		seller.UpdatedAt = now
		m.appendLocked(s.SellerID, EntryEscrowReceive, net, s.Reference, "escrow_payment_received")
	}

	if s.Fee > 0 {
		platform := m.balanceLocked(s.PlatformID)
		platform.Available += s.Fee
		platform.TotalIn += s.Fee
		platform.UpdatedAt = now
		m.appendLocked(s.PlatformID, EntryPlatformFee, s.Fee, s.Reference, "platform_fee")
	}
	return nil
}

func (m *MemoryStore) GetHistory(ctx context.Context, userID string, limit int, before *pagination.Cursor) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Entry
	for i := len(m.entries) - 1; i >= 0 && len(result) < limit; i-- {
		e := m.entries[i]
		if e.UserID != userID || !before.After(e.CreatedAt, e.ID) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) HasReference(ctx context.Context, entryType EntryType, reference string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.references[string(entryType)+":"+reference], nil
}

func (m *MemoryStore) Totals(ctx context.Context) (*Totals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t := &Totals{}
	for _, bal := range m.balances {
		t.Available += bal.Available
		t.Escrowed += bal.Escrowed
	}
	for _, e := range m.entries {
		if e.Type == EntryDeposit {
			t.Deposited += e.Amount
		}
	}
	return t, nil
}

func (m *MemoryStore) balanceLocked(userID string) *Balance {
	bal, ok := m.balances[userID]
	if !ok {
		bal = &Balance{UserID: userID}
		m.balances[userID] = bal
	}
	return bal
}

func (m *MemoryStore) appendLocked(userID string, t EntryType, amount int64, reference, description string) {
	m.entries = append(m.entries, &Entry{
		ID:          idgen.Sortable("led_"),
		UserID:      userID,
		Type:        t,
		Amount:      amount,
		Reference:   reference,
		Description: description,
		CreatedAt:   time.Now(),
	})
	if reference != "" {
		m.references[string(t)+":"+reference] = true
	}
}
