package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merakimarket/meraki/internal/apperr"
)

func newFundedLedger(t *testing.T, balances map[string]int64) *Ledger {
	t.Helper()
	l := New(NewMemoryStore())
	for user, amt := range balances {
		require.NoError(t, l.Deposit(context.Background(), user, amt, "seed_"+user))
	}
	return l
}

func TestDeposit_Idempotent(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, l.Deposit(ctx, "alice", 50000, "dep_1"))
	err := l.Deposit(ctx, "alice", 50000, "dep_1")
	assert.ErrorIs(t, err, ErrDuplicateReference)
	assert.True(t, apperr.IsAlreadyFinalized(err))

	bal, err := l.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(50000), bal.Available)
	assert.Equal(t, int64(50000), bal.TotalIn)
}

func TestDeposit_InvalidAmount(t *testing.T) {
	l := New(NewMemoryStore())
	err := l.Deposit(context.Background(), "alice", 0, "dep_0")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestEscrowLock_MovesFunds(t *testing.T) {
	l := newFundedLedger(t, map[string]int64{"alice": 10000})
	ctx := context.Background()

	require.NoError(t, l.EscrowLock(ctx, "alice", 8000, "off_1"))

	bal, _ := l.GetBalance(ctx, "alice")
	assert.Equal(t, int64(2000), bal.Available)
	assert.Equal(t, int64(8000), bal.Escrowed)
}

func TestEscrowLock_InsufficientFunds(t *testing.T) {
	l := newFundedLedger(t, map[string]int64{"alice": 5000})
	ctx := context.Background()

	err := l.EscrowLock(ctx, "alice", 8000, "off_1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInsufficientFunds))

	var funds *apperr.InsufficientFundsError
	require.True(t, errors.As(err, &funds))
	assert.Equal(t, int64(8000), funds.Required)
	assert.Equal(t, int64(5000), funds.Available)

	bal, _ := l.GetBalance(ctx, "alice")
	assert.Equal(t, int64(5000), bal.Available)
	assert.Equal(t, int64(0), bal.Escrowed)
}

func TestRefundEscrow(t *testing.T) {
	l := newFundedLedger(t, map[string]int64{"alice": 10000})
	ctx := context.Background()

	require.NoError(t, l.EscrowLock(ctx, "alice", 6000, "off_1"))
	require.NoError(t, l.RefundEscrow(ctx, "alice", 6000, "off_1"))

	bal, _ := l.GetBalance(ctx, "alice")
	assert.Equal(t, int64(10000), bal.Available)
	assert.Equal(t, int64(0), bal.Escrowed)

	err := l.RefundEscrow(ctx, "alice", 1, "off_1")
	assert.ErrorIs(t, err, ErrEscrowShortfall)
}

func TestSettleEscrow_SplitsFee(t *testing.T) {
	l := newFundedLedger(t, map[string]int64{"buyer": 100000})
	ctx := context.Background()

	require.NoError(t, l.EscrowLock(ctx, "buyer", 100000, "off_1"))
	require.NoError(t, l.SettleEscrow(ctx, Settlement{
		BuyerID:    "buyer",
		SellerID:   "seller",
		PlatformID: "platform",
		Amount:     100000,
		Fee:        10000,
		Reference:  "off_1",
	}))

	buyer, _ := l.GetBalance(ctx, "buyer")
	seller, _ := l.GetBalance(ctx, "seller")
	platform, _ := l.GetBalance(ctx, "platform")

	assert.Equal(t, int64(0), buyer.Available)
	assert.Equal(t, int64(0), buyer.Escrowed)
	assert.Equal(t, int64(100000), buyer.TotalOut)
	assert.Equal(t, int64(90000), seller.Available)
	assert.Equal(t, int64(10000), platform.Available)
}

func TestSettleEscrow_Rejections(t *testing.T) {
	l := newFundedLedger(t, map[string]int64{"buyer": 1000})
	ctx := context.Background()
	require.NoError(t, l.EscrowLock(ctx, "buyer", 1000, "off_1"))

	tests := []struct {
		name string
		s    Settlement
		want error
	}{
		{"fee above amount", Settlement{BuyerID: "buyer", SellerID: "s", PlatformID: "p", Amount: 100, Fee: 101}, apperr.ErrValidation},
		{"negative fee", Settlement{BuyerID: "buyer", SellerID: "s", PlatformID: "p", Amount: 100, Fee: -1}, apperr.ErrValidation},
		{"zero amount", Settlement{BuyerID: "buyer", SellerID: "s", PlatformID: "p"}, ErrInvalidAmount},
		{"self settlement", Settlement{BuyerID: "buyer", SellerID: "buyer", PlatformID: "p", Amount: 100}, apperr.ErrForbidden},
		{"more than escrowed", Settlement{BuyerID: "buyer", SellerID: "s", PlatformID: "p", Amount: 1001}, ErrEscrowShortfall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, l.SettleEscrow(ctx, tt.s), tt.want)
		})
	}

	bal, _ := l.GetBalance(ctx, "buyer")
	assert.Equal(t, int64(1000), bal.Escrowed, "rejected settlements must not move funds")
}

func TestGetHistory_NewestFirst(t *testing.T) {
	l := newFundedLedger(t, map[string]int64{"alice": 10000})
	ctx := context.Background()
	require.NoError(t, l.EscrowLock(ctx, "alice", 3000, "off_1"))
	require.NoError(t, l.RefundEscrow(ctx, "alice", 3000, "off_1"))

	entries, err := l.GetHistory(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, EntryEscrowRefund, entries[0].Type)
	assert.Equal(t, EntryEscrowLock, entries[1].Type)
	assert.Equal(t, EntryDeposit, entries[2].Type)

	entries, err = l.GetHistory(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestConcurrentEscrowLock_NeverOverdraws(t *testing.T) {
	l := newFundedLedger(t, map[string]int64{"alice": 10000})
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.EscrowLock(ctx, "alice", 1000, "off"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	bal, _ := l.GetBalance(ctx, "alice")
	assert.Equal(t, int64(0), bal.Available)
	assert.Equal(t, int64(10000), bal.Escrowed)
}

func TestSettleEscrow_ReferencePaidOnce(t *testing.T) {
	l := newFundedLedger(t, map[string]int64{"buyer": 20000})
	ctx := context.Background()
	require.NoError(t, l.EscrowLock(ctx, "buyer", 10000, "esc_1"))
	require.NoError(t, l.EscrowLock(ctx, "buyer", 10000, "esc_2"))

	s := Settlement{BuyerID: "buyer", SellerID: "seller", PlatformID: "platform", Amount: 10000, Fee: 1000, Reference: "esc_1"}
	require.NoError(t, l.SettleEscrow(ctx, s))

	err := l.SettleEscrow(ctx, s)
	assert.ErrorIs(t, err, ErrDuplicateReference)
	assert.True(t, apperr.IsAlreadyFinalized(err))

	buyer, _ := l.GetBalance(ctx, "buyer")
	seller, _ := l.GetBalance(ctx, "seller")
	assert.Equal(t, int64(10000), buyer.Escrowed, "esc_2 stays escrowed")
	assert.Equal(t, int64(9000), seller.Available)

	assert.ErrorIs(t, l.RefundEscrow(ctx, "buyer", 10000, "esc_1"), ErrReferenceSettled)
	require.NoError(t, l.RefundEscrow(ctx, "buyer", 10000, "esc_2"))
}

func TestConcurrentSettlements_CrossingParties(t *testing.T) {
	l := newFundedLedger(t, map[string]int64{"alice": 50000, "bob": 50000})
	ctx := context.Background()
	require.NoError(t, l.EscrowLock(ctx, "alice", 50000, "a"))
	require.NoError(t, l.EscrowLock(ctx, "bob", 50000, "b"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.SettleEscrow(ctx, Settlement{BuyerID: "alice", SellerID: "bob", PlatformID: "platform", Amount: 5000, Fee: 500}))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, l.SettleEscrow(ctx, Settlement{BuyerID: "bob", SellerID: "alice", PlatformID: "platform", Amount: 5000, Fee: 500}))
		}()
	}
	wg.Wait()

	alice, _ := l.GetBalance(ctx, "alice")
	bob, _ := l.GetBalance(ctx, "bob")
	platform, _ := l.GetBalance(ctx, "platform")
	assert.Equal(t, int64(45000), alice.Available)
	assert.Equal(t, int64(45000), bob.Available)
	assert.Equal(t, int64(10000), platform.Available)
	assert.Equal(t, int64(0), alice.Escrowed+bob.Escrowed)
}

func TestTotals_ConservedAcrossSettlement(t *testing.T) {
	l := newFundedLedger(t, map[string]int64{"buyer": 100000, "seller": 20000})
	ctx := context.Background()

	require.NoError(t, l.EscrowLock(ctx, "buyer", 60000, "off_1"))
	require.NoError(t, l.EscrowLock(ctx, "buyer", 30000, "off_2"))
	require.NoError(t, l.SettleEscrow(ctx, Settlement{
		BuyerID:    "buyer",
		SellerID:   "seller",
		PlatformID: "platform",
		Amount:     60000,
		Fee:        6000,
		Reference:  "off_1",
	}))

	totals, err := l.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(120000), totals.Deposited)
	assert.Equal(t, int64(30000), totals.Escrowed)
	assert.Equal(t, int64(90000), totals.Available)
	assert.Zero(t, totals.Drift())
}

func TestHistoryPage_WalksAllEntries(t *testing.T) {
	l := newFundedLedger(t, map[string]int64{"alice": 10000})
	ctx := context.Background()
	for i := range 4 {
		ref := "off_" + string(rune('a'+i))
		require.NoError(t, l.EscrowLock(ctx, "alice", 1000, ref))
	}

	var seen []string
	cursor := ""
	for pages := 0; ; pages++ {
		require.Less(t, pages, 5, "paging did not terminate")
		page, err := l.HistoryPage(ctx, "alice", 2, cursor)
		require.NoError(t, err)
		for _, e := range page.Entries {
			seen = append(seen, e.ID)
		}
		if !page.HasMore {
			assert.Empty(t, page.NextCursor)
			break
		}
		cursor = page.NextCursor
	}

	require.Len(t, seen, 5)
	assert.Len(t, uniq(seen), 5)
}

func TestHistoryPage_InvalidCursor(t *testing.T) {
	l := newFundedLedger(t, nil)
	_, err := l.HistoryPage(context.Background(), "alice", 10, "not a cursor")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func uniq(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
