//go:build integration

package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merakimarket/meraki/internal/apperr"
	"github.com/merakimarket/meraki/internal/testutil"
)

func setupTestStore(t *testing.T) (*PostgresStore, func()) {
	t.Helper()
	db, cleanup := testutil.PGTest(t)
	return NewPostgresStore(db), cleanup
}

func TestPostgres_CreditAndGetBalance(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Credit(ctx, "alice", 10500, EntryDeposit, "dep_1", "deposit"))

	bal, err := store.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(10500), bal.Available)
	assert.Equal(t, int64(10500), bal.TotalIn)

	err = store.Credit(ctx, "alice", 10500, EntryDeposit, "dep_1", "deposit")
	assert.ErrorIs(t, err, ErrDuplicateReference)

	has, err := store.HasReference(ctx, EntryDeposit, "dep_1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestPostgres_Totals(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	totals, err := store.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, Totals{}, *totals)

	require.NoError(t, store.Credit(ctx, "alice", 50000, EntryDeposit, "dep_1", "deposit"))
	require.NoError(t, store.Credit(ctx, "bob", 20000, EntryDeposit, "dep_2", "deposit"))
	require.NoError(t, store.EscrowLock(ctx, "alice", 15000, "off_1"))

	totals, err = store.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(55000), totals.Available)
	assert.Equal(t, int64(15000), totals.Escrowed)
	assert.Equal(t, int64(70000), totals.Deposited)
	assert.Zero(t, totals.Drift())
}

func TestPostgres_UnknownUserHasZeroBalance(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	bal, err := store.GetBalance(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.Available)
	assert.Equal(t, int64(0), bal.Escrowed)
}

func TestPostgres_EscrowLifecycle(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Credit(ctx, "buyer", 100000, EntryDeposit, "dep_b", "deposit"))
	require.NoError(t, store.EscrowLock(ctx, "buyer", 100000, "off_1"))

	err := store.EscrowLock(ctx, "buyer", 1, "off_2")
	var funds *apperr.InsufficientFundsError
	require.True(t, errors.As(err, &funds))
	assert.Equal(t, int64(0), funds.Available)

	require.NoError(t, store.SettleEscrow(ctx, Settlement{
		BuyerID: "buyer", SellerID: "seller", PlatformID: "platform",
		Amount: 100000, Fee: 10000, Reference: "off_1",
	}))

	buyer, _ := store.GetBalance(ctx, "buyer")
	seller, _ := store.GetBalance(ctx, "seller")
	platform, _ := store.GetBalance(ctx, "platform")
	assert.Equal(t, int64(0), buyer.Escrowed)
	assert.Equal(t, int64(90000), seller.Available)
	assert.Equal(t, int64(10000), platform.Available)

	history, err := store.GetHistory(ctx, "buyer", 10, nil)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, EntryEscrowSettle, history[0].Type)

	require.NoError(t, store.Credit(ctx, "buyer", 5000, EntryDeposit, "dep_b2", "deposit"))
	require.NoError(t, store.EscrowLock(ctx, "buyer", 5000, "off_2"))
	err = store.SettleEscrow(ctx, Settlement{
		BuyerID: "buyer", SellerID: "seller", PlatformID: "platform",
		Amount: 5000, Fee: 500, Reference: "off_1",
	})
	assert.ErrorIs(t, err, ErrDuplicateReference)
	buyer, _ = store.GetBalance(ctx, "buyer")
	seller, _ = store.GetBalance(ctx, "seller")
	assert.Equal(t, int64(5000), buyer.Escrowed, "a repeated settlement rolls back")
	assert.Equal(t, int64(90000), seller.Available)
}

func TestPostgres_RefundShortfall(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Credit(ctx, "alice", 5000, EntryDeposit, "dep_a", "deposit"))
	require.NoError(t, store.EscrowLock(ctx, "alice", 5000, "off_1"))
	assert.ErrorIs(t, store.RefundEscrow(ctx, "alice", 5001, "off_1"), ErrEscrowShortfall)
	require.NoError(t, store.RefundEscrow(ctx, "alice", 5000, "off_1"))

	bal, _ := store.GetBalance(ctx, "alice")
	assert.Equal(t, int64(5000), bal.Available)
}

func TestPostgres_ConcurrentLocksThroughLedger(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	l := New(store)

	require.NoError(t, l.Deposit(ctx, "alice", 10000, "dep_a"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.EscrowLock(ctx, "alice", 1000, "off")
		}()
	}
	wg.Wait()

	bal, _ := store.GetBalance(ctx, "alice")
	assert.Equal(t, int64(0), bal.Available)
	assert.Equal(t, int64(10000), bal.Escrowed)
}
