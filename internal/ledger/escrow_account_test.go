package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscrowAccount_SettleCreditsPlatform(t *testing.T) {
	l := newFundedLedger(t, map[string]int64{"buyer": 100000})
	acct := l.ForEscrow("platform")
	ctx := context.Background()

	require.NoError(t, acct.EscrowLock(ctx, "buyer", 100000, "esc_1"))
	require.NoError(t, acct.SettleEscrow(ctx, "buyer", "seller", 100000, 10000, "esc_1"))

	buyer, _ := l.GetBalance(ctx, "buyer")
	seller, _ := l.GetBalance(ctx, "seller")
	platform, _ := l.GetBalance(ctx, "platform")
	assert.Equal(t, int64(0), buyer.Available+buyer.Escrowed)
	assert.Equal(t, int64(90000), seller.Available)
	assert.Equal(t, int64(10000), platform.Available)
}

func TestEscrowAccount_Refund(t *testing.T) {
	l := newFundedLedger(t, map[string]int64{"buyer": 5000})
	acct := l.ForEscrow("platform")
	ctx := context.Background()

	require.NoError(t, acct.EscrowLock(ctx, "buyer", 5000, "esc_2"))
	require.NoError(t, acct.RefundEscrow(ctx, "buyer", 5000, "esc_2"))

	bal, _ := l.GetBalance(ctx, "buyer")
	assert.Equal(t, int64(5000), bal.Available)
	assert.Equal(t, int64(0), bal.Escrowed)
}
