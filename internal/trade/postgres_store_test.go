//go:build integration

package trade

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merakimarket/meraki/internal/testutil"
)

func TestPostgresStore_Lifecycle(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `
		INSERT INTO products (id, seller_id, title, trade_value, allow_trade)
		VALUES ('prod_pg1', 'alice', 'Film camera', 8000, TRUE)`)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Microsecond)
	exp := now.Add(time.Hour)
	offer := &Offer{
		ID: "off_pg1", ProductID: "prod_pg1", ProductTitle: "Film camera",
		ProposerID: "bob", SellerID: "alice",
		Item:         OfferedItem{Name: "Vinyl", Value: 5000, Images: []string{"https://img.example/v.jpg"}},
		EscrowAmount: 8000, EscrowTicketID: "esc_1",
		ExpiresAt: &exp, CreatedAt: now,
	}
	offer.setState(StateUnconfirmed, now)
	require.NoError(t, store.Create(ctx, offer))

	got, err := store.Get(ctx, "off_pg1")
	require.NoError(t, err)
	assert.Equal(t, StateUnconfirmed, got.State)
	assert.Equal(t, []string{"https://img.example/v.jpg"}, got.Item.Images)
	assert.Empty(t, got.MessageID)
	require.NotNil(t, got.ExpiresAt)

	open, err := store.ListOpenByProduct(ctx, "prod_pg1")
	require.NoError(t, err)
	assert.Len(t, open, 1)

	expired, err := store.ListExpired(ctx, now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, expired, 1)

	offer.MessageID = "msg_1"
	offer.TransactionID = "tx_1"
	offer.setState(StateFullyConfirmed, now.Add(time.Minute))
	require.NoError(t, store.Update(ctx, offer))

	got, err = store.Get(ctx, "off_pg1")
	require.NoError(t, err)
	assert.Equal(t, StateFullyConfirmed, got.State)
	assert.True(t, got.ConfirmedByBuyer)
	assert.True(t, got.ConfirmedBySeller)
	assert.Equal(t, "tx_1", got.TransactionID)

	open, err = store.ListOpenByProduct(ctx, "prod_pg1")
	require.NoError(t, err)
	assert.Empty(t, open)

	mine, err := store.ListByUser(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = store.Get(ctx, "off_missing")
	assert.ErrorIs(t, err, ErrOfferNotFound)
}
