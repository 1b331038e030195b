package catalog

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func memdb(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLStore_CreateGetList(t *testing.T) {
	svc := NewService(NewSQLStore(memdb(t)))
	ctx := context.Background()

	bike, err := svc.Create(ctx, "alice", CreateRequest{
		Title: "Bike", Description: "city bike", Price: ptr(2500000), AllowBuy: true,
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "alice", CreateRequest{Title: "Guitar", TradeValue: ptr(8000), AllowTrade: true})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "bob", CreateRequest{Title: "Desk"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, bike.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bike", got.Title)
	require.NotNil(t, got.Price)
	assert.Equal(t, int64(2500000), *got.Price)
	assert.Nil(t, got.TradeValue)
	assert.True(t, got.AllowBuy)
	assert.False(t, got.AllowTrade)
	assert.Equal(t, StatusActive, got.Status)

	alices, err := svc.List(ctx, ListFilter{SellerID: "alice"})
	require.NoError(t, err)
	assert.Len(t, alices, 2)

	_, err = svc.Get(ctx, "prod_missing")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestSQLStore_CompareAndSetStatus(t *testing.T) {
	store := NewSQLStore(memdb(t))
	svc := NewService(store)
	ctx := context.Background()

	p, err := svc.Create(ctx, "alice", CreateRequest{Title: "Guitar", TradeValue: ptr(8000), AllowTrade: true})
	require.NoError(t, err)

	require.NoError(t, store.CompareAndSetStatus(ctx, p.ID, StatusActive, StatusSold))
	assert.ErrorIs(t, store.CompareAndSetStatus(ctx, p.ID, StatusActive, StatusSold), ErrStatusChanged)
	assert.ErrorIs(t, store.CompareAndSetStatus(ctx, "prod_missing", StatusActive, StatusSold), ErrProductNotFound)

	sold, err := svc.List(ctx, ListFilter{Status: StatusSold})
	require.NoError(t, err)
	require.Len(t, sold, 1)
	assert.Equal(t, p.ID, sold[0].ID)
}
