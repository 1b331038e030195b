//go:build integration

package deposits

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

	now := time.Now().UTC().Truncate(time.Microsecond)
	d := &Deposit{
		ID: "dep_pg1", UserID: "bob", Amount: 250000, Method: MethodCard,
		Status: StatusPending, ExternalRef: "pi_pg1", ClientSecret: "pi_pg1_secret",
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.Create(ctx, d))

	dup := *d
	dup.ID = "dep_pg2"
	assert.ErrorIs(t, store.Create(ctx, &dup), ErrDuplicateExtRef)

	got, err := store.GetByExternalRef(ctx, "pi_pg1")
	require.NoError(t, err)
	assert.Equal(t, "dep_pg1", got.ID)
	assert.Nil(t, got.ConfirmedAt)

	d.Status = StatusConfirmed
	d.ConfirmedAt = &now
	require.NoError(t, store.Update(ctx, d))

	got, err = store.Get(ctx, "dep_pg1")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	require.NotNil(t, got.ConfirmedAt)

	list, err := store.ListByUser(ctx, "bob", 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = store.Get(ctx, "dep_missing")
	assert.ErrorIs(t, err, ErrDepositNotFound)
}
