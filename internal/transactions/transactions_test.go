package transactions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merakimarket/meraki/internal/apperr"
)

func tradeRequest(key string) FinalizeRequest {
	return FinalizeRequest{
		Key:            key,
		Type:           TypeTrade,
		BuyerID:        "buyer",
		SellerID:       "seller",
		ProductID:      "prod_1",
		OfferID:        key,
		EscrowTicketID: "esc_1",
		Amount:         100000,
		PlatformFee:    10000,
	}
}

func purchaseRequest(key string) FinalizeRequest {
	shipping := int64(30000)
	return FinalizeRequest{
		Key:         key,
		Type:        TypePurchase,
		BuyerID:     "buyer",
		SellerID:    "seller",
		ProductID:   "prod_1",
		Amount:      100000,
		PlatformFee: 10000,
		Shipping:    &shipping,
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	updates []Status
}

func (r *recordingNotifier) TransactionUpdated(ctx context.Context, t *Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, t.Status)
}

func TestFinalize_TradeIsCompleted(t *testing.T) {
	svc := NewService(NewMemoryStore())

	tx, err := svc.Finalize(context.Background(), tradeRequest("off_1"))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, tx.Status)
	assert.Equal(t, TypeTrade, tx.Type)
	require.Len(t, tx.Timeline, 1)
	assert.Equal(t, StatusCompleted, tx.Timeline[0].Status)
	assert.NotEmpty(t, tx.Timeline[0].Description)
}

func TestFinalize_PurchaseIsPending(t *testing.T) {
	svc := NewService(NewMemoryStore())

	tx, err := svc.Finalize(context.Background(), purchaseRequest("pur_1"))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, tx.Status)
	assert.Equal(t, int64(30000), tx.ShippingAmount())
}

func TestFinalize_IdempotentPerKey(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	first, err := svc.Finalize(ctx, tradeRequest("off_1"))
	require.NoError(t, err)

	second, err := svc.Finalize(ctx, tradeRequest("off_1"))
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
	assert.True(t, apperr.IsAlreadyFinalized(err))
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)

	list, _ := svc.ListByUser(ctx, "buyer", 0)
	assert.Len(t, list, 1)
}

func TestFinalize_ConcurrentSameKeyWritesOnce(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := svc.Finalize(ctx, tradeRequest("off_race"))
			if err != nil && !errors.Is(err, ErrAlreadyFinalized) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			ids <- tx.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 1)
}

func TestFinalize_Validation(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(r *FinalizeRequest)
	}{
		{"missing key", func(r *FinalizeRequest) { r.Key = "" }},
		{"unknown type", func(r *FinalizeRequest) { r.Type = "barter" }},
		{"negative amount", func(r *FinalizeRequest) { r.Amount = -1 }},
		{"fee above amount", func(r *FinalizeRequest) { r.PlatformFee = r.Amount + 1 }},
		{"same buyer and seller", func(r *FinalizeRequest) { r.SellerID = r.BuyerID }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tradeRequest("off_v")
			tt.mutate(&req)
			_, err := svc.Finalize(ctx, req)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestTransition_PendingToDisputedThenLocked(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	tx, err := svc.Finalize(ctx, purchaseRequest("pur_1"))
	require.NoError(t, err)

	disputed, err := svc.Transition(ctx, tx.ID, StatusDisputed, "item not as described")
	require.NoError(t, err)
	assert.Equal(t, StatusDisputed, disputed.Status)
	require.Len(t, disputed.Timeline, 2)
	assert.Equal(t, "item not as described", disputed.Timeline[1].Description)

	_, err = svc.Transition(ctx, tx.ID, StatusCompleted, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	got, _ := svc.Get(ctx, tx.ID)
	assert.Equal(t, StatusDisputed, got.Status)
	assert.Len(t, got.Timeline, 2)
}

func TestTransition_Rules(t *testing.T) {
	tests := []struct {
		name string
		from Type
		to   Status
		want error
	}{
		{"pending to completed", TypePurchase, StatusCompleted, nil},
		{"pending to cancelled", TypePurchase, StatusCancelled, nil},
		{"pending to pending", TypePurchase, StatusPending, apperr.ErrInvalidTransition},
		{"completed trade to cancelled", TypeTrade, StatusCancelled, apperr.ErrInvalidTransition},
		{"unknown status", TypePurchase, "shipped", apperr.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(NewMemoryStore())
			ctx := context.Background()
			req := purchaseRequest("k")
			if tt.from == TypeTrade {
				req = tradeRequest("k")
			}
			tx, err := svc.Finalize(ctx, req)
			require.NoError(t, err)

			_, err = svc.Transition(ctx, tx.ID, tt.to, "")
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestTransition_TimelineNeverGoesBackwards(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	tx, err := svc.Finalize(ctx, purchaseRequest("pur_clock"))
	require.NoError(t, err)

	// Clock stepped back.
	svc.now = func() time.Time { return base.Add(-time.Hour) }
	done, err := svc.Transition(ctx, tx.ID, StatusCompleted, "")
	require.NoError(t, err)

	require.Len(t, done.Timeline, 2)
	assert.False(t, done.Timeline[1].Timestamp.Before(done.Timeline[0].Timestamp))
	assert.Equal(t, done.Status, done.Timeline[len(done.Timeline)-1].Status)
}

func TestTransition_NotFound(t *testing.T) {
	svc := NewService(NewMemoryStore())
	_, err := svc.Transition(context.Background(), "tx_missing", StatusCompleted, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestNotifier(t *testing.T) {
	n := &recordingNotifier{}
	svc := NewService(NewMemoryStore()).WithNotifier(n)
	ctx := context.Background()

	tx, _ := svc.Finalize(ctx, purchaseRequest("pur_n"))
	_, _ = svc.Transition(ctx, tx.ID, StatusCancelled, "")
	_, _ = svc.Finalize(ctx, purchaseRequest("pur_n"))

	assert.Equal(t, []Status{StatusPending, StatusCancelled}, n.updates)
}
