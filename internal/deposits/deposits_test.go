package deposits

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merakimarket/meraki/internal/apperr"
	"github.com/merakimarket/meraki/internal/ledger"
)

type fakeProvider struct {
	err   error
	calls int
}

func (f *fakeProvider) CreatePayment(ctx context.Context, depositID string, amount int64) (string, string, error) {
	f.calls++
	if f.err != nil {
		return "", "", f.err
	}
	return "pi_" + depositID, "pi_" + depositID + "_secret", nil
}

func newTestService(t *testing.T) (*Service, *ledger.Ledger, *fakeProvider) {
	t.Helper()
	l := ledger.New(ledger.NewMemoryStore())
	p := &fakeProvider{}
	return NewService(NewMemoryStore(), l).WithProvider(p), l, p
}

func TestCreate_BankTransferStaysPending(t *testing.T) {
	svc, l, p := newTestService(t)
	ctx := context.Background()

	d, err := svc.Create(ctx, "bob", 500000, MethodBankTransfer)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, d.Status)
	assert.Empty(t, d.ExternalRef)
	assert.Equal(t, 0, p.calls)

	bal, _ := l.GetBalance(ctx, "bob")
	assert.Equal(t, int64(0), bal.Available, "nothing credited before confirmation")
}

func TestCreate_CardStartsPayment(t *testing.T) {
	svc, _, p := newTestService(t)

	d, err := svc.Create(context.Background(), "bob", 200000, MethodCard)
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, "pi_"+d.ID, d.ExternalRef)
	assert.NotEmpty(t, d.ClientSecret)
}

func TestCreate_Rejections(t *testing.T) {
	svc, _, p := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "bob", 0, MethodCard)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Create(ctx, "bob", 1000, Method("crypto"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Create(ctx, "bob", MaxDepositAmount+1, MethodBankTransfer)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Create(ctx, "", 1000, MethodBankTransfer)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	p.err = errors.New("card declined")
	_, err = svc.Create(ctx, "bob", 1000, MethodCard)
	assert.ErrorContains(t, err, "card declined")

	noCards := NewService(NewMemoryStore(), ledger.New(ledger.NewMemoryStore()))
	_, err = noCards.Create(ctx, "bob", 1000, MethodCard)
	assert.ErrorIs(t, err, ErrCardsDisabled)
}

func TestConfirm_CreditsOnce(t *testing.T) {
	svc, l, _ := newTestService(t)
	ctx := context.Background()

	d, err := svc.Create(ctx, "bob", 300000, MethodBankTransfer)
	require.NoError(t, err)

	confirmed, err := svc.Confirm(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)

	again, err := svc.Confirm(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, again.Status)

	bal, _ := l.GetBalance(ctx, "bob")
	assert.Equal(t, int64(300000), bal.Available)

	history, err := l.GetHistory(ctx, "bob", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "deposit:"+d.ID, history[0].Reference)
}

func TestConfirm_RecoversFromUnrecordedCredit(t *testing.T) {
	svc, l, _ := newTestService(t)
	ctx := context.Background()

	d, err := svc.Create(ctx, "bob", 1000, MethodBankTransfer)
	require.NoError(t, err)
	// A previous attempt credited the ledger but failed to mark the deposit.
	require.NoError(t, l.Deposit(ctx, "bob", 1000, reference(d.ID)))

	confirmed, err := svc.Confirm(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	bal, _ := l.GetBalance(ctx, "bob")
	assert.Equal(t, int64(1000), bal.Available)
}

func TestExternalRefLifecycle(t *testing.T) {
	svc, l, _ := newTestService(t)
	ctx := context.Background()

	paid, err := svc.Create(ctx, "bob", 5000, MethodCard)
	require.NoError(t, err)
	declined, err := svc.Create(ctx, "bob", 7000, MethodCard)
	require.NoError(t, err)

	_, err = svc.ConfirmByExternalRef(ctx, paid.ExternalRef)
	require.NoError(t, err)

	failed, err := svc.FailByExternalRef(ctx, declined.ExternalRef)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)

	_, err = svc.Confirm(ctx, declined.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	_, err = svc.ConfirmByExternalRef(ctx, "pi_unknown")
	assert.ErrorIs(t, err, ErrDepositNotFound)

	bal, _ := l.GetBalance(ctx, "bob")
	assert.Equal(t, int64(5000), bal.Available)
}

func TestGet_OwnerOnly(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	d, err := svc.Create(ctx, "bob", 1000, MethodBankTransfer)
	require.NoError(t, err)

	_, err = svc.Get(ctx, d.ID, "mallory")
	assert.ErrorIs(t, err, ErrDepositNotFound)

	got, err := svc.Get(ctx, d.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)

	list, err := svc.ListByUser(ctx, "bob", 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
