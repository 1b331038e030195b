// Package deposits credits external funds to user balances.
//
// Card deposits go through a payment provider (Stripe) and are confirmed by
// its webhook; bank transfers wait for an operator. Either way a deposit
// credits the ledger at most once, under the reference "deposit:<id>".
package deposits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/merakimarket/meraki/internal/apperr"
	"github.com/merakimarket/meraki/internal/idgen"
	"github.com/merakimarket/meraki/internal/syncutil"
	"github.com/merakimarket/meraki/internal/traces"
	"github.com/merakimarket/meraki/internal/validation"
)

var (
	ErrDepositNotFound  = fmt.Errorf("deposit %w", apperr.ErrNotFound)
	ErrCardsDisabled    = fmt.Errorf("%w: card deposits are not enabled", apperr.ErrValidation)
	ErrDuplicateExtRef  = fmt.Errorf("%w: external reference already recorded", apperr.ErrConflict)
	errProviderRequired = errors.New("payment provider returned no reference")
)

// MaxDepositAmount caps a single deposit, in VND.
const MaxDepositAmount int64 = 500_000_000

// Method is how the funds arrive.
type Method string

const (
	MethodCard         Method = "card"
	MethodBankTransfer Method = "bank_transfer"
)

// Status is the deposit lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Deposit is a request to add funds.
type Deposit struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	Amount       int64      `json:"amount"`
	Method       Method     `json:"method"`
	Status       Status     `json:"status"`
	ExternalRef  string     `json:"externalRef,omitempty"`
	ClientSecret string     `json:"clientSecret,omitempty"` // returned to the payer only
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	ConfirmedAt  *time.Time `json:"confirmedAt,omitempty"`
}

// Store persists deposits.
type Store interface {
	Create(ctx context.Context, d *Deposit) error
	Get(ctx context.Context, id string) (*Deposit, error)
	GetByExternalRef(ctx context.Context, ref string) (*Deposit, error)
	Update(ctx context.Context, d *Deposit) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Deposit, error)
}

// PaymentProvider starts a card payment for a deposit.
type PaymentProvider interface {
	// CreatePayment returns the provider's payment reference and the
	// client secret the payer completes it with.
	CreatePayment(ctx context.Context, depositID string, amount int64) (ref, clientSecret string, err error)
}

// Crediter credits confirmed deposits. *ledger.Ledger implements it.
type Crediter interface {
	Deposit(ctx context.Context, userID string, amount int64, reference string) error
}

// Service implements deposit business logic.
type Service struct {
	store    Store
	ledger   Crediter
	provider PaymentProvider
	locks    *syncutil.ContextShardedMutex
	logger   *slog.Logger
}

// NewService creates a new deposit service. Card deposits stay disabled
// until a provider is set.
func NewService(store Store, ledger Crediter) *Service {
	return &Service{
		store:  store,
		ledger: ledger,
		locks:  syncutil.NewContextShardedMutex(),
		logger: slog.Default(),
	}
}

// WithProvider enables card deposits.
func (s *Service) WithProvider(p PaymentProvider) *Service {
	s.provider = p
	return s
}

// WithLogger sets the logger.
func (s *Service) WithLogger(l *slog.Logger) *Service {
	s.logger = l
	return s
}

// Create opens a pending deposit. Card deposits carry the provider's client
// secret for the payer to complete.
func (s *Service) Create(ctx context.Context, userID string, amount int64, method Method) (*Deposit, error) {
	ctx, span := traces.StartSpan(ctx, "deposits.Create", traces.UserID(userID), traces.Amount(amount))
	defer span.End()

	if err := validation.Validate(
		validation.Required("userId", userID),
		validation.PositiveAmount("amount", amount),
		validation.OneOf("method", string(method), string(MethodCard), string(MethodBankTransfer)),
	).Err(); err != nil {
		return nil, err
	}
	if amount > MaxDepositAmount {
		return nil, apperr.Validation("amount exceeds the %d VND deposit limit", MaxDepositAmount)
	}
	if method == MethodCard && s.provider == nil {
		return nil, ErrCardsDisabled
	}

	now := time.Now().UTC()
	d := &Deposit{
		ID:        idgen.WithPrefix("dep_"),
		UserID:    userID,
		Amount:    amount,
		Method:    method,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if method == MethodCard {
		ref, secret, err := s.provider.CreatePayment(ctx, d.ID, amount)
		if err != nil {
			traces.RecordError(span, err)
			return nil, fmt.Errorf("failed to start card payment: %w", err)
		}
		if ref == "" {
			return nil, errProviderRequired
		}
		d.ExternalRef = ref
		d.ClientSecret = secret
	}

	if err := s.store.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to create deposit: %w", err)
	}
	depositsTotal.WithLabelValues(string(method), string(StatusPending)).Inc()
	return d, nil
}

// Confirm credits a pending deposit. Confirming twice returns the deposit
// unchanged.
func (s *Service) Confirm(ctx context.Context, id string) (*Deposit, error) {
	ctx, span := traces.StartSpan(ctx, "deposits.Confirm")
	defer span.End()

	unlock, err := s.locks.LockContext(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch d.Status {
	case StatusConfirmed:
		return d, nil
	case StatusFailed:
		return nil, apperr.Transition("deposit", d.Status, StatusConfirmed)
	}

	if err := s.ledger.Deposit(ctx, d.UserID, d.Amount, reference(d.ID)); err != nil && !apperr.IsAlreadyFinalized(err) {
		traces.RecordError(span, err)
		return nil, fmt.Errorf("failed to credit deposit: %w", err)
	}

	now := time.Now().UTC()
	d.Status = StatusConfirmed
	d.ConfirmedAt = &now
	d.UpdatedAt = now
	if err := s.store.Update(ctx, d); err != nil {
		// The ledger reference makes a retried confirm a no-op credit.
		s.logger.Error("deposit credited but not marked confirmed",
			"deposit_id", d.ID, "user_id", d.UserID, "amount", d.Amount, "error", err)
		return nil, fmt.Errorf("failed to record deposit: %w", err)
	}

	depositsTotal.WithLabelValues(string(d.Method), string(StatusConfirmed)).Inc()
	depositedAmountTotal.Add(float64(d.Amount))
	return d, nil
}

// ConfirmByExternalRef confirms the deposit behind a provider payment.
func (s *Service) ConfirmByExternalRef(ctx context.Context, ref string) (*Deposit, error) {
	d, err := s.store.GetByExternalRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.Confirm(ctx, d.ID)
}

// FailByExternalRef marks a pending card deposit as failed.
func (s *Service) FailByExternalRef(ctx context.Context, ref string) (*Deposit, error) {
	found, err := s.store.GetByExternalRef(ctx, ref)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.LockContext(ctx, found.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	d, err := s.store.Get(ctx, found.ID)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusPending {
		return d, nil
	}
	d.Status = StatusFailed
	d.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, d); err != nil {
		return nil, err
	}
	depositsTotal.WithLabelValues(string(d.Method), string(StatusFailed)).Inc()
	return d, nil
}

// Get returns a deposit owned by userID.
func (s *Service) Get(ctx context.Context, id, userID string) (*Deposit, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.UserID != userID {
		return nil, ErrDepositNotFound
	}
	return d, nil
}

// ListByUser returns a user's deposits, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]*Deposit, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByUser(ctx, userID, limit)
}

func reference(depositID string) string {
	return "deposit:" + depositID
}
