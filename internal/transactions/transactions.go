// Package transactions records completed and in-flight marketplace deals.
//
// A Transaction is written exactly once per source (offer id for trades,
// purchase key for purchases) and afterwards only moves forward through its
// status timeline:
//
//	pending ──▶ completed | cancelled | disputed
//
// Trades are born completed. Every status change appends a timeline event.
package transactions

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
	ErrTransactionNotFound = fmt.Errorf("transaction %w", apperr.ErrNotFound)
	ErrAlreadyFinalized    = fmt.Errorf("transaction already recorded: %w", apperr.ErrAlreadyFinalized)
	ErrDuplicateKey        = fmt.Errorf("transaction idempotency key %w", apperr.ErrConflict)
)

// Type distinguishes how the deal was made.
type Type string

const (
	TypePurchase Type = "purchase"
	TypeTrade    Type = "trade"
)

// Status represents the state of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusDisputed  Status = "disputed"
)

// IsTerminal returns true for statuses that accept no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusDisputed
}

func (s Status) valid() bool {
	return s == StatusPending || s.IsTerminal()
}

// Event is one entry in a transaction's timeline.
type Event struct {
	Status      Status    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
}

// Transaction is a recorded deal between a buyer and a seller.
type Transaction struct {
	ID             string    `json:"id"`
	Key            string    `json:"idempotencyKey"`
	Type           Type      `json:"type"`
	Status         Status    `json:"status"`
	BuyerID        string    `json:"buyerId"`
	SellerID       string    `json:"sellerId"`
	ProductID      string    `json:"productId"`
	OfferID        string    `json:"offerId,omitempty"`
	EscrowTicketID string    `json:"escrowTicketId,omitempty"`
	Amount         int64     `json:"amount"`
	PlatformFee    int64     `json:"platformFee"`
	Shipping       *int64    `json:"shipping,omitempty"`
	Timeline       []Event   `json:"timeline"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// IsParticipant reports whether userID is the buyer or the seller.
func (t *Transaction) IsParticipant(userID string) bool {
	return userID != "" && (userID == t.BuyerID || userID == t.SellerID)
}

// ShippingAmount returns the shipping cost, zero when none was charged.
func (t *Transaction) ShippingAmount() int64 {
	if t.Shipping == nil {
		return 0
	}
	return *t.Shipping
}

// FinalizeRequest describes the transaction to record.
type FinalizeRequest struct {
	Key            string // idempotency key: offer id for trades, purchase key for purchases
	Type           Type
	BuyerID        string
	SellerID       string
	ProductID      string
	OfferID        string
	EscrowTicketID string
	Amount         int64
	PlatformFee    int64
	Shipping       *int64
	Description    string
}

func (r FinalizeRequest) validate() error {
	errs := validation.Validate(
		validation.Required("key", r.Key),
		validation.OneOf("type", string(r.Type), string(TypePurchase), string(TypeTrade)),
		validation.Required("buyerId", r.BuyerID),
		validation.Required("sellerId", r.SellerID),
		validation.Required("productId", r.ProductID),
		validation.NonNegativeAmount("amount", r.Amount),
		validation.NonNegativeAmount("platformFee", r.PlatformFee),
	)
	if r.PlatformFee > r.Amount {
		errs = append(errs, validation.ValidationError{Field: "platformFee", Message: "exceeds amount"})
	}
	if r.Shipping != nil && *r.Shipping < 0 {
		errs = append(errs, validation.ValidationError{Field: "shipping", Message: "must not be negative"})
	}
	if r.BuyerID != "" && r.BuyerID == r.SellerID {
		errs = append(errs, validation.ValidationError{Field: "sellerId", Message: "must differ from buyer"})
	}
	return errs.Err()
}

// Store persists transactions.
type Store interface {
	// Create inserts t, returning ErrDuplicateKey if t.Key is taken.
	Create(ctx context.Context, t *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	GetByKey(ctx context.Context, key string) (*Transaction, error)
	Update(ctx context.Context, t *Transaction) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error)
}

// Notifier is told about every status change. Optional.
type Notifier interface {
	TransactionUpdated(ctx context.Context, t *Transaction)
}

// Service is the transaction finalizer.
type Service struct {
	store    Store
	keyLocks *syncutil.ContextShardedMutex
	idLocks  *syncutil.ContextShardedMutex
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a new transaction service.
func NewService(store Store) *Service {
	return &Service{
		store:    store,
		keyLocks: syncutil.NewContextShardedMutex(),
		idLocks:  syncutil.NewContextShardedMutex(),
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// WithLogger sets the logger.
func (s *Service) WithLogger(l *slog.Logger) *Service {
	s.logger = l
	return s
}

// WithNotifier sets the realtime notifier.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// Finalize records a transaction once per key. Trades start completed,
// purchases start pending. A repeated key returns the existing record
// together with ErrAlreadyFinalized.
func (s *Service) Finalize(ctx context.Context, req FinalizeRequest) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "transactions.Finalize",
		traces.OfferID(req.OfferID), traces.ProductID(req.ProductID), traces.Amount(req.Amount))
	defer span.End()

	if err := req.validate(); err != nil {
		return nil, err
	}

	unlock, err := s.keyLocks.LockContext(ctx, req.Key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if existing, err := s.store.GetByKey(ctx, req.Key); err == nil {
		return existing, ErrAlreadyFinalized
	} else if !errors.Is(err, ErrTransactionNotFound) {
		return nil, err
	}

	status := StatusPending
	if req.Type == TypeTrade {
		status = StatusCompleted
	}
	desc := req.Description
	if desc == "" {
		desc = defaultDescription(req.Type, status)
	}

	now := s.now()
	tx := &Transaction{
		ID:             idgen.WithPrefix("tx_"),
		Key:            req.Key,
		Type:           req.Type,
		Status:         status,
		BuyerID:        req.BuyerID,
		SellerID:       req.SellerID,
		ProductID:      req.ProductID,
		OfferID:        req.OfferID,
		EscrowTicketID: req.EscrowTicketID,
		Amount:         req.Amount,
		PlatformFee:    req.PlatformFee,
		Shipping:       req.Shipping,
		Timeline:       []Event{{Status: status, Timestamp: now, Description: desc}},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.Create(ctx, tx); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			// Written by another process between our read and insert.
			if existing, getErr := s.store.GetByKey(ctx, req.Key); getErr == nil {
				return existing, ErrAlreadyFinalized
			}
		}
		traces.RecordError(span, err)
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	transactionsTotal.WithLabelValues(string(tx.Type), string(tx.Status)).Inc()
	s.notify(ctx, tx)
	return tx, nil
}

// Transition moves a pending transaction to a terminal status and appends
// a timeline event. Timeline timestamps never go backwards.
func (s *Service) Transition(ctx context.Context, id string, to Status, description string) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "transactions.Transition", traces.TransactionID(id))
	defer span.End()

	if !to.valid() {
		return nil, apperr.Validation("unknown transaction status %q", to)
	}

	unlock, err := s.idLocks.LockContext(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tx, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != StatusPending || !to.IsTerminal() {
		return nil, apperr.Transition("transaction", tx.Status, to)
	}

	if description == "" {
		description = defaultDescription(tx.Type, to)
	}
	now := s.now()
	if n := len(tx.Timeline); n > 0 && now.Before(tx.Timeline[n-1].Timestamp) {
		now = tx.Timeline[n-1].Timestamp
	}

	tx.Status = to
	tx.Timeline = append(tx.Timeline, Event{Status: to, Timestamp: now, Description: description})
	tx.UpdatedAt = now

	if err := s.store.Update(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	transactionsTotal.WithLabelValues(string(tx.Type), string(tx.Status)).Inc()
	s.notify(ctx, tx)
	return tx, nil
}

// Get returns a transaction by ID.
func (s *Service) Get(ctx context.Context, id string) (*Transaction, error) {
	return s.store.Get(ctx, id)
}

// GetByKey returns the transaction recorded under an idempotency key.
func (s *Service) GetByKey(ctx context.Context, key string) (*Transaction, error) {
	return s.store.GetByKey(ctx, key)
}

// ListByUser returns transactions where the user is buyer or seller, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByUser(ctx, userID, limit)
}

func (s *Service) notify(ctx context.Context, tx *Transaction) {
	if s.notifier != nil {
		s.notifier.TransactionUpdated(ctx, tx)
	}
}

func defaultDescription(t Type, status Status) string {
	switch status {
	case StatusCompleted:
		if t == TypeTrade {
			return "Trade completed"
		}
		return "Order received by buyer"
	case StatusCancelled:
		return "Order cancelled"
	case StatusDisputed:
		return "Dispute opened"
	default:
		return "Order placed, awaiting delivery"
	}
}
