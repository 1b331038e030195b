// Package escrow holds buyer funds against open trade offers and purchases.
//
// Flow:
//  1. Reserve: available -> escrowed, a held ticket records the amount
//  2. Release: escrowed -> available for the ticket owner (cancel, expiry)
//  3. Settle: escrowed -> seller's available minus the platform fee,
//     fee -> platform account
//
// A ticket is held until exactly one of Release or Settle succeeds. Ledger
// mutations happen before the ticket status changes, so a failed settlement
// leaves the funds escrowed and the ticket held; Release reconciles it.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/merakimarket/meraki/internal/apperr"
	"github.com/merakimarket/meraki/internal/idgen"
	"github.com/merakimarket/meraki/internal/money"
	"github.com/merakimarket/meraki/internal/retry"
	"github.com/merakimarket/meraki/internal/syncutil"
	"github.com/merakimarket/meraki/internal/traces"
)

var (
	ErrTicketNotFound = fmt.Errorf("escrow ticket %w", apperr.ErrNotFound)
	ErrAlreadySettled = fmt.Errorf("escrow ticket already settled: %w", apperr.ErrAlreadyFinalized)
	ErrInvalidAmount  = fmt.Errorf("%w: escrow amount must be greater than zero", apperr.ErrValidation)
	// ErrPayoutUnrecorded means the ledger paid the seller but the ticket
	// still reads held. Repeating Settle completes the ticket without paying
	// again.
	ErrPayoutUnrecorded = errors.New("escrow paid out but ticket not recorded")
)

// Status represents the state of an escrow ticket.
type Status string

const (
	StatusHeld     Status = "held"     // Funds locked in the owner's escrow balance
	StatusReleased Status = "released" // Funds returned to the owner
	StatusSettled  Status = "settled"  // Funds paid out to seller and platform
)

// Ticket is a single escrow reservation.
type Ticket struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Amount      int64      `json:"amount"`
	Reference   string     `json:"reference"` // offer or transaction the funds are held for
	Status      Status     `json:"status"`
	SellerID    string     `json:"sellerId,omitempty"`
	Fee         int64      `json:"fee,omitempty"`
	NetToSeller int64      `json:"netToSeller,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
}

// IsTerminal returns true once the ticket's funds have left escrow.
func (t *Ticket) IsTerminal() bool {
	return t.Status == StatusReleased || t.Status == StatusSettled
}

// Settlement is the outcome of Settle.
type Settlement struct {
	TicketID    string `json:"ticketId"`
	SellerID    string `json:"sellerId"`
	Fee         int64  `json:"fee"`
	NetToSeller int64  `json:"netToSeller"`
}

// SettleRequest describes how a buyer ticket is paid out.
//
// Amount is the agreed trade or purchase value and bears the platform fee.
// PassThrough (shipping) goes to the seller untouched. Their sum must equal
// the ticket amount. SellerTicketID optionally names a seller-side
// reservation which is returned to the seller as part of the settlement.
type SettleRequest struct {
	BuyerTicketID  string
	SellerTicketID string
	SellerID       string
	Amount         int64
	PassThrough    int64
}

// Store persists escrow tickets.
type Store interface {
	Create(ctx context.Context, t *Ticket) error
	Get(ctx context.Context, id string) (*Ticket, error)
	Update(ctx context.Context, t *Ticket) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Ticket, error)
	// SumHeld totals the amount of every held ticket.
	SumHeld(ctx context.Context) (int64, error)
}

// LedgerService abstracts ledger operations so escrow doesn't import ledger.
type LedgerService interface {
	EscrowLock(ctx context.Context, userID string, amount int64, reference string) error
	RefundEscrow(ctx context.Context, userID string, amount int64, reference string) error
	// SettleEscrow debits buyerID's escrow by amount, credits fee to the
	// platform account and the remainder to sellerID.
	SettleEscrow(ctx context.Context, buyerID, sellerID string, amount, fee int64, reference string) error
}

// Service implements escrow business logic.
type Service struct {
	store   Store
	ledger  LedgerService
	feeRate money.FeeRate
	locks   *syncutil.ContextShardedMutex
	logger  *slog.Logger
}

// NewService creates a new escrow service.
func NewService(store Store, ledger LedgerService, feeRate money.FeeRate) *Service {
	return &Service{
		store:   store,
		ledger:  ledger,
		feeRate: feeRate,
		locks:   syncutil.NewContextShardedMutex(),
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger used for reconciliation alerts.
func (s *Service) WithLogger(l *slog.Logger) *Service {
	s.logger = l
	return s
}

// FeeRate returns the configured platform fee rate.
func (s *Service) FeeRate() money.FeeRate {
	return s.feeRate
}

// QuoteFee returns the platform fee that settling amount would charge.
func (s *Service) QuoteFee(amount int64) int64 {
	return s.feeRate.Fee(amount)
}

// Reserve locks amount of userID's balance against reference.
func (s *Service) Reserve(ctx context.Context, userID string, amount int64, reference string) (*Ticket, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Reserve", traces.UserID(userID), traces.Amount(amount))
	defer span.End()

	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if userID == "" {
		return nil, apperr.Validation("escrow owner is required")
	}

	now := time.Now()
	ticket := &Ticket{
		ID:        idgen.WithPrefix("esc_"),
		UserID:    userID,
		Amount:    amount,
		Reference: reference,
		Status:    StatusHeld,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.ledger.EscrowLock(ctx, userID, amount, ticket.ID); err != nil {
		return nil, fmt.Errorf("failed to lock escrow funds: %w", err)
	}

	if err := s.store.Create(ctx, ticket); err != nil {
		// Compensate: the ticket never existed, return the funds.
		if refundErr := s.ledger.RefundEscrow(ctx, userID, amount, ticket.ID); refundErr != nil {
			s.logger.Error("CRITICAL: escrow funds locked without a ticket",
				"ticket_id", ticket.ID, "user_id", userID, "amount", amount, "error", refundErr)
		}
		return nil, fmt.Errorf("failed to create escrow ticket: %w", err)
	}

	escrowReservedTotal.Inc()
	escrowedAmountTotal.WithLabelValues("reserved").Add(float64(amount))
	return ticket, nil
}

// Release returns a held ticket's funds to its owner. Releasing an already
// released ticket is a no-op; releasing a settled ticket fails.
func (s *Service) Release(ctx context.Context, ticketID string) (*Ticket, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Release", traces.TicketID(ticketID))
	defer span.End()

	unlock, err := s.locks.LockContext(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ticket, err := s.store.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	switch ticket.Status {
	case StatusReleased:
		return ticket, nil
	case StatusSettled:
		return nil, apperr.Transition("escrow ticket", ticket.Status, StatusReleased)
	}

	if err := s.ledger.RefundEscrow(ctx, ticket.UserID, ticket.Amount, ticket.ID); err != nil {
		return nil, fmt.Errorf("failed to release escrow: %w", err)
	}

	now := time.Now()
	ticket.Status = StatusReleased
	ticket.ResolvedAt = &now
	ticket.UpdatedAt = now

	if err := s.store.Update(ctx, ticket); err != nil {
		// Compensate: re-lock the refunded funds so the held ticket stays truthful.
		if lockErr := s.ledger.EscrowLock(ctx, ticket.UserID, ticket.Amount, ticket.ID); lockErr != nil {
			s.logger.Error("CRITICAL: escrow released but ticket still held",
				"ticket_id", ticket.ID, "user_id", ticket.UserID, "amount", ticket.Amount, "error", lockErr)
		}
		return nil, fmt.Errorf("failed to update escrow ticket after release: %w", err)
	}

	escrowReleasedTotal.Inc()
	escrowedAmountTotal.WithLabelValues("released").Add(float64(ticket.Amount))
	return ticket, nil
}

// Settle pays out a held buyer ticket. Settling an already settled ticket
// returns the recorded settlement together with ErrAlreadySettled. That
// includes a held ticket whose payout the ledger already recorded.
func (s *Service) Settle(ctx context.Context, req SettleRequest) (*Settlement, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Settle", traces.TicketID(req.BuyerTicketID), traces.Amount(req.Amount))
	defer span.End()

	if req.Amount < 0 || req.PassThrough < 0 {
		return nil, apperr.Validation("settlement amounts must not be negative")
	}
	if req.SellerID == "" {
		return nil, apperr.Validation("seller is required")
	}

	keys := []string{req.BuyerTicketID}
	if req.SellerTicketID != "" {
		keys = append(keys, req.SellerTicketID)
	}
	unlock, err := s.locks.LockManyContext(ctx, keys...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ticket, err := s.store.Get(ctx, req.BuyerTicketID)
	if err != nil {
		return nil, err
	}
	switch ticket.Status {
	case StatusSettled:
		return settlementOf(ticket), ErrAlreadySettled
	case StatusReleased:
		return nil, apperr.Transition("escrow ticket", ticket.Status, StatusSettled)
	}

	if req.Amount+req.PassThrough != ticket.Amount {
		return nil, apperr.Validation("settlement of %d plus %d does not match escrowed %d",
			req.Amount, req.PassThrough, ticket.Amount)
	}
	if req.SellerID == ticket.UserID {
		return nil, apperr.Forbidden("seller cannot settle their own escrow")
	}

	var sellerTicket *Ticket
	if req.SellerTicketID != "" {
		sellerTicket, err = s.store.Get(ctx, req.SellerTicketID)
		if err != nil {
			return nil, err
		}
		if sellerTicket.UserID != req.SellerID {
			return nil, apperr.Forbidden("seller ticket belongs to another user")
		}
		if sellerTicket.Status != StatusHeld {
			return nil, apperr.Transition("seller escrow ticket", sellerTicket.Status, StatusSettled)
		}
	}

	fee := s.feeRate.Fee(req.Amount)
	net := ticket.Amount - fee

	err = s.ledger.SettleEscrow(ctx, ticket.UserID, req.SellerID, ticket.Amount, fee, ticket.ID)
	paidBefore := apperr.IsAlreadyFinalized(err)
	if err != nil && !paidBefore {
		return nil, fmt.Errorf("failed to settle escrow (funds remain in escrow): %w", err)
	}
	if paidBefore {
		s.logger.Warn("escrow payout already in ledger, completing ticket",
			"ticket_id", ticket.ID, "seller_id", req.SellerID)
	}

	now := time.Now()
	ticket.Status = StatusSettled
	ticket.SellerID = req.SellerID
	ticket.Fee = fee
	ticket.NetToSeller = net
	ticket.ResolvedAt = &now
	ticket.UpdatedAt = now

	if err := s.persistAfterPayout(ctx, ticket); err != nil {
		return nil, err
	}

	escrowSettledTotal.Inc()
	escrowedAmountTotal.WithLabelValues("settled").Add(float64(ticket.Amount))
	platformFeesTotal.Add(float64(fee))

	if sellerTicket != nil {
		if err := s.returnSellerTicket(ctx, sellerTicket, now); err != nil {
			// The buyer side is final; the seller ticket stays held and can be
			// released on its own.
			s.logger.Warn("seller escrow ticket not returned after settlement",
				"ticket_id", sellerTicket.ID, "settled_ticket_id", ticket.ID, "error", err)
		}
	}

	if paidBefore {
		return settlementOf(ticket), ErrAlreadySettled
	}
	return settlementOf(ticket), nil
}

func (s *Service) returnSellerTicket(ctx context.Context, t *Ticket, now time.Time) error {
	if err := s.ledger.RefundEscrow(ctx, t.UserID, t.Amount, t.ID); err != nil {
		return err
	}
	t.Status = StatusSettled
	t.SellerID = t.UserID
	t.NetToSeller = t.Amount
	t.ResolvedAt = &now
	t.UpdatedAt = now
	return s.persistAfterPayout(ctx, t)
}

// persistAfterPayout records a ticket whose funds already moved. There is no
// inverse for a payout, so the write is retried and a final failure is
// logged for manual reconciliation.
func (s *Service) persistAfterPayout(ctx context.Context, t *Ticket) error {
	err := retry.AfterPayout.Do(ctx, func(ctx context.Context) error {
		err := s.store.Update(ctx, t)
		if errors.Is(err, ErrTicketNotFound) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		s.logger.Error("CRITICAL: escrow paid out but ticket update failed",
			"ticket_id", t.ID, "seller_id", t.SellerID, "amount", t.Amount, "error", err)
		return fmt.Errorf("%w (requires manual resolution): %w", ErrPayoutUnrecorded, err)
	}
	return nil
}

// Get returns a ticket by ID.
func (s *Service) Get(ctx context.Context, id string) (*Ticket, error) {
	return s.store.Get(ctx, id)
}

// ListByUser returns a user's tickets, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]*Ticket, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByUser(ctx, userID, limit)
}

// HeldTotal sums every held ticket.
func (s *Service) HeldTotal(ctx context.Context) (int64, error) {
	return s.store.SumHeld(ctx)
}

func settlementOf(t *Ticket) *Settlement {
	return &Settlement{
		TicketID:    t.ID,
		SellerID:    t.SellerID,
		Fee:         t.Fee,
		NetToSeller: t.NetToSeller,
	}
}
