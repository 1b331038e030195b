// Package purchase orchestrates direct buys of listed products.
//
// A buy reserves the listing and the buyer's price plus shipping, then
// records a pending purchase transaction. The buyer completes it on receipt,
// which pays the seller; either party may cancel or dispute while it is
// pending.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/merakimarket/meraki/internal/apperr"
	"github.com/merakimarket/meraki/internal/catalog"
	"github.com/merakimarket/meraki/internal/escrow"
	"github.com/merakimarket/meraki/internal/idgen"
	"github.com/merakimarket/meraki/internal/money"
	"github.com/merakimarket/meraki/internal/syncutil"
	"github.com/merakimarket/meraki/internal/traces"
	"github.com/merakimarket/meraki/internal/transactions"
)

var ErrNotForSale = fmt.Errorf("%w: product is not for sale", apperr.ErrValidation)

// keyPrefix marks purchase transaction keys, which double as escrow references.
const keyPrefix = "pur_"

// Catalog is the product boundary.
type Catalog interface {
	Get(ctx context.Context, id string) (*catalog.Product, error)
	SetStatus(ctx context.Context, id string, from, to catalog.Status) error
}

// Escrow holds the buyer's payment until the order resolves.
type Escrow interface {
	Reserve(ctx context.Context, userID string, amount int64, reference string) (*escrow.Ticket, error)
	Release(ctx context.Context, ticketID string) (*escrow.Ticket, error)
	Settle(ctx context.Context, req escrow.SettleRequest) (*escrow.Settlement, error)
	QuoteFee(amount int64) int64
}

// Transactions records and moves purchase transactions.
type Transactions interface {
	Finalize(ctx context.Context, req transactions.FinalizeRequest) (*transactions.Transaction, error)
	Transition(ctx context.Context, id string, to transactions.Status, description string) (*transactions.Transaction, error)
	Get(ctx context.Context, id string) (*transactions.Transaction, error)
	GetByKey(ctx context.Context, key string) (*transactions.Transaction, error)
}

// OfferSweeper cancels open trade offers on a product that sold.
type OfferSweeper interface {
	SweepProduct(ctx context.Context, productID string) error
}

// Service implements purchase orchestration.
type Service struct {
	catalog Catalog
	escrow  Escrow
	txs     Transactions
	offers  OfferSweeper
	locks   *syncutil.ContextShardedMutex
	logger  *slog.Logger
}

// NewService creates a new purchase service.
func NewService(cat Catalog, esc Escrow, txs Transactions) *Service {
	return &Service{
		catalog: cat,
		escrow:  esc,
		txs:     txs,
		locks:   syncutil.NewContextShardedMutex(),
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger.
func (s *Service) WithLogger(l *slog.Logger) *Service {
	s.logger = l
	return s
}

// WithOfferSweeper cancels trade offers on products sold through a purchase.
func (s *Service) WithOfferSweeper(o OfferSweeper) *Service {
	s.offers = o
	return s
}

// Buy reserves productID for buyerID and records a pending purchase.
func (s *Service) Buy(ctx context.Context, buyerID, productID string, shipping int64) (*transactions.Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "purchase.Buy", traces.UserID(buyerID), traces.ProductID(productID))
	defer span.End()

	if buyerID == "" || productID == "" {
		return nil, apperr.Validation("buyer and product are required")
	}
	if shipping < 0 {
		return nil, apperr.Validation("shipping must not be negative")
	}

	product, err := s.catalog.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.SellerID == buyerID {
		return nil, apperr.Forbidden("cannot buy your own product")
	}
	if !product.AllowBuy || product.Price == nil {
		return nil, ErrNotForSale
	}
	price := *product.Price
	total, err := money.Add(price, shipping)
	if err != nil {
		return nil, apperr.Validation("shipping too large: %v", err)
	}

	if err := s.catalog.SetStatus(ctx, productID, catalog.StatusActive, catalog.StatusReserved); err != nil {
		if errors.Is(err, catalog.ErrStatusChanged) {
			return nil, fmt.Errorf("%w: product is no longer available", apperr.ErrInvalidTransition)
		}
		return nil, err
	}

	key := idgen.WithPrefix(keyPrefix)
	ticket, err := s.escrow.Reserve(ctx, buyerID, total, key)
	if err != nil {
		s.reopen(ctx, productID)
		return nil, err
	}

	tx, err := s.txs.Finalize(ctx, transactions.FinalizeRequest{
		Key:            key,
		Type:           transactions.TypePurchase,
		BuyerID:        buyerID,
		SellerID:       product.SellerID,
		ProductID:      productID,
		EscrowTicketID: ticket.ID,
		Amount:         price,
		PlatformFee:    s.escrow.QuoteFee(price),
		Shipping:       &shipping,
		Description:    "Order placed for " + product.Title,
	})
	if err != nil {
		if _, relErr := s.escrow.Release(ctx, ticket.ID); relErr != nil {
			s.logger.Error("CRITICAL: escrow held for unrecorded purchase",
				"ticket_id", ticket.ID, "buyer_id", buyerID, "amount", total, "error", relErr)
		}
		s.reopen(ctx, productID)
		traces.RecordError(span, err)
		return nil, err
	}

	purchasesTotal.WithLabelValues("placed").Inc()
	return tx, nil
}

// UpdateStatus moves a pending purchase to a terminal status with its
// escrow side effect. Only the buyer may complete; either party may cancel
// or dispute. Other users get ErrTransactionNotFound.
func (s *Service) UpdateStatus(ctx context.Context, txID, userID string, to transactions.Status) (*transactions.Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "purchase.UpdateStatus", traces.TransactionID(txID), traces.UserID(userID))
	defer span.End()

	unlock, err := s.locks.LockContext(ctx, txID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tx, err := s.txs.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	if !tx.IsParticipant(userID) {
		return nil, transactions.ErrTransactionNotFound
	}
	if tx.Type != transactions.TypePurchase || tx.Status != transactions.StatusPending {
		return nil, apperr.Transition("transaction", tx.Status, to)
	}

	var updated *transactions.Transaction
	switch to {
	case transactions.StatusCompleted:
		updated, err = s.complete(ctx, tx, userID)
	case transactions.StatusCancelled:
		updated, err = s.cancel(ctx, tx, userID)
	case transactions.StatusDisputed:
		updated, err = s.txs.Transition(ctx, tx.ID, to, "Dispute opened by "+roleOf(tx, userID))
	default:
		return nil, apperr.Validation("status must be completed, cancelled or disputed")
	}
	if err != nil {
		traces.RecordError(span, err)
		return nil, err
	}
	purchasesTotal.WithLabelValues(string(to)).Inc()
	return updated, nil
}

func (s *Service) complete(ctx context.Context, tx *transactions.Transaction, userID string) (*transactions.Transaction, error) {
	if userID != tx.BuyerID {
		return nil, apperr.Forbidden("only the buyer can confirm receipt")
	}

	_, err := s.escrow.Settle(ctx, escrow.SettleRequest{
		BuyerTicketID: tx.EscrowTicketID,
		SellerID:      tx.SellerID,
		Amount:        tx.Amount,
		PassThrough:   tx.ShippingAmount(),
	})
	if err != nil && !apperr.IsAlreadyFinalized(err) {
		return nil, fmt.Errorf("failed to pay seller: %w", err)
	}

	if err := s.catalog.SetStatus(ctx, tx.ProductID, catalog.StatusReserved, catalog.StatusSold); err != nil {
		s.logger.Error("product not marked sold after completed purchase",
			"product_id", tx.ProductID, "transaction_id", tx.ID, "error", err)
	}

	updated, err := s.txs.Transition(ctx, tx.ID, transactions.StatusCompleted, "")
	if err != nil {
		s.logger.Error("CRITICAL: purchase paid out but transaction not completed",
			"transaction_id", tx.ID, "ticket_id", tx.EscrowTicketID, "error", err)
		return nil, err
	}

	if s.offers != nil {
		if err := s.offers.SweepProduct(ctx, tx.ProductID); err != nil {
			s.logger.Warn("failed to cancel trade offers on sold product", "product_id", tx.ProductID, "error", err)
		}
	}
	return updated, nil
}

func (s *Service) cancel(ctx context.Context, tx *transactions.Transaction, userID string) (*transactions.Transaction, error) {
	if _, err := s.escrow.Release(ctx, tx.EscrowTicketID); err != nil {
		return nil, fmt.Errorf("failed to refund buyer: %w", err)
	}
	s.reopen(ctx, tx.ProductID)
	return s.txs.Transition(ctx, tx.ID, transactions.StatusCancelled, "Order cancelled by "+roleOf(tx, userID))
}

// EscrowReleased puts a disputed purchase's product back on sale once an
// operator refunds the buyer.
func (s *Service) EscrowReleased(ctx context.Context, ticket *escrow.Ticket) {
	if !strings.HasPrefix(ticket.Reference, keyPrefix) {
		return
	}
	tx, err := s.txs.GetByKey(ctx, ticket.Reference)
	if err != nil {
		s.logger.Warn("no purchase for released escrow ticket", "ticket_id", ticket.ID, "error", err)
		return
	}
	if tx.Status != transactions.StatusDisputed || tx.EscrowTicketID != ticket.ID {
		return
	}
	s.reopen(ctx, tx.ProductID)
	s.logger.Info("disputed purchase refunded, product back on sale",
		"transaction_id", tx.ID, "product_id", tx.ProductID)
}

// reopen puts a reserved product back on sale.
func (s *Service) reopen(ctx context.Context, productID string) {
	if err := s.catalog.SetStatus(ctx, productID, catalog.StatusReserved, catalog.StatusActive); err != nil {
		s.logger.Warn("failed to put product back on sale", "product_id", productID, "error", err)
	}
}

func roleOf(tx *transactions.Transaction, userID string) string {
	if userID == tx.BuyerID {
		return "buyer"
	}
	return "seller"
}
