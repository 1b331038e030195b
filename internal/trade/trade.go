// Package trade implements item-for-item trade offers with dual
// confirmation.
//
// Proposing reserves max(offered value, product trade value) from the
// proposer in escrow and posts the offer into the pair's conversation.
// Buyer (proposer) and seller (product owner) confirm independently; the
// confirmation that completes the pair settles escrow with the platform fee
// and records the trade transaction, exactly once per offer.
//
// Locking: every state change holds the product lock, then the offer lock.
// The product lock serializes proposals and completions on one listing;
// the offer lock serializes confirmations on one offer.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/merakimarket/meraki/internal/apperr"
	"github.com/merakimarket/meraki/internal/catalog"
	"github.com/merakimarket/meraki/internal/conversation"
	"github.com/merakimarket/meraki/internal/escrow"
	"github.com/merakimarket/meraki/internal/idgen"
	"github.com/merakimarket/meraki/internal/money"
	"github.com/merakimarket/meraki/internal/realtime"
	"github.com/merakimarket/meraki/internal/retry"
	"github.com/merakimarket/meraki/internal/syncutil"
	"github.com/merakimarket/meraki/internal/traces"
	"github.com/merakimarket/meraki/internal/transactions"
	"github.com/merakimarket/meraki/internal/validation"
)

var (
	ErrOfferNotFound = fmt.Errorf("trade offer %w", apperr.ErrNotFound)
	ErrNotTradeOffer = fmt.Errorf("%w: message is not a trade offer", apperr.ErrValidation)
	// ErrProductUnavailable means the listing was sold or reserved elsewhere.
	ErrProductUnavailable = fmt.Errorf("%w: product is no longer available", apperr.ErrInvalidTransition)
)

const (
	maxNotesLength = 1000
	reasonSold     = "product sold"
	reasonExpired  = "offer expired"
)

// Catalog is the product boundary.
type Catalog interface {
	Get(ctx context.Context, id string) (*catalog.Product, error)
	SetStatus(ctx context.Context, id string, from, to catalog.Status) error
}

// Escrow reserves and settles proposer funds.
type Escrow interface {
	Reserve(ctx context.Context, userID string, amount int64, reference string) (*escrow.Ticket, error)
	Release(ctx context.Context, ticketID string) (*escrow.Ticket, error)
	Settle(ctx context.Context, req escrow.SettleRequest) (*escrow.Settlement, error)
}

// Finalizer records the completed trade.
type Finalizer interface {
	Finalize(ctx context.Context, req transactions.FinalizeRequest) (*transactions.Transaction, error)
	GetByKey(ctx context.Context, key string) (*transactions.Transaction, error)
}

// Messenger posts offers and notices into conversations.
type Messenger interface {
	PostTradeOffer(ctx context.Context, proposerID, sellerID string, offer conversation.TradeOfferPayload) (*conversation.Message, error)
	PostSystemNotice(ctx context.Context, senderID, recipientID, text string) (*conversation.Message, error)
	GetMessage(ctx context.Context, id string) (*conversation.Message, error)
}

// Store persists trade offers.
type Store interface {
	Create(ctx context.Context, o *Offer) error
	Get(ctx context.Context, id string) (*Offer, error)
	Update(ctx context.Context, o *Offer) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Offer, error)
	// ListOpenByProduct returns offers on productID that can still be
	// confirmed or cancelled.
	ListOpenByProduct(ctx context.Context, productID string) ([]*Offer, error)
	// ListExpired returns open offers whose expiry is at or before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Offer, error)
}

// ProposeRequest is a new trade offer.
type ProposeRequest struct {
	ProductID  string
	ProposerID string
	Item       OfferedItem
	Notes      string
}

func (r ProposeRequest) validate() error {
	return validation.Validate(
		validation.Required("productId", r.ProductID),
		validation.Required("offeredItemName", r.Item.Name),
		validation.MaxLength("offeredItemName", r.Item.Name, 255),
		validation.MaxLength("offeredItemDescription", r.Item.Description, validation.MaxStringLength),
		validation.PositiveAmount("offeredItemValue", r.Item.Value),
		validation.ImageList("offeredItemImages", r.Item.Images),
		validation.MaxLength("notes", r.Notes, maxNotesLength),
	).Err()
}

// ConfirmResult is the outcome of a confirmation.
type ConfirmResult struct {
	Offer            *Offer
	IsFullyConfirmed bool
	// Triggered is true only for the call that completed the trade.
	Triggered   bool
	Transaction *transactions.Transaction
}

// Service is the trade offer engine.
type Service struct {
	store        Store
	catalog      Catalog
	escrow       Escrow
	finalizer    Finalizer
	messenger    Messenger
	publisher    realtime.Publisher
	productLocks *syncutil.ContextShardedMutex
	offerLocks   *syncutil.ContextShardedMutex
	ttl          time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewService creates a new trade service.
func NewService(store Store, cat Catalog, esc Escrow, fin Finalizer, msg Messenger) *Service {
	return &Service{
		store:        store,
		catalog:      cat,
		escrow:       esc,
		finalizer:    fin,
		messenger:    msg,
		publisher:    realtime.Discard,
		productLocks: syncutil.NewContextShardedMutex(),
		offerLocks:   syncutil.NewContextShardedMutex(),
		logger:       slog.Default(),
		now:          time.Now,
	}
}

// WithLogger sets the logger.
func (s *Service) WithLogger(l *slog.Logger) *Service {
	s.logger = l
	return s
}

// WithPublisher sets the realtime publisher.
func (s *Service) WithPublisher(p realtime.Publisher) *Service {
	s.publisher = p
	return s
}

// WithOfferTTL makes new offers expire after ttl. Zero disables expiry.
func (s *Service) WithOfferTTL(ttl time.Duration) *Service {
	s.ttl = ttl
	return s
}

// Propose creates a trade offer, reserving the proposer's funds and posting
// the offer to the seller.
func (s *Service) Propose(ctx context.Context, req ProposeRequest) (*Offer, *conversation.Message, error) {
	ctx, span := traces.StartSpan(ctx, "trade.Propose",
		traces.ProductID(req.ProductID), traces.UserID(req.ProposerID), traces.Amount(req.Item.Value))
	defer span.End()

	req.Item.Name = strings.TrimSpace(req.Item.Name)
	if err := req.validate(); err != nil {
		return nil, nil, err
	}
	if req.ProposerID == "" {
		return nil, nil, apperr.Validation("proposer is required")
	}

	unlock, err := s.productLocks.LockContext(ctx, req.ProductID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	product, err := s.catalog.Get(ctx, req.ProductID)
	if err != nil {
		return nil, nil, err
	}
	if product.SellerID == req.ProposerID {
		return nil, nil, apperr.Forbidden("cannot propose a trade on your own product")
	}
	if !product.AllowTrade {
		return nil, nil, apperr.Validation("product does not accept trades")
	}
	if product.Status != catalog.StatusActive {
		return nil, nil, apperr.Validation("product is no longer available")
	}

	now := s.now()
	offer := &Offer{
		ID:           idgen.WithPrefix("off_"),
		ProductID:    product.ID,
		ProductTitle: product.Title,
		ProposerID:   req.ProposerID,
		SellerID:     product.SellerID,
		Item:         req.Item,
		Notes:        validation.SanitizeString(req.Notes, maxNotesLength),
		EscrowAmount: money.Max(req.Item.Value, product.TradeFloor()),
		CreatedAt:    now,
	}
	offer.setState(StateUnconfirmed, now)
	if s.ttl > 0 {
		exp := now.Add(s.ttl)
		offer.ExpiresAt = &exp
	}

	ticket, err := s.escrow.Reserve(ctx, offer.ProposerID, offer.EscrowAmount, offer.ID)
	if err != nil {
		return nil, nil, err
	}
	offer.EscrowTicketID = ticket.ID

	if err := s.store.Create(ctx, offer); err != nil {
		s.releaseAfterFailure(ctx, offer, err)
		return nil, nil, fmt.Errorf("failed to create trade offer: %w", err)
	}

	msg, err := s.messenger.PostTradeOffer(ctx, offer.ProposerID, offer.SellerID, payloadOf(offer))
	if err != nil {
		s.releaseAfterFailure(ctx, offer, err)
		offer.CancelReason = "offer could not be delivered"
		offer.setState(StateCancelled, s.now())
		if updErr := s.store.Update(ctx, offer); updErr != nil {
			s.logger.Warn("failed to cancel undelivered offer", "offer_id", offer.ID, "error", updErr)
		}
		return nil, nil, fmt.Errorf("failed to post trade offer: %w", err)
	}

	offer.ConversationID = msg.ConversationID
	offer.MessageID = msg.ID
	if err := s.store.Update(ctx, offer); err != nil {
		// The message carries the offer id, so the offer stays reachable.
		s.logger.Warn("failed to link offer to its message", "offer_id", offer.ID, "message_id", msg.ID, "error", err)
	}

	offersProposedTotal.Inc()
	s.publisher.Publish(realtime.EventTradeProposed, offer.clone(), offer.ProposerID, offer.SellerID)
	return offer.clone(), msg, nil
}

func (s *Service) releaseAfterFailure(ctx context.Context, offer *Offer, cause error) {
	if _, err := s.escrow.Release(ctx, offer.EscrowTicketID); err != nil {
		s.logger.Error("CRITICAL: escrow held for failed trade offer",
			"offer_id", offer.ID, "ticket_id", offer.EscrowTicketID, "amount", offer.EscrowAmount,
			"cause", cause, "error", err)
	}
}

// Confirm records userID's confirmation as role. The call that completes
// both confirmations settles escrow and records the transaction.
func (s *Service) Confirm(ctx context.Context, offerID, userID string, role Role) (*ConfirmResult, error) {
	ctx, span := traces.StartSpan(ctx, "trade.Confirm",
		traces.OfferID(offerID), traces.UserID(userID), traces.Role(string(role)))
	defer span.End()

	if role != RoleBuyer && role != RoleSeller {
		return nil, apperr.Validation("role must be buyer or seller")
	}

	peek, err := s.store.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}

	unlockProduct, err := s.productLocks.LockContext(ctx, peek.ProductID)
	if err != nil {
		return nil, err
	}
	defer unlockProduct()

	result, err := s.confirmLocked(ctx, offerID, userID, role)
	if err != nil {
		if errors.Is(err, escrow.ErrPayoutUnrecorded) {
			s.sweepProduct(ctx, peek.ProductID, offerID)
		}
		traces.RecordError(span, err)
		return nil, err
	}
	if result.Triggered {
		s.sweepProduct(ctx, result.Offer.ProductID, result.Offer.ID)
	}
	return result, nil
}

// confirmLocked runs under the product lock and takes the offer lock.
func (s *Service) confirmLocked(ctx context.Context, offerID, userID string, role Role) (*ConfirmResult, error) {
	unlock, err := s.offerLocks.LockContext(ctx, offerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	offer, err := s.store.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	held, ok := offer.RoleOf(userID)
	if !ok {
		return nil, apperr.Forbidden("not a party to this trade offer")
	}
	if held != role {
		return nil, apperr.Forbidden("cannot confirm as %s on this offer", role)
	}

	if offer.State == StateFullyConfirmed {
		tx, err := s.ensureFinalized(ctx, offer, nil)
		if err != nil {
			return nil, err
		}
		return &ConfirmResult{Offer: offer.clone(), IsFullyConfirmed: true, Transaction: tx}, nil
	}

	next, err := offer.State.Confirm(role)
	if err != nil {
		return nil, err
	}
	if next == offer.State {
		return &ConfirmResult{Offer: offer.clone()}, nil
	}

	if next != StateFullyConfirmed {
		offer.setState(next, s.now())
		if err := s.store.Update(ctx, offer); err != nil {
			return nil, fmt.Errorf("failed to record confirmation: %w", err)
		}
		offersConfirmedTotal.WithLabelValues(string(role)).Inc()
		s.publisher.Publish(realtime.EventTradeConfirmed, offer.clone(), offer.ProposerID, offer.SellerID)
		return &ConfirmResult{Offer: offer.clone()}, nil
	}

	offersConfirmedTotal.WithLabelValues(string(role)).Inc()
	tx, err := s.complete(ctx, offer)
	if err != nil {
		return nil, err
	}
	return &ConfirmResult{Offer: offer.clone(), IsFullyConfirmed: true, Triggered: true, Transaction: tx}, nil
}

// complete settles a fully confirmed offer and records the trade.
//
// The product is held as reserved while escrow settles so a failed
// settlement can put it back on sale. Once the ledger pays the seller the
// offer is final, even when the ticket write failed; the next confirmation
// completes the ticket and the transaction.
func (s *Service) complete(ctx context.Context, offer *Offer) (*transactions.Transaction, error) {
	if err := s.catalog.SetStatus(ctx, offer.ProductID, catalog.StatusActive, catalog.StatusReserved); err != nil {
		if errors.Is(err, catalog.ErrStatusChanged) {
			return nil, ErrProductUnavailable
		}
		return nil, err
	}

	settlement, err := s.escrow.Settle(ctx, escrow.SettleRequest{
		BuyerTicketID: offer.EscrowTicketID,
		SellerID:      offer.SellerID,
		Amount:        offer.EscrowAmount,
	})
	switch {
	case err == nil, apperr.IsAlreadyFinalized(err):
	case errors.Is(err, escrow.ErrPayoutUnrecorded):
		s.markSold(ctx, offer)
		offer.setState(StateFullyConfirmed, s.now())
		if updErr := s.persistCompleted(ctx, offer); updErr != nil {
			return nil, updErr
		}
		return nil, fmt.Errorf("failed to settle trade: %w", err)
	default:
		if revertErr := s.catalog.SetStatus(ctx, offer.ProductID, catalog.StatusReserved, catalog.StatusActive); revertErr != nil {
			s.logger.Error("failed to put product back on sale after failed settlement",
				"product_id", offer.ProductID, "offer_id", offer.ID, "error", revertErr)
		}
		return nil, fmt.Errorf("failed to settle trade: %w", err)
	}

	s.markSold(ctx, offer)
	offer.setState(StateFullyConfirmed, s.now())
	tx, finErr := s.ensureFinalized(ctx, offer, settlement)

	if err := s.persistCompleted(ctx, offer); err != nil {
		return nil, err
	}
	if finErr != nil {
		return nil, finErr
	}

	tradesCompletedTotal.Inc()
	s.publisher.Publish(realtime.EventTradeConfirmed, offer.clone(), offer.ProposerID, offer.SellerID)
	return tx, nil
}

func (s *Service) markSold(ctx context.Context, offer *Offer) {
	if err := s.catalog.SetStatus(ctx, offer.ProductID, catalog.StatusReserved, catalog.StatusSold); err != nil {
		s.logger.Error("product not marked sold after settled trade",
			"product_id", offer.ProductID, "offer_id", offer.ID, "error", err)
	}
}

// persistCompleted records a fully confirmed offer after its payout.
func (s *Service) persistCompleted(ctx context.Context, offer *Offer) error {
	err := retry.AfterPayout.Do(ctx, func(ctx context.Context) error {
		return s.store.Update(ctx, offer)
	})
	if err != nil {
		s.logger.Error("CRITICAL: trade settled but offer not updated",
			"offer_id", offer.ID, "ticket_id", offer.EscrowTicketID, "error", err)
		return fmt.Errorf("failed to record completed trade (requires manual resolution): %w", err)
	}
	return nil
}

// ensureFinalized returns the trade transaction for a fully confirmed
// offer, writing it if a previous completion did not. settlement may be nil
// when recovering; the fee is then re-quoted from the settled ticket.
func (s *Service) ensureFinalized(ctx context.Context, offer *Offer, settlement *escrow.Settlement) (*transactions.Transaction, error) {
	if offer.TransactionID != "" {
		return s.finalizer.GetByKey(ctx, offer.ID)
	}

	if settlement == nil {
		// Settlement is idempotent per ticket and reports the recorded fee.
		var err error
		settlement, err = s.escrow.Settle(ctx, escrow.SettleRequest{
			BuyerTicketID: offer.EscrowTicketID,
			SellerID:      offer.SellerID,
			Amount:        offer.EscrowAmount,
		})
		if err != nil && !apperr.IsAlreadyFinalized(err) {
			return nil, fmt.Errorf("failed to settle trade: %w", err)
		}
	}

	tx, err := s.finalizer.Finalize(ctx, transactions.FinalizeRequest{
		Key:            offer.ID,
		Type:           transactions.TypeTrade,
		BuyerID:        offer.ProposerID,
		SellerID:       offer.SellerID,
		ProductID:      offer.ProductID,
		OfferID:        offer.ID,
		EscrowTicketID: offer.EscrowTicketID,
		Amount:         offer.EscrowAmount,
		PlatformFee:    settlement.Fee,
		Description:    fmt.Sprintf("Traded %s for %s", offer.Item.Name, offer.ProductTitle),
	})
	if err != nil && !apperr.IsAlreadyFinalized(err) {
		s.logger.Error("trade settled but transaction not recorded, will retry on next confirmation",
			"offer_id", offer.ID, "error", err)
		return nil, fmt.Errorf("failed to record trade transaction: %w", err)
	}

	if offer.TransactionID == "" {
		offer.TransactionID = tx.ID
		if err := s.store.Update(ctx, offer); err != nil {
			s.logger.Warn("failed to link offer to transaction", "offer_id", offer.ID, "error", err)
		}
	}
	return tx, nil
}

// ConfirmByMessage confirms the offer carried by a trade-offer message.
func (s *Service) ConfirmByMessage(ctx context.Context, messageID, userID string, role Role) (*ConfirmResult, error) {
	msg, err := s.messenger.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	body, ok := msg.Body.(conversation.TradeOfferBody)
	if !ok {
		return nil, ErrNotTradeOffer
	}
	return s.Confirm(ctx, body.Offer.OfferID, userID, role)
}

// Accept confirms on behalf of the seller. The proposer cannot accept
// their own offer.
func (s *Service) Accept(ctx context.Context, offerID, userID string) (*ConfirmResult, error) {
	offer, err := s.store.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	role, ok := offer.RoleOf(userID)
	if !ok {
		return nil, apperr.Forbidden("not a party to this trade offer")
	}
	if role == RoleBuyer {
		return nil, apperr.Forbidden("cannot accept your own trade offer")
	}
	return s.Confirm(ctx, offerID, userID, role)
}

// Cancel withdraws an open offer and returns the proposer's escrow. Either
// party may cancel until the trade is fully confirmed. Cancelling a closed
// offer returns it unchanged.
func (s *Service) Cancel(ctx context.Context, offerID, userID, reason string) (*Offer, error) {
	ctx, span := traces.StartSpan(ctx, "trade.Cancel", traces.OfferID(offerID), traces.UserID(userID))
	defer span.End()

	peek, err := s.store.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if !peek.IsParticipant(userID) {
		return nil, apperr.Forbidden("not a party to this trade offer")
	}

	unlockProduct, err := s.productLocks.LockContext(ctx, peek.ProductID)
	if err != nil {
		return nil, err
	}
	defer unlockProduct()

	unlock, err := s.offerLocks.LockContext(ctx, offerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	offer, err := s.store.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	switch {
	case offer.State == StateFullyConfirmed:
		return nil, apperr.Transition("trade offer", offer.State, StateCancelled)
	case !offer.State.IsOpen():
		return offer, nil
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "cancelled by " + string(mustRole(offer, userID))
	}
	if err := s.close(ctx, offer, StateCancelled, validation.SanitizeString(reason, maxNotesLength), userID); err != nil {
		return nil, err
	}
	return offer.clone(), nil
}

// close releases an open offer's escrow and moves it to a closed state.
// Callers hold the product and offer locks.
func (s *Service) close(ctx context.Context, offer *Offer, state State, reason, actorID string) error {
	if _, err := s.escrow.Release(ctx, offer.EscrowTicketID); err != nil {
		return fmt.Errorf("failed to release trade escrow: %w", err)
	}

	offer.CancelReason = reason
	offer.setState(state, s.now())
	if err := s.store.Update(ctx, offer); err != nil {
		// Escrow is already back with the proposer; a stale open offer can
		// only fail to settle.
		s.logger.Error("offer escrow released but state not recorded",
			"offer_id", offer.ID, "state", state, "error", err)
		return fmt.Errorf("failed to record offer %s: %w", state, err)
	}

	offersClosedTotal.WithLabelValues(string(state)).Inc()

	notice := fmt.Sprintf("Trade offer of %s for %s was %s: %s", offer.Item.Name, offer.ProductTitle, state, reason)
	if _, err := s.messenger.PostSystemNotice(ctx, actorID, offer.Counterparty(actorID), notice); err != nil {
		s.logger.Warn("failed to post offer notice", "offer_id", offer.ID, "error", err)
	}
	s.publisher.Publish(realtime.EventTradeCancelled, offer.clone(), offer.ProposerID, offer.SellerID)
	return nil
}

// sweepProduct cancels the remaining open offers on a sold product.
// Callers hold the product lock.
func (s *Service) sweepProduct(ctx context.Context, productID, soldOfferID string) {
	open, err := s.store.ListOpenByProduct(ctx, productID)
	if err != nil {
		s.logger.Warn("failed to list open offers on sold product", "product_id", productID, "error", err)
		return
	}
	for _, o := range open {
		if o.ID == soldOfferID {
			continue
		}
		s.closeOne(ctx, o.ID, StateCancelled, reasonSold, s.now())
	}
}

// SweepProduct cancels every open offer on a product that was sold by
// other means, e.g. a completed purchase.
func (s *Service) SweepProduct(ctx context.Context, productID string) error {
	unlock, err := s.productLocks.LockContext(ctx, productID)
	if err != nil {
		return err
	}
	defer unlock()
	s.sweepProduct(ctx, productID, "")
	return nil
}

// closeOne closes a single offer by id under its lock. Expiry is checked
// against now. Callers hold the product lock.
func (s *Service) closeOne(ctx context.Context, offerID string, state State, reason string, now time.Time) bool {
	unlock, err := s.offerLocks.LockContext(ctx, offerID)
	if err != nil {
		return false
	}
	defer unlock()

	offer, err := s.store.Get(ctx, offerID)
	if err != nil || !offer.State.IsOpen() {
		return false
	}
	if state == StateExpired && (offer.ExpiresAt == nil || offer.ExpiresAt.After(now)) {
		return false
	}
	if err := s.close(ctx, offer, state, reason, offer.SellerID); err != nil {
		s.logger.Warn("failed to close offer", "offer_id", offerID, "state", state, "error", err)
		return false
	}
	return true
}

// ExpireStale expires open offers whose deadline has passed and releases
// their escrow. It returns how many offers were expired.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.store.ListExpired(ctx, now, 100)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, o := range stale {
		if s.expireOne(ctx, o, now) {
			expired++
		}
	}
	return expired, nil
}

func (s *Service) expireOne(ctx context.Context, o *Offer, now time.Time) bool {
	unlock, err := s.productLocks.LockContext(ctx, o.ProductID)
	if err != nil {
		return false
	}
	defer unlock()
	return s.closeOne(ctx, o.ID, StateExpired, reasonExpired, now)
}

// Get returns an offer visible to userID. Other users get ErrOfferNotFound.
func (s *Service) Get(ctx context.Context, offerID, userID string) (*Offer, error) {
	offer, err := s.store.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if !offer.IsParticipant(userID) {
		return nil, ErrOfferNotFound
	}
	return offer, nil
}

// ListByUser returns offers the user proposed or received, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]*Offer, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListByUser(ctx, userID, limit)
}

func payloadOf(o *Offer) conversation.TradeOfferPayload {
	return conversation.TradeOfferPayload{
		OfferID:              o.ID,
		ProductID:            o.ProductID,
		ProductTitle:         o.ProductTitle,
		OfferItemName:        o.Item.Name,
		OfferItemDescription: o.Item.Description,
		OfferItemValue:       o.Item.Value,
		OfferItemImages:      o.Item.Images,
		Notes:                o.Notes,
	}
}

func mustRole(o *Offer, userID string) Role {
	r, _ := o.RoleOf(userID)
	return r
}
