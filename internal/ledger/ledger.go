// Package ledger tracks user balances on the marketplace.
//
// Every user has a spendable balance and an escrow balance. Funds enter
// through deposits, move into escrow when a trade or purchase is proposed,
// and leave escrow either back to the owner (release) or to the seller and
// the platform (settlement). Both balances are never negative and every
// mutation writes one or more history entries in the same atomic step.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/merakimarket/meraki/internal/apperr"
	"github.com/merakimarket/meraki/internal/pagination"
	"github.com/merakimarket/meraki/internal/syncutil"
)

var (
	ErrInvalidAmount      = fmt.Errorf("%w: amount must be greater than zero", apperr.ErrValidation)
	ErrDuplicateReference = fmt.Errorf("ledger reference already applied: %w", apperr.ErrAlreadyFinalized)
	ErrEscrowShortfall    = errors.New("escrow balance lower than requested amount")
	ErrReferenceSettled   = fmt.Errorf("%w: escrow reference already paid out", apperr.ErrInvalidTransition)
)

// EntryType classifies a ledger entry
type EntryType string

const (
	EntryDeposit       EntryType = "deposit"
	EntryEscrowLock    EntryType = "escrow_lock"
	EntryEscrowRefund  EntryType = "escrow_refund"
	EntryEscrowSettle  EntryType = "escrow_settle"
	EntryEscrowReceive EntryType = "escrow_receive"
	EntryPlatformFee   EntryType = "platform_fee"
)

// Entry represents a ledger entry
type Entry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Type        EntryType `json:"type"`
	Amount      int64     `json:"amount"`
	Reference   string    `json:"reference,omitempty"` // offer, purchase or deposit id
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Balance represents a user's balance
type Balance struct {
	UserID    string    `json:"userId"`
	Available int64     `json:"balance"`       // Can be spent
	Escrowed  int64     `json:"escrowBalance"` // Locked against open offers and purchases
	TotalIn   int64     `json:"totalIn"`       // Lifetime deposits and sale proceeds
	TotalOut  int64     `json:"totalOut"`      // Lifetime settled spending
	UpdatedAt time.Time `json:"updatedAt"`
}

// Settlement moves Amount out of BuyerID's escrow: Fee goes to PlatformID,
// the rest to SellerID's spendable balance.
type Settlement struct {
	BuyerID    string
	SellerID   string
	PlatformID string
	Amount     int64
	Fee        int64
	Reference  string
}

// Net is the part of the settlement credited to the seller.
func (s Settlement) Net() int64 {
	return s.Amount - s.Fee
}

// Store persists ledger data. Implementations apply each call atomically:
// either every balance change and entry is written, or none is.
type Store interface {
	GetBalance(ctx context.Context, userID string) (*Balance, error)
	// Credit adds to available. Returns ErrDuplicateReference when an entry of
	// the same type and reference already exists.
	Credit(ctx context.Context, userID string, amount int64, entryType EntryType, reference, description string) error
	// EscrowLock moves available -> escrowed. Returns *apperr.InsufficientFundsError
	// when available < amount.
	EscrowLock(ctx context.Context, userID string, amount int64, reference string) error
	// RefundEscrow moves escrowed -> available.
	RefundEscrow(ctx context.Context, userID string, amount int64, reference string) error
	// SettleEscrow debits the buyer's escrow and credits seller and platform.
	// Returns ErrDuplicateReference when the reference was already settled.
	SettleEscrow(ctx context.Context, s Settlement) error
	// GetHistory returns up to limit entries older than before, newest
	// first. A nil cursor starts from the newest entry.
	GetHistory(ctx context.Context, userID string, limit int, before *pagination.Cursor) ([]*Entry, error)
	HasReference(ctx context.Context, entryType EntryType, reference string) (bool, error)
	// Totals sums balances across every account.
	Totals(ctx context.Context) (*Totals, error)
}

// Totals is a platform-wide snapshot of ledger balances. Deposits are the
// only way money enters the ledger, so Available+Escrowed equals Deposited
// when the books balance.
type Totals struct {
	Available int64 `json:"available"`
	Escrowed  int64 `json:"escrowed"`
	Deposited int64 `json:"deposited"`
}

// Drift is the amount held in balances that no deposit accounts for.
func (t *Totals) Drift() int64 {
	return t.Available + t.Escrowed - t.Deposited
}

// Ledger manages user balances
type Ledger struct {
	store Store
	locks *syncutil.ContextShardedMutex
}

// New creates a new ledger
func New(store Store) *Ledger {
	return &Ledger{
		store: store,
		locks: syncutil.NewContextShardedMutex(),
	}
}

// GetBalance returns a user's current balance
func (l *Ledger) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	return l.store.GetBalance(ctx, userID)
}

// Totals returns platform-wide balance sums.
func (l *Ledger) Totals(ctx context.Context) (*Totals, error) {
	t, err := l.store.Totals(ctx)
	if err != nil {
		return nil, err
	}
	recordTotals(t)
	return t, nil
}

// Deposit credits a confirmed external deposit exactly once per reference.
func (l *Ledger) Deposit(ctx context.Context, userID string, amount int64, reference string) (err error) {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	defer observeOp("deposit")(&err)

	unlock, err := l.locks.LockContext(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	exists, err := l.store.HasReference(ctx, EntryDeposit, reference)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateReference
	}
	return l.store.Credit(ctx, userID, amount, EntryDeposit, reference, "deposit")
}

// EscrowLock moves funds from a user's spendable balance into escrow.
func (l *Ledger) EscrowLock(ctx context.Context, userID string, amount int64, reference string) (err error) {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	defer observeOp("escrow_lock")(&err)

	unlock, err := l.locks.LockContext(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	bal, err := l.store.GetBalance(ctx, userID)
	if err != nil {
		return err
	}
	if bal.Available < amount {
		return &apperr.InsufficientFundsError{Required: amount, Available: bal.Available}
	}
	return l.store.EscrowLock(ctx, userID, amount, reference)
}

// RefundEscrow returns escrowed funds to the owner's spendable balance.
// A reference that was already paid out cannot be refunded.
func (l *Ledger) RefundEscrow(ctx context.Context, userID string, amount int64, reference string) (err error) {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	defer observeOp("escrow_refund")(&err)

	unlock, err := l.locks.LockContext(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	if reference != "" {
		settled, err := l.store.HasReference(ctx, EntryEscrowSettle, reference)
		if err != nil {
			return err
		}
		if settled {
			return ErrReferenceSettled
		}
	}

	bal, err := l.store.GetBalance(ctx, userID)
	if err != nil {
		return err
	}
	if bal.Escrowed < amount {
		return fmt.Errorf("refund %d for %s: %w", amount, userID, ErrEscrowShortfall)
	}
	return l.store.RefundEscrow(ctx, userID, amount, reference)
}

// SettleEscrow pays out a buyer's escrow to the seller and the platform.
// Buyer, seller and platform are locked together. A reference is paid out
// at most once; a repeat returns ErrDuplicateReference and moves nothing.
func (l *Ledger) SettleEscrow(ctx context.Context, s Settlement) (err error) {
	if s.Amount <= 0 {
		return ErrInvalidAmount
	}
	if s.Fee < 0 || s.Fee > s.Amount {
		return fmt.Errorf("%w: fee %d outside [0, %d]", apperr.ErrValidation, s.Fee, s.Amount)
	}
	if s.BuyerID == s.SellerID {
		return apperr.Forbidden("buyer and seller must differ")
	}
	defer observeOp("escrow_settle")(&err)

	unlock, err := l.locks.LockManyContext(ctx, s.BuyerID, s.SellerID, s.PlatformID)
	if err != nil {
		return err
	}
	defer unlock()

	if s.Reference != "" {
		settled, err := l.store.HasReference(ctx, EntryEscrowSettle, s.Reference)
		if err != nil {
			return err
		}
		if settled {
			return ErrDuplicateReference
		}
	}

	bal, err := l.store.GetBalance(ctx, s.BuyerID)
	if err != nil {
		return err
	}
	if bal.Escrowed < s.Amount {
		return fmt.Errorf("settle %d for %s: %w", s.Amount, s.BuyerID, ErrEscrowShortfall)
	}
	return l.store.SettleEscrow(ctx, s)
}

// GetHistory returns the newest ledger entries for a user.
func (l *Ledger) GetHistory(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	page, err := l.HistoryPage(ctx, userID, limit, "")
	if err != nil {
		return nil, err
	}
	return page.Entries, nil
}

// HistoryPage is one page of a user's ledger history.
type HistoryPage struct {
	Entries    []*Entry `json:"entries"`
	NextCursor string   `json:"nextCursor,omitempty"`
	HasMore    bool     `json:"hasMore"`
}

// HistoryPage returns entries older than cursor, newest first.
func (l *Ledger) HistoryPage(ctx context.Context, userID string, limit int, cursor string) (*HistoryPage, error) {
	if limit <= 0 {
		limit = 50
	}
	before, err := pagination.Decode(cursor)
	if err != nil {
		return nil, err
	}
	entries, err := l.store.GetHistory(ctx, userID, limit+1, before)
	if err != nil {
		return nil, err
	}
	entries, next, more := pagination.ComputePage(entries, limit, func(e *Entry) (time.Time, string) {
		return e.CreatedAt, e.ID
	})
	if entries == nil {
		entries = []*Entry{}
	}
	return &HistoryPage{Entries: entries, NextCursor: next, HasMore: more}, nil
}
