package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/merakimarket/meraki/internal/apperr"
	"github.com/merakimarket/meraki/internal/idgen"
	"github.com/merakimarket/meraki/internal/pagination"
)

// PostgreSQL error codes the store maps onto ledger errors.
const (
	pqUniqueViolation = "23505"
	pqCheckViolation  = "23514"
)

// PostgresStore implements Store with PostgreSQL. Schema lives in
// migrations/00001_ledger.sql and 00008_settlement_refs.sql.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed ledger store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

// GetBalance retrieves a user's balance. Unknown users have a zero balance.
func (p *PostgresStore) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	bal := &Balance{UserID: userID}

	err := p.db.QueryRowContext(ctx, `
		SELECT available, escrowed, total_in, total_out, updated_at
		FROM balances WHERE user_id = $1
	`, userID).Scan(&bal.Available, &bal.Escrowed, &bal.TotalIn, &bal.TotalOut, &bal.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return &Balance{UserID: userID, UpdatedAt: time.Now()}, nil
	}
	if err != nil {
		return nil, err
	}
	return bal, nil
}

// Credit adds funds to a user's available balance
func (p *PostgresStore) Credit(ctx context.Context, userID string, amount int64, entryType EntryType, reference, description string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := creditTx(ctx, tx, userID, amount); err != nil {
		return err
	}
	if err := insertEntry(ctx, tx, userID, entryType, amount, reference, description); err != nil {
		return err
	}
	return tx.Commit()
}

// EscrowLock moves funds from available to escrowed. The WHERE guard and the
// CHECK constraint both keep available from going negative.
func (p *PostgresStore) EscrowLock(ctx context.Context, userID string, amount int64, reference string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE balances SET
			available  = available - $2,
			escrowed   = escrowed  + $2,
			updated_at = NOW()
		WHERE user_id = $1 AND available >= $2
	`, userID, amount)
	if err != nil {
		return mapPQError(fmt.Errorf("failed to lock escrow: %w", err), amount)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		var available int64
		err := tx.QueryRowContext(ctx, `SELECT available FROM balances WHERE user_id = $1`, userID).Scan(&available)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return &apperr.InsufficientFundsError{Required: amount, Available: available}
	}

	if err := insertEntry(ctx, tx, userID, EntryEscrowLock, amount, reference, "escrow_locked"); err != nil {
		return err
	}
	return tx.Commit()
}

// RefundEscrow returns escrowed funds to available.
func (p *PostgresStore) RefundEscrow(ctx context.Context, userID string, amount int64, reference string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE balances SET
			escrowed   = escrowed  - $2,
			available  = available + $2,
			updated_at = NOW()
		WHERE user_id = $1 AND escrowed >= $2
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to refund escrow: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("refund %d for %s: %w", amount, userID, ErrEscrowShortfall)
	}

	if err := insertEntry(ctx, tx, userID, EntryEscrowRefund, amount, reference, "escrow_refunded"); err != nil {
		return err
	}
	return tx.Commit()
}

// SettleEscrow debits the buyer's escrow and credits seller and platform in
// one transaction. The unique index on settled references rolls back a
// second payout for the same reference.
func (p *PostgresStore) SettleEscrow(ctx context.Context, s Settlement) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE balances SET
			escrowed   = escrowed  - $2,
			total_out  = total_out + $2,
			updated_at = NOW()
		WHERE user_id = $1 AND escrowed >= $2
	`, s.BuyerID, s.Amount)
	if err != nil {
		return fmt.Errorf("failed to debit buyer escrow: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("settle %d for %s: %w", s.Amount, s.BuyerID, ErrEscrowShortfall)
	}
	if err := insertEntry(ctx, tx, s.BuyerID, EntryEscrowSettle, s.Amount, s.Reference, "escrow_settled"); err != nil {
		return err
	}

	if net := s.Net(); net > 0 {
		if err := creditTx(ctx, tx, s.SellerID, net); err != nil {
			return fmt.Errorf("failed to credit seller: %w", err)
		}
		if err := insertEntry(ctx, tx, s.SellerID, EntryEscrowReceive, net, s.Reference, "escrow_payment_received"); err != nil {
			return err
		}
	}

	if s.Fee > 0 {
		if err := creditTx(ctx, tx, s.PlatformID, s.Fee); err != nil {
			return fmt.Errorf("failed to credit platform fee: %w", err)
		}
		if err := insertEntry(ctx, tx, s.PlatformID, EntryPlatformFee, s.Fee, s.Reference, "platform_fee"); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetHistory retrieves ledger entries for a user, keyset-paged on
// (created_at, id).
func (p *PostgresStore) GetHistory(ctx context.Context, userID string, limit int, before *pagination.Cursor) ([]*Entry, error) {
	query := `
		SELECT id, user_id, type, amount, reference, description, created_at
		FROM ledger_entries
		WHERE user_id = $1`
	args := []any{userID, limit}
	if before != nil {
		query += ` AND (created_at, id) < ($3, $4)`
		args = append(args, before.CreatedAt, before.ID)
	}
	query += `
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var reference, description sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Amount, &reference, &description, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Reference = reference.String
		e.Description = description.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// HasReference checks whether an entry of this type was already recorded
func (p *PostgresStore) HasReference(ctx context.Context, entryType EntryType, reference string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM ledger_entries WHERE type = $1 AND reference = $2)
	`, string(entryType), reference).Scan(&exists)
	return exists, err
}

// Totals reads balance and deposit sums from one snapshot.
func (p *PostgresStore) Totals(ctx context.Context) (*Totals, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	t := &Totals{}
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(available), 0), COALESCE(SUM(escrowed), 0) FROM balances
	`).Scan(&t.Available, &t.Escrowed); err != nil {
		return nil, fmt.Errorf("failed to sum balances: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE type = $1
	`, string(EntryDeposit)).Scan(&t.Deposited); err != nil {
		return nil, fmt.Errorf("failed to sum deposits: %w", err)
	}
	return t, tx.Commit()
}

func creditTx(ctx context.Context, tx *sql.Tx, userID string, amount int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO balances (user_id, available, total_in, updated_at)
		VALUES ($1, $2, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			available  = balances.available + $2,
			total_in   = balances.total_in  + $2,
			updated_at = NOW()
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, userID string, t EntryType, amount int64, reference, description string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, user_id, type, amount, reference, description, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NOW())
	`, idgen.Sortable("led_"), userID, string(t), amount, reference, description)
	if err != nil {
		return mapPQError(fmt.Errorf("failed to record %s entry: %w", t, err), amount)
	}
	return nil
}

// mapPQError converts constraint violations into ledger errors.
func mapPQError(err error, amount int64) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch string(pqErr.Code) {
	case pqUniqueViolation:
		return ErrDuplicateReference
	case pqCheckViolation:
		return &apperr.InsufficientFundsError{Required: amount}
	}
	return err
}
