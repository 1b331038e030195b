package transactions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

// PostgresStore persists transactions in PostgreSQL. The timeline is a
// JSONB array.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed transaction store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

const txColumns = `id, idempotency_key, type, status, buyer_id, seller_id, product_id,
		       offer_id, escrow_ticket_id, amount, platform_fee, shipping, timeline,
		       created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, t *Transaction) error {
	timeline, err := json.Marshal(t.Timeline)
	if err != nil {
		return fmt.Errorf("failed to encode timeline: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO transactions (`+txColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID, t.Key, string(t.Type), string(t.Status), t.BuyerID, t.SellerID, t.ProductID,
		nullString(t.OfferID), nullString(t.EscrowTicketID), t.Amount, t.PlatformFee,
		nullInt64(t.Shipping), string(timeline), t.CreatedAt, t.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return ErrDuplicateKey
	}
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	return p.getOne(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = $1`, id)
}

func (p *PostgresStore) GetByKey(ctx context.Context, key string) (*Transaction, error) {
	return p.getOne(ctx, `SELECT `+txColumns+` FROM transactions WHERE idempotency_key = $1`, key)
}

func (p *PostgresStore) getOne(ctx context.Context, query string, arg string) (*Transaction, error) {
	t, err := scanTransaction(p.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	return t, err
}

func (p *PostgresStore) Update(ctx context.Context, t *Transaction) error {
	timeline, err := json.Marshal(t.Timeline)
	if err != nil {
		return fmt.Errorf("failed to encode timeline: %w", err)
	}
	result, err := p.db.ExecContext(ctx, `
		UPDATE transactions SET status = $1, timeline = $2, updated_at = $3
		WHERE id = $4`,
		string(t.Status), string(timeline), t.UpdatedAt, t.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+txColumns+`
		FROM transactions
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*Transaction, error) {
	t := &Transaction{}
	var (
		txType, status  string
		offerID, ticket sql.NullString
		shipping        sql.NullInt64
		timeline        []byte
	)
	if err := row.Scan(&t.ID, &t.Key, &txType, &status, &t.BuyerID, &t.SellerID, &t.ProductID,
		&offerID, &ticket, &t.Amount, &t.PlatformFee, &shipping, &timeline,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Type = Type(txType)
	t.Status = Status(status)
	t.OfferID = offerID.String
	t.EscrowTicketID = ticket.String
	if shipping.Valid {
		v := shipping.Int64
		t.Shipping = &v
	}
	if err := json.Unmarshal(timeline, &t.Timeline); err != nil {
		return nil, fmt.Errorf("failed to decode timeline: %w", err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
