package escrow

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresStore persists escrow tickets in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed escrow store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const ticketColumns = `id, user_id, amount, reference, status, seller_id,
		       fee, net_to_seller, created_at, updated_at, resolved_at`

func (p *PostgresStore) Create(ctx context.Context, t *Ticket) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO escrow_tickets (`+ticketColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.UserID, t.Amount, t.Reference, string(t.Status), nullString(t.SellerID),
		nullInt(t.Fee, t.Status), nullInt(t.NetToSeller, t.Status),
		t.CreatedAt, t.UpdatedAt, nullTime(t.ResolvedAt),
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Ticket, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM escrow_tickets WHERE id = $1`, id)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	return t, err
}

func (p *PostgresStore) Update(ctx context.Context, t *Ticket) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE escrow_tickets SET
			status = $1, seller_id = $2, fee = $3, net_to_seller = $4,
			updated_at = $5, resolved_at = $6
		WHERE id = $7`,
		string(t.Status), nullString(t.SellerID),
		nullInt(t.Fee, t.Status), nullInt(t.NetToSeller, t.Status),
		t.UpdatedAt, nullTime(t.ResolvedAt), t.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTicketNotFound
	}
	return nil
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Ticket, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+ticketColumns+`
		FROM escrow_tickets
		WHERE user_id = $1 OR seller_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (p *PostgresStore) SumHeld(ctx context.Context) (int64, error) {
	var total int64
	err := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM escrow_tickets WHERE status = $1`,
		string(StatusHeld),
	).Scan(&total)
	return total, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(row scanner) (*Ticket, error) {
	t := &Ticket{}
	var (
		status     string
		sellerID   sql.NullString
		fee, net   sql.NullInt64
		resolvedAt sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Amount, &t.Reference, &status, &sellerID,
		&fee, &net, &t.CreatedAt, &t.UpdatedAt, &resolvedAt); err != nil {
		return nil, err
	}
	t.Status = Status(status)
	t.SellerID = sellerID.String
	t.Fee = fee.Int64
	t.NetToSeller = net.Int64
	if resolvedAt.Valid {
		t.ResolvedAt = &resolvedAt.Time
	}
	return t, nil
}

// nullString converts an empty Go string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullInt stores settlement figures only once a ticket is settled.
func nullInt(v int64, status Status) sql.NullInt64 {
	if status != StatusSettled {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
