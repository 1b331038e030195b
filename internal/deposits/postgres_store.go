package deposits

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists deposits in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed deposit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

const depositColumns = `id, user_id, amount, method, status, external_ref, client_secret,
		       created_at, updated_at, confirmed_at`

func (p *PostgresStore) Create(ctx context.Context, d *Deposit) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO deposits (`+depositColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.UserID, d.Amount, string(d.Method), string(d.Status),
		nullString(d.ExternalRef), nullString(d.ClientSecret),
		d.CreatedAt, d.UpdatedAt, nullTime(d.ConfirmedAt),
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicateExtRef
	}
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Deposit, error) {
	return p.getOne(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1`, id)
}

func (p *PostgresStore) GetByExternalRef(ctx context.Context, ref string) (*Deposit, error) {
	return p.getOne(ctx, `SELECT `+depositColumns+` FROM deposits WHERE external_ref = $1`, ref)
}

func (p *PostgresStore) getOne(ctx context.Context, query, arg string) (*Deposit, error) {
	d, err := scanDeposit(p.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDepositNotFound
	}
	return d, err
}

func (p *PostgresStore) Update(ctx context.Context, d *Deposit) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE deposits SET status = $1, updated_at = $2, confirmed_at = $3
		WHERE id = $4`,
		string(d.Status), d.UpdatedAt, nullTime(d.ConfirmedAt), d.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrDepositNotFound
	}
	return nil
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Deposit, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+depositColumns+`
		FROM deposits
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Deposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDeposit(row scanner) (*Deposit, error) {
	d := &Deposit{}
	var (
		method, status string
		extRef, secret sql.NullString
		confirmedAt    sql.NullTime
	)
	if err := row.Scan(&d.ID, &d.UserID, &d.Amount, &method, &status, &extRef, &secret,
		&d.CreatedAt, &d.UpdatedAt, &confirmedAt); err != nil {
		return nil, err
	}
	d.Method = Method(method)
	d.Status = Status(status)
	d.ExternalRef = extRef.String
	d.ClientSecret = secret.String
	if confirmedAt.Valid {
		d.ConfirmedAt = &confirmedAt.Time
	}
	return d, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
