package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// SchemaSQLite creates the products table for a local SQLite catalog.
// PostgreSQL uses migrations/00002_products.sql.
const SchemaSQLite = `
CREATE TABLE IF NOT EXISTS products(
  id          TEXT PRIMARY KEY,
  seller_id   TEXT NOT NULL,
  title       TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  price       INTEGER CHECK (price IS NULL OR price > 0),
  trade_value INTEGER CHECK (trade_value IS NULL OR trade_value > 0),
  allow_buy   INTEGER NOT NULL DEFAULT 0,
  allow_trade INTEGER NOT NULL DEFAULT 0,
  status      TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active','reserved','sold')),
  created_at  TIMESTAMP NOT NULL,
  updated_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_seller ON products(seller_id);
`

// SQLStore implements Store on sqlx. Queries are written with ? and rebound
// for the driver, so the same store serves PostgreSQL and SQLite.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore creates a product store on an open sqlx handle.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// OpenSQLite opens (and creates if needed) a SQLite catalog at dsn.
func OpenSQLite(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection also keeps :memory: databases intact.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(SchemaSQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

var _ Store = (*SQLStore)(nil)

const productColumns = `id, seller_id, title, description, price, trade_value,
  allow_buy, allow_trade, status, created_at, updated_at`

func (s *SQLStore) Create(ctx context.Context, p *Product) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (:id, :seller_id, :title, :description, :price, :trade_value,
		        :allow_buy, :allow_trade, :status, :created_at, :updated_at)`, p)
	return err
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Product, error) {
	var p Product
	err := s.db.GetContext(ctx, &p, s.db.Rebind(`SELECT `+productColumns+` FROM products WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLStore) List(ctx context.Context, f ListFilter) ([]*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1=1`
	var args []any
	if f.SellerID != "" {
		query += ` AND seller_id = ?`
		args = append(args, f.SellerID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, f.Limit)

	var out []*Product
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLStore) CompareAndSetStatus(ctx context.Context, id string, from, to Status) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE products SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`),
		string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 1 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return ErrStatusChanged
}
