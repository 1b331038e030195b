package trade

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists trade offers in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed offer store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

const offerColumns = `id, product_id, product_title, proposer_id, seller_id,
		       item_name, item_description, item_value, item_images, notes,
		       escrow_amount, escrow_ticket_id, conversation_id, message_id,
		       state, confirmed_by_buyer, confirmed_by_seller, transaction_id,
		       cancel_reason, expires_at, created_at, updated_at`

const openStates = `('unconfirmed', 'confirmed_by_buyer', 'confirmed_by_seller')`

func (p *PostgresStore) Create(ctx context.Context, o *Offer) error {
	images, err := imagesJSON(o.Item.Images)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO trade_offers (`+offerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
		        $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		o.ID, o.ProductID, o.ProductTitle, o.ProposerID, o.SellerID,
		o.Item.Name, o.Item.Description, o.Item.Value, images, o.Notes,
		o.EscrowAmount, nullString(o.EscrowTicketID), nullString(o.ConversationID), nullString(o.MessageID),
		string(o.State), o.ConfirmedByBuyer, o.ConfirmedBySeller, nullString(o.TransactionID),
		o.CancelReason, nullTime(o.ExpiresAt), o.CreatedAt, o.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Offer, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM trade_offers WHERE id = $1`, id)
	o, err := scanOffer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOfferNotFound
	}
	return o, err
}

func (p *PostgresStore) Update(ctx context.Context, o *Offer) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE trade_offers SET
			escrow_ticket_id = $1, conversation_id = $2, message_id = $3,
			state = $4, confirmed_by_buyer = $5, confirmed_by_seller = $6,
			transaction_id = $7, cancel_reason = $8, updated_at = $9
		WHERE id = $10`,
		nullString(o.EscrowTicketID), nullString(o.ConversationID), nullString(o.MessageID),
		string(o.State), o.ConfirmedByBuyer, o.ConfirmedBySeller,
		nullString(o.TransactionID), o.CancelReason, o.UpdatedAt, o.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrOfferNotFound
	}
	return nil
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Offer, error) {
	return p.query(ctx, `
		SELECT `+offerColumns+`
		FROM trade_offers
		WHERE proposer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
}

func (p *PostgresStore) ListOpenByProduct(ctx context.Context, productID string) ([]*Offer, error) {
	return p.query(ctx, `
		SELECT `+offerColumns+`
		FROM trade_offers
		WHERE product_id = $1 AND state IN `+openStates+`
		ORDER BY created_at DESC`, productID)
}

func (p *PostgresStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*Offer, error) {
	return p.query(ctx, `
		SELECT `+offerColumns+`
		FROM trade_offers
		WHERE state IN `+openStates+` AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2`, now, limit)
}

func (p *PostgresStore) query(ctx context.Context, q string, args ...any) ([]*Offer, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOffer(row scanner) (*Offer, error) {
	o := &Offer{}
	var (
		images                        []byte
		ticketID, convID, msgID, txID sql.NullString
		state                         string
		expiresAt                     sql.NullTime
	)
	if err := row.Scan(&o.ID, &o.ProductID, &o.ProductTitle, &o.ProposerID, &o.SellerID,
		&o.Item.Name, &o.Item.Description, &o.Item.Value, &images, &o.Notes,
		&o.EscrowAmount, &ticketID, &convID, &msgID,
		&state, &o.ConfirmedByBuyer, &o.ConfirmedBySeller, &txID,
		&o.CancelReason, &expiresAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(images, &o.Item.Images); err != nil {
		return nil, fmt.Errorf("decode item images for offer %s: %w", o.ID, err)
	}
	o.EscrowTicketID = ticketID.String
	o.ConversationID = convID.String
	o.MessageID = msgID.String
	o.TransactionID = txID.String
	o.State = State(state)
	if expiresAt.Valid {
		o.ExpiresAt = &expiresAt.Time
	}
	return o, nil
}

// imagesJSON encodes images as JSON text; lib/pq sends []byte as bytea.
func imagesJSON(images []string) (string, error) {
	if images == nil {
		images = []string{}
	}
	b, err := json.Marshal(images)
	if err != nil {
		return "", err
	}
	return string(b), nil
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
