package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists conversations and messages in PostgreSQL.
// Trade-offer payloads are stored in messages.trade_details (JSONB).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed conversation store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

const conversationColumns = `id, participant_a, participant_b, last_message_id, created_at, updated_at`

func (p *PostgresStore) GetOrCreate(ctx context.Context, id, a, b string, now time.Time) (*Conversation, error) {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO conversations (id, participant_a, participant_b, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (participant_a, participant_b) DO NOTHING`,
		id, a, b, now)
	if err != nil {
		return nil, err
	}
	row := p.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE participant_a = $1 AND participant_b = $2`, a, b)
	return scanConversation(row)
}

func (p *PostgresStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	return c, err
}

func (p *PostgresStore) Append(ctx context.Context, m *Message) error {
	// JSONB parameters go over the wire as text.
	var details sql.NullString
	if offer, ok := m.Body.(TradeOfferBody); ok {
		raw, err := json.Marshal(offer.Offer)
		if err != nil {
			return fmt.Errorf("failed to encode trade details: %w", err)
		}
		details = sql.NullString{String: string(raw), Valid: true}
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, kind, content, trade_details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ConversationID, m.SenderID, string(m.Body.Kind()), m.Body.Preview(), details, m.CreatedAt,
	); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, `
		UPDATE conversations SET last_message_id = $1, updated_at = $2 WHERE id = $3`,
		m.ID, m.CreatedAt, m.ConversationID)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrConversationNotFound
	}
	return tx.Commit()
}

const messageColumns = `id, conversation_id, sender_id, kind, content, trade_details, created_at`

func (p *PostgresStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	return m, err
}

func (p *PostgresStore) ListConversations(ctx context.Context, userID string, limit int) ([]*Conversation, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE participant_a = $1 OR participant_b = $1
		ORDER BY updated_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (p *PostgresStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	// Newest page, returned oldest first. Message ids sort by time.
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM (
			SELECT `+messageColumns+` FROM messages
			WHERE conversation_id = $1
			ORDER BY id DESC
			LIMIT $2
		) page ORDER BY id ASC`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*Conversation, error) {
	c := &Conversation{}
	var last sql.NullString
	if err := row.Scan(&c.ID, &c.ParticipantA, &c.ParticipantB, &last, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.LastMessageID = last.String
	return c, nil
}

func scanMessage(row scanner) (*Message, error) {
	m := &Message{}
	var (
		kind, content string
		details       []byte
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &kind, &content, &details, &m.CreatedAt); err != nil {
		return nil, err
	}
	var payload *TradeOfferPayload
	if len(details) > 0 {
		payload = &TradeOfferPayload{}
		if err := json.Unmarshal(details, payload); err != nil {
			return nil, fmt.Errorf("failed to decode trade details: %w", err)
		}
	}
	body, err := decodeBody(Kind(kind), content, payload)
	if err != nil {
		return nil, err
	}
	m.Body = body
	return m, nil
}
