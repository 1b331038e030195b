// Package conversation relays messages between pairs of users. Trade offers
// travel as typed messages so either side can act on them from the thread.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/merakimarket/meraki/internal/apperr"
	"github.com/merakimarket/meraki/internal/idgen"
	"github.com/merakimarket/meraki/internal/realtime"
	"github.com/merakimarket/meraki/internal/validation"
)

var (
	ErrConversationNotFound = fmt.Errorf("conversation %w", apperr.ErrNotFound)
	ErrMessageNotFound      = fmt.Errorf("message %w", apperr.ErrNotFound)
)

// MaxMessageLength bounds plain and system message text.
const MaxMessageLength = 4000

// Conversation is the thread between two users. Participants are stored in
// lexicographic order so a pair maps to exactly one conversation.
type Conversation struct {
	ID            string    `json:"id"`
	ParticipantA  string    `json:"participantA"`
	ParticipantB  string    `json:"participantB"`
	LastMessageID string    `json:"lastMessageId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Has reports whether userID takes part in the conversation.
func (c *Conversation) Has(userID string) bool {
	return userID != "" && (userID == c.ParticipantA || userID == c.ParticipantB)
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID string) string {
	if userID == c.ParticipantA {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// normalize orders a user pair.
func normalize(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// Store persists conversations and messages.
type Store interface {
	// GetOrCreate returns the conversation for the normalized pair (a < b),
	// creating it with id if none exists.
	GetOrCreate(ctx context.Context, id, a, b string, now time.Time) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// Append stores m and moves the conversation's last message to it.
	Append(ctx context.Context, m *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListConversations(ctx context.Context, userID string, limit int) ([]*Conversation, error)
	// ListMessages returns up to limit messages, oldest first.
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)
}

// Service implements the conversation relay.
type Service struct {
	store     Store
	publisher realtime.Publisher
	logger    *slog.Logger
}

// NewService creates a new conversation service.
func NewService(store Store, publisher realtime.Publisher) *Service {
	if publisher == nil {
		publisher = realtime.Discard
	}
	return &Service{store: store, publisher: publisher, logger: slog.Default()}
}

// WithLogger sets the logger.
func (s *Service) WithLogger(l *slog.Logger) *Service {
	s.logger = l
	return s
}

// Send appends body to the conversation between sender and recipient,
// creating the conversation on first contact.
func (s *Service) Send(ctx context.Context, senderID, recipientID string, body Body) (*Message, error) {
	if err := validateSend(senderID, recipientID, body); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	a, b := normalize(senderID, recipientID)
	conv, err := s.store.GetOrCreate(ctx, idgen.WithPrefix("conv_"), a, b, now)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation: %w", err)
	}

	msg := &Message{
		ID:             idgen.Sortable("msg_"),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      now,
	}
	if err := s.store.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	messagesTotal.WithLabelValues(string(body.Kind())).Inc()
	s.publisher.Publish(realtime.EventMessageCreated, msg, senderID, recipientID)
	return msg, nil
}

// PostTradeOffer posts a trade-offer message from the proposer to the seller.
func (s *Service) PostTradeOffer(ctx context.Context, proposerID, sellerID string, offer TradeOfferPayload) (*Message, error) {
	return s.Send(ctx, proposerID, sellerID, TradeOfferBody{Offer: offer})
}

// PostSystemNotice posts a marketplace notice into the pair's conversation,
// attributed to senderID.
func (s *Service) PostSystemNotice(ctx context.Context, senderID, recipientID, text string) (*Message, error) {
	return s.Send(ctx, senderID, recipientID, SystemBody{Text: text})
}

// GetMessage returns a message by ID.
func (s *Service) GetMessage(ctx context.Context, id string) (*Message, error) {
	return s.store.GetMessage(ctx, id)
}

// ListConversations returns userID's conversations, most recently active first.
func (s *Service) ListConversations(ctx context.Context, userID string, limit int) ([]*Conversation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListConversations(ctx, userID, limit)
}

// ListMessages returns messages in a conversation the user takes part in.
// Other users get ErrConversationNotFound.
func (s *Service) ListMessages(ctx context.Context, conversationID, userID string, limit int) ([]*Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.Has(userID) {
		return nil, ErrConversationNotFound
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListMessages(ctx, conversationID, limit)
}

func validateSend(senderID, recipientID string, body Body) error {
	errs := validation.Validate(
		validation.Required("senderId", senderID),
		validation.Required("recipientId", recipientID),
	)
	if senderID != "" && senderID == recipientID {
		errs = append(errs, validation.ValidationError{Field: "recipientId", Message: "must differ from sender"})
	}
	switch b := body.(type) {
	case PlainBody:
		if strings.TrimSpace(b.Text) == "" {
			errs = append(errs, validation.ValidationError{Field: "text", Message: "is required"})
		} else if len(b.Text) > MaxMessageLength {
			errs = append(errs, validation.ValidationError{Field: "text", Message: "exceeds maximum length"})
		}
	case SystemBody:
		if b.Text == "" {
			errs = append(errs, validation.ValidationError{Field: "text", Message: "is required"})
		}
	case TradeOfferBody:
		if b.Offer.OfferID == "" || b.Offer.ProductID == "" {
			errs = append(errs, validation.ValidationError{Field: "tradeDetails", Message: "must name an offer and product"})
		}
	case nil:
		errs = append(errs, validation.ValidationError{Field: "body", Message: "is required"})
	}
	return errs.Err()
}
