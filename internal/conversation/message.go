package conversation

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind discriminates message bodies.
type Kind string

const (
	KindPlain      Kind = "plain"
	KindTradeOffer Kind = "trade_offer"
	KindSystem     Kind = "system"
)

// Body is the content of a message. Exactly one of PlainBody,
// TradeOfferBody or SystemBody.
type Body interface {
	Kind() Kind
	// Preview is a short human-readable form used for list views and the
	// message content column.
	Preview() string
}

// PlainBody is a free-text message between users.
type PlainBody struct {
	Text string
}

func (PlainBody) Kind() Kind        { return KindPlain }
func (b PlainBody) Preview() string { return b.Text }

// SystemBody is a notice generated by the marketplace, e.g. an offer being
// cancelled.
type SystemBody struct {
	Text string
}

func (SystemBody) Kind() Kind        { return KindSystem }
func (b SystemBody) Preview() string { return b.Text }

// TradeOfferPayload is the offer snapshot carried by a trade-offer message.
type TradeOfferPayload struct {
	OfferID              string   `json:"offerId"`
	ProductID            string   `json:"productId"`
	ProductTitle         string   `json:"productTitle"`
	OfferItemName        string   `json:"offerItemName"`
	OfferItemDescription string   `json:"offerItemDescription"`
	OfferItemValue       int64    `json:"offerItemValue"`
	OfferItemImages      []string `json:"offerItemImages"`
	Notes                string   `json:"notes"`
}

// TradeOfferBody posts a trade offer into a conversation.
type TradeOfferBody struct {
	Offer TradeOfferPayload
}

func (TradeOfferBody) Kind() Kind { return KindTradeOffer }

func (b TradeOfferBody) Preview() string {
	return fmt.Sprintf("Trade offer: %s for %s", b.Offer.OfferItemName, b.Offer.ProductTitle)
}

// Message is a single entry in a conversation.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           Body
	CreatedAt      time.Time
}

// wireMessage is the JSON form of Message. Content is set for every kind;
// TradeDetails only for trade offers.
type wireMessage struct {
	ID             string             `json:"id"`
	ConversationID string             `json:"conversationId"`
	SenderID       string             `json:"senderId"`
	Kind           Kind               `json:"kind"`
	Content        string             `json:"content"`
	TradeDetails   *TradeOfferPayload `json:"tradeDetails,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Body == nil {
		return nil, fmt.Errorf("message %s has no body", m.ID)
	}
	w := wireMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Kind:           m.Body.Kind(),
		Content:        m.Body.Preview(),
		CreatedAt:      m.CreatedAt,
	}
	if offer, ok := m.Body.(TradeOfferBody); ok {
		p := offer.Offer
		w.TradeDetails = &p
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler, dispatching on kind.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	body, err := decodeBody(w.Kind, w.Content, w.TradeDetails)
	if err != nil {
		return err
	}
	*m = Message{
		ID:             w.ID,
		ConversationID: w.ConversationID,
		SenderID:       w.SenderID,
		Body:           body,
		CreatedAt:      w.CreatedAt,
	}
	return nil
}

func decodeBody(kind Kind, content string, details *TradeOfferPayload) (Body, error) {
	switch kind {
	case KindPlain:
		return PlainBody{Text: content}, nil
	case KindSystem:
		return SystemBody{Text: content}, nil
	case KindTradeOffer:
		if details == nil {
			return nil, fmt.Errorf("trade offer message without trade details")
		}
		return TradeOfferBody{Offer: *details}, nil
	default:
		return nil, fmt.Errorf("unknown message kind %q", kind)
	}
}
