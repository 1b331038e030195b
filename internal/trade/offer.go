package trade

import (
	"time"

	"github.com/merakimarket/meraki/internal/apperr"
)

// State is the confirmation state of a trade offer.
//
//	unconfirmed ──buyer──▶ confirmed_by_buyer ──seller──▶ fully_confirmed
//	     │        ──seller─▶ confirmed_by_seller ──buyer──▶ fully_confirmed
//	     └──cancel/expire──▶ cancelled | expired
//
// No edge un-confirms, and fully_confirmed is final.
type State string

const (
	StateUnconfirmed       State = "unconfirmed"
	StateConfirmedByBuyer  State = "confirmed_by_buyer"
	StateConfirmedBySeller State = "confirmed_by_seller"
	StateFullyConfirmed    State = "fully_confirmed"
	StateCancelled         State = "cancelled"
	StateExpired           State = "expired"
)

// IsOpen reports whether the offer can still be confirmed or cancelled.
func (s State) IsOpen() bool {
	return s == StateUnconfirmed || s == StateConfirmedByBuyer || s == StateConfirmedBySeller
}

// BuyerConfirmed reports whether the proposer has confirmed.
func (s State) BuyerConfirmed() bool {
	return s == StateConfirmedByBuyer || s == StateFullyConfirmed
}

// SellerConfirmed reports whether the product owner has confirmed.
func (s State) SellerConfirmed() bool {
	return s == StateConfirmedBySeller || s == StateFullyConfirmed
}

// Confirm returns the state after role confirms. Confirming twice with the
// same role returns the current state.
func (s State) Confirm(role Role) (State, error) {
	switch {
	case s == StateFullyConfirmed:
		return s, nil
	case !s.IsOpen():
		return s, apperr.Transition("trade offer", s, "confirmed")
	case role == RoleBuyer && s == StateConfirmedBySeller, role == RoleSeller && s == StateConfirmedByBuyer:
		return StateFullyConfirmed, nil
	case role == RoleBuyer:
		return StateConfirmedByBuyer, nil
	case role == RoleSeller:
		if s == StateConfirmedBySeller {
			return s, nil
		}
		return StateConfirmedBySeller, nil
	}
	return s, apperr.Validation("unknown role %q", role)
}

// Role is the side a user confirms as.
type Role string

const (
	RoleBuyer  Role = "buyer"  // proposer of the offer
	RoleSeller Role = "seller" // owner of the product
)

// OfferedItem is what the proposer gives in exchange for the product.
type OfferedItem struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Value       int64    `json:"value"`
	Images      []string `json:"images"`
}

// Offer is an item-for-item trade proposal against a listed product.
type Offer struct {
	ID                string      `json:"id"`
	ProductID         string      `json:"productId"`
	ProductTitle      string      `json:"productTitle"`
	ProposerID        string      `json:"buyerId"`
	SellerID          string      `json:"sellerId"`
	Item              OfferedItem `json:"offeredItem"`
	Notes             string      `json:"notes,omitempty"`
	EscrowTicketID    string      `json:"escrowTicketId"`
	EscrowAmount      int64       `json:"escrowAmount"`
	ConversationID    string      `json:"conversationId,omitempty"`
	MessageID         string      `json:"messageId,omitempty"`
	State             State       `json:"state"`
	ConfirmedByBuyer  bool        `json:"confirmedByBuyer"`
	ConfirmedBySeller bool        `json:"confirmedBySeller"`
	TransactionID     string      `json:"transactionId,omitempty"`
	CancelReason      string      `json:"cancelReason,omitempty"`
	ExpiresAt         *time.Time  `json:"expiresAt,omitempty"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

// setState moves the offer and refreshes the derived confirmation flags.
// Closing an offer keeps the flags it had.
func (o *Offer) setState(s State, now time.Time) {
	o.State = s
	if s.IsOpen() || s == StateFullyConfirmed {
		o.ConfirmedByBuyer = s.BuyerConfirmed()
		o.ConfirmedBySeller = s.SellerConfirmed()
	}
	o.UpdatedAt = now
}

// RoleOf returns the role userID holds on the offer.
func (o *Offer) RoleOf(userID string) (Role, bool) {
	switch userID {
	case "":
		return "", false
	case o.ProposerID:
		return RoleBuyer, true
	case o.SellerID:
		return RoleSeller, true
	}
	return "", false
}

// IsParticipant reports whether userID is the proposer or the seller.
func (o *Offer) IsParticipant(userID string) bool {
	_, ok := o.RoleOf(userID)
	return ok
}

// Counterparty returns the other participant.
func (o *Offer) Counterparty(userID string) string {
	if userID == o.ProposerID {
		return o.SellerID
	}
	return o.ProposerID
}

func (o *Offer) clone() *Offer {
	cp := *o
	cp.Item.Images = append([]string(nil), o.Item.Images...)
	if o.ExpiresAt != nil {
		t := *o.ExpiresAt
		cp.ExpiresAt = &t
	}
	return &cp
}
