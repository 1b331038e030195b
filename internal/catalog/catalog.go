// Package catalog is the product listing boundary used by trading and
// purchasing. Product status only moves by compare-and-set so concurrent
// sales cannot both win.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/merakimarket/meraki/internal/apperr"
	"github.com/merakimarket/meraki/internal/idgen"
	"github.com/merakimarket/meraki/internal/validation"
)

var (
	ErrProductNotFound = fmt.Errorf("product %w", apperr.ErrNotFound)
	// ErrStatusChanged means the product was not in the expected status.
	ErrStatusChanged = fmt.Errorf("%w: product status changed", apperr.ErrInvalidTransition)
)

// Status is a listing's availability.
type Status string

const (
	StatusActive   Status = "active"
	StatusReserved Status = "reserved" // held by a pending purchase
	StatusSold     Status = "sold"
)

// allowed lists the status edges a listing may take.
var allowed = map[Status][]Status{
	StatusActive:   {StatusReserved, StatusSold},
	StatusReserved: {StatusActive, StatusSold},
}

// Product is a listing. AllowBuy and AllowTrade are independent; a listing
// with neither only accepts messages.
type Product struct {
	ID          string    `json:"id" db:"id"`
	SellerID    string    `json:"sellerId" db:"seller_id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Price       *int64    `json:"price,omitempty" db:"price"`
	TradeValue  *int64    `json:"tradeValue,omitempty" db:"trade_value"`
	AllowBuy    bool      `json:"allowBuy" db:"allow_buy"`
	AllowTrade  bool      `json:"allowTrade" db:"allow_trade"`
	Status      Status    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// TradeFloor returns the seller's minimum trade value, zero when unset.
func (p *Product) TradeFloor() int64 {
	if p.TradeValue == nil {
		return 0
	}
	return *p.TradeValue
}

// CreateRequest is a new listing.
type CreateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       *int64 `json:"price"`
	TradeValue  *int64 `json:"tradeValue"`
	AllowBuy    bool   `json:"allowBuy"`
	AllowTrade  bool   `json:"allowTrade"`
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	SellerID string
	Status   Status
	Limit    int
}

// Store persists products.
type Store interface {
	Create(ctx context.Context, p *Product) error
	Get(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context, f ListFilter) ([]*Product, error)
	// CompareAndSetStatus moves id from one status to another, returning
	// ErrStatusChanged when the current status is not from.
	CompareAndSetStatus(ctx context.Context, id string, from, to Status) error
}

// Service manages listings.
type Service struct {
	store Store
}

// NewService creates a new catalog service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create lists a new product for sellerID.
func (s *Service) Create(ctx context.Context, sellerID string, req CreateRequest) (*Product, error) {
	req.Title = strings.TrimSpace(req.Title)
	errs := validation.Validate(
		validation.Required("sellerId", sellerID),
		validation.Required("title", req.Title),
		validation.MaxLength("title", req.Title, 255),
		validation.MaxLength("description", req.Description, validation.MaxStringLength),
	)
	if req.AllowBuy && (req.Price == nil || *req.Price <= 0) {
		errs = append(errs, validation.ValidationError{Field: "price", Message: "is required when buying is allowed"})
	}
	if req.Price != nil && *req.Price <= 0 {
		errs = append(errs, validation.ValidationError{Field: "price", Message: "must be greater than zero"})
	}
	if req.TradeValue != nil && *req.TradeValue <= 0 {
		errs = append(errs, validation.ValidationError{Field: "tradeValue", Message: "must be greater than zero"})
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &Product{
		ID:          idgen.WithPrefix("prod_"),
		SellerID:    sellerID,
		Title:       req.Title,
		Description: validation.SanitizeString(req.Description, validation.MaxStringLength),
		Price:       req.Price,
		TradeValue:  req.TradeValue,
		AllowBuy:    req.AllowBuy,
		AllowTrade:  req.AllowTrade,
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return p, nil
}

// Get returns a product by ID.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	return s.store.Get(ctx, id)
}

// List returns products matching f, newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*Product, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	return s.store.List(ctx, f)
}

// SetStatus moves a product along an allowed edge, failing with
// ErrStatusChanged if another caller moved it first.
func (s *Service) SetStatus(ctx context.Context, id string, from, to Status) error {
	ok := false
	for _, next := range allowed[from] {
		if next == to {
			ok = true
			break
		}
	}
	if !ok {
		return apperr.Transition("product", from, to)
	}
	return s.store.CompareAndSetStatus(ctx, id, from, to)
}
