package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/marketplace/internal/domain/product"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound             = errors.New("order not found")
	ErrEmptyOrder           = errors.New("order must have at least one item")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrBlankShippingAddress = errors.New("shipping address is required")
	ErrInconsistentResult   = errors.New("realized line count does not match requested items")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrUnrecognizedStatus   = errors.New("unrecognized order status")
)

// InsufficientStockError reports which product could not be reserved so
// callers can distinguish out-of-stock from not-found.
type InsufficientStockError struct {
	ProductID string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type Status string

const (
	StatusUnpaid    Status = "UNPAID"
	StatusPaid      Status = "PAID"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCanceled  Status = "CANCELED"
)

var recognizedStatuses = map[Status]bool{
	StatusUnpaid:    true,
	StatusPaid:      true,
	StatusShipped:   true,
	StatusDelivered: true,
	StatusCanceled:  true,
}

// Recognized reports whether s is a known status code
func (s Status) Recognized() bool {
	return recognizedStatuses[s]
}

// RealizedLine is a priced order line. Caption and description are
// snapshots taken at order time; later product edits never alter
// historical orders.
type RealizedLine struct {
	ProductID   string          `json:"product_id"`
	Caption     string          `json:"caption"`
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Order is created once and mutated only through status transitions;
// orders are never deleted.
type Order struct {
	ID              string         `json:"id"`
	OwnerID         string         `json:"owner_id"`
	ShippingAddress string         `json:"shipping_address"`
	Status          Status         `json:"status"`
	Lines           []RealizedLine `json:"lines"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Total is the order cost across all lines
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity)))
	}
	return total
}

// Page is one page of an owner's order history
type Page struct {
	Orders []Order `json:"orders"`
	Total  int64   `json:"total"`
	Page   int     `json:"page"`
	Size   int     `json:"size"`
}

// ItemRequest names a product and how many units to order
type ItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// RegisterRequest is the input to order registration
type RegisterRequest struct {
	Items           []ItemRequest `json:"items"`
	ShippingAddress string        `json:"shipping_address"`
	PromoCode       string        `json:"promo_code,omitempty"`
}

// PricedItem pairs a loaded product with the requested quantity for the
// pricing engine.
type PricedItem struct {
	Product  product.Product
	Quantity int64
}

// Store persists orders
type Store interface {
	Save(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByOwner(ctx context.Context, ownerID string, page, size int) (Page, error)
}

// Inventory is the product-store surface order registration needs:
// all-or-nothing loads plus the atomic conditional reservation.
type Inventory interface {
	FindByID(ctx context.Context, id string) (*product.Product, error)
	FindByIDs(ctx context.Context, ids []string) ([]product.Product, error)
	DecrementAvailable(ctx context.Context, id string, qty int64) (bool, error)
	AdjustAvailable(ctx context.Context, id string, delta int64) error
}

// Pricer turns product/quantity pairs into realized lines
type Pricer interface {
	PriceLines(ctx context.Context, items []PricedItem, promoCode string) ([]RealizedLine, error)
}

// Publisher emits domain events after the triggering write commits
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}
