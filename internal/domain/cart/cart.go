package cart

import (
	"context"
	"errors"
	"sort"

	"github.com/example/marketplace/internal/domain/order"
	"github.com/example/marketplace/internal/domain/product"
	"github.com/example/marketplace/internal/identity"
)

var (
	ErrNotFound  = errors.New("cart not found")
	ErrEmptyCart = errors.New("cart has no items")
)

// Cart is a per-account order draft: product id to quantity. Each account
// owns at most one; it disappears once converted into an order.
type Cart struct {
	OwnerID string           `json:"owner_id"`
	Items   map[string]int64 `json:"items"`
}

// Store persists carts keyed by owner
type Store interface {
	FindByOwner(ctx context.Context, ownerID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, ownerID string) error
	RemoveProductFromAll(ctx context.Context, productID string) error
}

// ProductChecker verifies a product id before it enters a cart
type ProductChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// OrderPlacer converts a finished draft into an order
type OrderPlacer interface {
	Register(ctx context.Context, principal identity.Principal, req order.RegisterRequest) (*order.Order, error)
}

// Service manages order drafts
type Service struct {
	store    Store
	products ProductChecker
	orders   OrderPlacer
}

func NewService(store Store, products ProductChecker, orders OrderPlacer) *Service {
	return &Service{store: store, products: products, orders: orders}
}

// Get returns the caller's draft, creating an empty one if none exists
func (s *Service) Get(ctx context.Context, principal identity.Principal) (*Cart, error) {
	if !principal.Authenticated() {
		return nil, identity.ErrAccessDenied
	}

	c, err := s.store.FindByOwner(ctx, principal.AccountID)
	if err == nil {
		return c, nil
	}

	c = &Cart{OwnerID: principal.AccountID, Items: make(map[string]int64)}
	if err := s.store.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddProduct sets the draft quantity for a product
func (s *Service) AddProduct(ctx context.Context, principal identity.Principal, productID string, quantity int64) error {
	if !principal.Authenticated() {
		return identity.ErrAccessDenied
	}
	if quantity <= 0 {
		return order.ErrInvalidQuantity
	}

	ok, err := s.products.Exists(ctx, productID)
	if err != nil {
		return err
	}
	if !ok {
		return product.ErrNotFound
	}

	c, err := s.Get(ctx, principal)
	if err != nil {
		return err
	}
	c.Items[productID] = quantity
	return s.store.Save(ctx, c)
}

// RemoveProduct drops a product from the draft; removing an absent
// product is a no-op
func (s *Service) RemoveProduct(ctx context.Context, principal identity.Principal, productID string) error {
	if !principal.Authenticated() {
		return identity.ErrAccessDenied
	}

	c, err := s.store.FindByOwner(ctx, principal.AccountID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	delete(c.Items, productID)
	return s.store.Save(ctx, c)
}

// Clear deletes the caller's draft entirely
func (s *Service) Clear(ctx context.Context, principal identity.Principal) error {
	if !principal.Authenticated() {
		return identity.ErrAccessDenied
	}
	return s.store.Delete(ctx, principal.AccountID)
}

// Checkout converts the draft into a registered order and deletes the
// draft. The draft survives a failed registration untouched.
func (s *Service) Checkout(ctx context.Context, principal identity.Principal, shippingAddress, promoCode string) (*order.Order, error) {
	if !principal.Authenticated() {
		return nil, identity.ErrAccessDenied
	}

	c, err := s.store.FindByOwner(ctx, principal.AccountID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrEmptyCart
	}
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, ErrEmptyCart
	}

	items := make([]order.ItemRequest, 0, len(c.Items))
	for id, qty := range c.Items {
		items = append(items, order.ItemRequest{ProductID: id, Quantity: qty})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	o, err := s.orders.Register(ctx, principal, order.RegisterRequest{
		Items:           items,
		ShippingAddress: shippingAddress,
		PromoCode:       promoCode,
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.Delete(ctx, principal.AccountID); err != nil {
		return o, err
	}
	return o, nil
}
