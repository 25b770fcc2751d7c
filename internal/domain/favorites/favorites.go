package favorites

import (
	"context"

	"github.com/example/marketplace/internal/domain/product"
	"github.com/example/marketplace/internal/identity"
)

// List is a per-account set of favorite products. Unlike a cart it never
// converts into anything; it only remembers product ids.
type List struct {
	OwnerID    string   `json:"owner_id"`
	ProductIDs []string `json:"product_ids"`
}

// Store persists favorite lists keyed by owner
type Store interface {
	FindByOwner(ctx context.Context, ownerID string) (*List, error)
	Add(ctx context.Context, ownerID, productID string) error
	Remove(ctx context.Context, ownerID, productID string) error
	RemoveProductFromAll(ctx context.Context, productID string) error
}

// ProductChecker verifies a product id before it is favorited
type ProductChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// Service manages favorite lists
type Service struct {
	store    Store
	products ProductChecker
}

func NewService(store Store, products ProductChecker) *Service {
	return &Service{store: store, products: products}
}

// Get returns the caller's favorites; an account with none gets the empty
// list without anything being persisted
func (s *Service) Get(ctx context.Context, principal identity.Principal) (*List, error) {
	if !principal.Authenticated() {
		return nil, identity.ErrAccessDenied
	}
	return s.store.FindByOwner(ctx, principal.AccountID)
}

// Add puts a product on the caller's list; favoriting it twice is a no-op
func (s *Service) Add(ctx context.Context, principal identity.Principal, productID string) error {
	if !principal.Authenticated() {
		return identity.ErrAccessDenied
	}

	ok, err := s.products.Exists(ctx, productID)
	if err != nil {
		return err
	}
	if !ok {
		return product.ErrNotFound
	}

	return s.store.Add(ctx, principal.AccountID, productID)
}

// Remove drops a product from the caller's list; removing an absent
// product is a no-op
func (s *Service) Remove(ctx context.Context, principal identity.Principal, productID string) error {
	if !principal.Authenticated() {
		return identity.ErrAccessDenied
	}
	return s.store.Remove(ctx, principal.AccountID, productID)
}
