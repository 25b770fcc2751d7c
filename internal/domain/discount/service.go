package discount

import (
	"context"
	"time"

	"github.com/example/marketplace/internal/identity"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventDiscountRegistered = "DiscountRegistered"
	EventDiscountDeleted    = "DiscountDeleted"
)

type DiscountRegistered struct {
	Discount Discount `json:"discount"`
}

type DiscountDeleted struct {
	Discount Discount `json:"discount"`
}

// Store is the discount collaborator surface
type Store interface {
	Save(ctx context.Context, d *Discount) error
	FindByID(ctx context.Context, id string) (*Discount, error)
	Delete(ctx context.Context, id string) error
	FindPromoCode(ctx context.Context, code string) (*Discount, error)
	RemoveProductFromTargets(ctx context.Context, productID string) error
}

// CategoryResolver builds the flat closure of a target category set
type CategoryResolver interface {
	BuildClosure(ctx context.Context, ids []string) ([]string, error)
}

// ProductChecker verifies that target product ids exist
type ProductChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// Publisher emits domain events after the triggering write commits
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// Service handles the discount catalog
type Service struct {
	store      Store
	categories CategoryResolver
	products   ProductChecker
	publisher  Publisher
}

func NewService(store Store, categories CategoryResolver, products ProductChecker, publisher Publisher) *Service {
	return &Service{store: store, categories: categories, products: products, publisher: publisher}
}

// RegisterRequest carries one variant's fields, selected by Kind,
// mirroring the discount union itself.
type RegisterRequest struct {
	Kind              Kind            `json:"kind"`
	Description       string          `json:"description"`
	Percent           decimal.Decimal `json:"percent"`
	TargetProductIDs  []string        `json:"target_product_ids,omitempty"`
	TargetCategoryIDs []string        `json:"target_category_ids,omitempty"`
	Code              string          `json:"code,omitempty"`
}

// Register validates and persists a discount, then announces it so the
// catalog can fold the multiplier into affected actual prices. The caller
// sees the discount as registered immediately; price propagation completes
// asynchronously.
func (s *Service) Register(ctx context.Context, principal identity.Principal, req RegisterRequest) (*Discount, error) {
	if !principal.IsAdmin() {
		return nil, identity.ErrAccessDenied
	}
	if !req.Percent.IsPositive() || req.Percent.GreaterThan(oneHundred) {
		return nil, ErrInvalidPercent
	}

	d := &Discount{
		ID:          uuid.New().String(),
		Kind:        req.Kind,
		Description: req.Description,
		Percent:     req.Percent,
		CreatedAt:   time.Now(),
	}

	switch req.Kind {
	case KindByProduct:
		if len(req.TargetProductIDs) == 0 {
			return nil, ErrNoTargets
		}
		for _, id := range req.TargetProductIDs {
			ok, err := s.products.Exists(ctx, id)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, ErrNoTargets
			}
		}
		d.TargetProductIDs = req.TargetProductIDs

	case KindByCategory:
		if len(req.TargetCategoryIDs) == 0 {
			return nil, ErrNoTargets
		}
		closure, err := s.categories.BuildClosure(ctx, req.TargetCategoryIDs)
		if err != nil {
			return nil, err
		}
		d.TargetCategoryIDs = req.TargetCategoryIDs
		d.ClosureCategoryIDs = closure

	case KindPromoCode:
		if req.Code == "" {
			return nil, ErrBlankCode
		}
		d.Code = req.Code

	default:
		return nil, ErrInvalidKind
	}

	if err := s.store.Save(ctx, d); err != nil {
		return nil, err
	}

	if err := s.publisher.Publish(ctx, EventDiscountRegistered, DiscountRegistered{Discount: *d}); err != nil {
		return nil, err
	}

	return d, nil
}

// Delete removes a discount and announces the removal so the catalog can
// divide the multiplier back out of exactly the products it touched.
func (s *Service) Delete(ctx context.Context, principal identity.Principal, id string) error {
	if !principal.IsAdmin() {
		return identity.ErrAccessDenied
	}

	d, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	return s.publisher.Publish(ctx, EventDiscountDeleted, DiscountDeleted{Discount: *d})
}

func (s *Service) FindByID(ctx context.Context, id string) (*Discount, error) {
	return s.store.FindByID(ctx, id)
}

// FindPromoCode resolves a promo code by exact, case-sensitive match
func (s *Service) FindPromoCode(ctx context.Context, code string) (*Discount, error) {
	return s.store.FindPromoCode(ctx, code)
}
