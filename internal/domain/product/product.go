package product

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/marketplace/internal/domain/category"
	"github.com/example/marketplace/internal/identity"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("product not found")
	ErrInvalidPrice = errors.New("price must be positive")
	ErrInvalidName  = errors.New("caption is required")
	ErrNoCategories = errors.New("at least one category is required")
)

// MissingCharacteristicsError reports which required properties a product
// registration failed to cover.
type MissingCharacteristicsError struct {
	CategoryID string
	Missing    []string
}

func (e *MissingCharacteristicsError) Error() string {
	return fmt.Sprintf("product characteristics missing required properties %v of category %s", e.Missing, e.CategoryID)
}

// Product is a catalog entry. ActualPrice is a cached projection of
// BasePrice with every currently active product/category discount baked
// in; it is maintained reactively and may lag a discount mutation.
type Product struct {
	ID                string            `json:"id"`
	Caption           string            `json:"caption"`
	Description       string            `json:"description"`
	CategoryIDs       []string          `json:"category_ids"`
	Characteristics   map[string]string `json:"characteristics"`
	BasePrice         decimal.Decimal   `json:"base_price"`
	ActualPrice       decimal.Decimal   `json:"actual_price"`
	AvailableQuantity int64             `json:"available_quantity"`
	OrdersCount       int64             `json:"orders_count"`
	Rate              float64           `json:"rate"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Store is the product collaborator surface. DecrementAvailable is the
// conditional inventory reservation: it subtracts qty only while the
// current value covers it, atomically, and reports whether it applied.
type Store interface {
	Save(ctx context.Context, p *Product) error
	FindByID(ctx context.Context, id string) (*Product, error)
	FindByIDs(ctx context.Context, ids []string) ([]Product, error)
	List(ctx context.Context, offset, limit int) ([]Product, error)
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	DecrementAvailable(ctx context.Context, id string, qty int64) (bool, error)
	AdjustAvailable(ctx context.Context, id string, delta int64) error
	AdjustOrdersCount(ctx context.Context, id string, delta int64) error
	UpdateActualPrice(ctx context.Context, id string, price decimal.Decimal) error
	UpdateRate(ctx context.Context, id string, rate float64) error
}

// CategoryFinder loads the categories a product registers under
type CategoryFinder interface {
	FindByIDs(ctx context.Context, ids []string) ([]category.Category, error)
}

// Publisher emits domain events after the triggering write commits
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// Service handles product catalog operations
type Service struct {
	store      Store
	categories CategoryFinder
	publisher  Publisher
}

func NewService(store Store, categories CategoryFinder, publisher Publisher) *Service {
	return &Service{store: store, categories: categories, publisher: publisher}
}

type RegisterRequest struct {
	Caption           string            `json:"caption"`
	Description       string            `json:"description"`
	CategoryIDs       []string          `json:"category_ids"`
	Characteristics   map[string]string `json:"characteristics"`
	BasePrice         decimal.Decimal   `json:"base_price"`
	AvailableQuantity int64             `json:"available_quantity"`
}

// Register creates a product after checking that its characteristics cover
// every required property of every category it belongs to. ActualPrice
// starts at BasePrice; discount reactions adjust it from there.
func (s *Service) Register(ctx context.Context, principal identity.Principal, req RegisterRequest) (*Product, error) {
	if !principal.IsAdmin() {
		return nil, identity.ErrAccessDenied
	}
	if req.Caption == "" {
		return nil, ErrInvalidName
	}
	if !req.BasePrice.IsPositive() {
		return nil, ErrInvalidPrice
	}
	if len(req.CategoryIDs) == 0 {
		return nil, ErrNoCategories
	}

	categories, err := s.categories.FindByIDs(ctx, req.CategoryIDs)
	if err != nil {
		return nil, err
	}

	for _, c := range categories {
		var missing []string
		for _, prop := range c.RequiredProperties {
			if _, ok := req.Characteristics[prop]; !ok {
				missing = append(missing, prop)
			}
		}
		if len(missing) > 0 {
			return nil, &MissingCharacteristicsError{CategoryID: c.ID, Missing: missing}
		}
	}

	p := &Product{
		ID:                uuid.New().String(),
		Caption:           req.Caption,
		Description:       req.Description,
		CategoryIDs:       req.CategoryIDs,
		Characteristics:   req.Characteristics,
		BasePrice:         req.BasePrice,
		ActualPrice:       req.BasePrice,
		AvailableQuantity: req.AvailableQuantity,
		CreatedAt:         time.Now(),
	}

	if err := s.store.Save(ctx, p); err != nil {
		return nil, err
	}

	if err := s.publisher.Publish(ctx, EventProductRegistered, ProductRegistered{Product: *p}); err != nil {
		return nil, fmt.Errorf("product saved but event publish failed: %w", err)
	}

	return p, nil
}

// Delete removes a product and announces the removal so dependants
// (discount target sets, carts, affected-price sets) can cascade.
func (s *Service) Delete(ctx context.Context, principal identity.Principal, id string) error {
	if !principal.IsAdmin() {
		return identity.ErrAccessDenied
	}

	p, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	return s.publisher.Publish(ctx, EventProductDeleted, ProductDeleted{Product: *p})
}

func (s *Service) FindByID(ctx context.Context, id string) (*Product, error) {
	return s.store.FindByID(ctx, id)
}

// FindByIDs loads all requested products or fails; it never silently drops
// a missing id.
func (s *Service) FindByIDs(ctx context.Context, ids []string) ([]Product, error) {
	return s.store.FindByIDs(ctx, ids)
}

// List pages through the catalog in stable id order
func (s *Service) List(ctx context.Context, offset, limit int) ([]Product, error) {
	return s.store.List(ctx, offset, limit)
}
