package order

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/example/marketplace/internal/identity"
	"github.com/google/uuid"
)

// Service is the order lifecycle manager
type Service struct {
	orders    Store
	inventory Inventory
	pricer    Pricer
	publisher Publisher
}

func NewService(orders Store, inventory Inventory, pricer Pricer, publisher Publisher) *Service {
	return &Service{orders: orders, inventory: inventory, pricer: pricer, publisher: publisher}
}

// Quote prices a prospective order without reserving anything
func (s *Service) Quote(ctx context.Context, req RegisterRequest) ([]RealizedLine, error) {
	items, err := s.loadItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	return s.pricer.PriceLines(ctx, items, req.PromoCode)
}

// Register validates inventory, reserves it, persists the order and
// publishes OrderRegistered. Reservation uses the store's conditional
// decrement per product: two concurrent orders racing over the same stock
// cannot both succeed. A failed conditional update is retried once, then
// every prior reservation is released and the registration fails.
func (s *Service) Register(ctx context.Context, principal identity.Principal, req RegisterRequest) (*Order, error) {
	if !principal.Authenticated() {
		return nil, identity.ErrAccessDenied
	}
	if strings.TrimSpace(req.ShippingAddress) == "" {
		return nil, ErrBlankShippingAddress
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	items, err := s.loadItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	lines, err := s.pricer.PriceLines(ctx, items, req.PromoCode)
	if err != nil {
		return nil, err
	}
	if len(lines) != len(req.Items) {
		return nil, ErrInconsistentResult
	}

	reserved := make([]ItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		ok, err := s.inventory.DecrementAvailable(ctx, item.ProductID, item.Quantity)
		if err == nil && !ok {
			// Lost a race or stock is short; re-validate and re-apply once
			ok, err = s.inventory.DecrementAvailable(ctx, item.ProductID, item.Quantity)
		}
		if err != nil || !ok {
			s.release(ctx, reserved)
			if err != nil {
				return nil, err
			}
			available := int64(0)
			if p, ferr := s.inventory.FindByID(ctx, item.ProductID); ferr == nil {
				available = p.AvailableQuantity
			}
			return nil, &InsufficientStockError{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: available,
			}
		}
		reserved = append(reserved, item)
	}

	o := &Order{
		ID:              uuid.New().String(),
		OwnerID:         principal.AccountID,
		ShippingAddress: req.ShippingAddress,
		Status:          StatusUnpaid,
		Lines:           lines,
		CreatedAt:       time.Now(),
	}

	if err := s.orders.Save(ctx, o); err != nil {
		s.release(ctx, reserved)
		return nil, err
	}

	// Publish strictly after the order is stored
	if err := s.publisher.Publish(ctx, EventOrderRegistered, OrderRegistered{Order: *o}); err != nil {
		log.Printf("[Order] Failed to publish OrderRegistered for %s: %v", o.ID, err)
	}

	return o, nil
}

// Cancel transitions an order to CANCELED. Only the owner may cancel.
// Canceling an already-canceled order mutates nothing and publishes
// nothing, so the inventory reversal runs at most once.
func (s *Service) Cancel(ctx context.Context, principal identity.Principal, orderID string) (*Order, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.OwnerID != principal.AccountID {
		return nil, identity.ErrAccessDenied
	}
	if o.Status == StatusCanceled {
		return o, nil
	}

	o.Status = StatusCanceled
	if err := s.orders.Save(ctx, o); err != nil {
		return nil, err
	}

	if err := s.publisher.Publish(ctx, EventOrderCanceled, OrderCanceled{Order: *o}); err != nil {
		log.Printf("[Order] Failed to publish OrderCanceled for %s: %v", o.ID, err)
	}

	return o, nil
}

// ChangeStatus is the admin override. It validates only that the target
// status is recognized, and deliberately publishes no event: admin
// overrides bypass inventory reconciliation.
func (s *Service) ChangeStatus(ctx context.Context, principal identity.Principal, orderID string, status Status) (*Order, error) {
	if !principal.IsAdmin() {
		return nil, identity.ErrAccessDenied
	}
	if !status.Recognized() {
		return nil, ErrUnrecognizedStatus
	}

	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	o.Status = status
	if err := s.orders.Save(ctx, o); err != nil {
		return nil, err
	}

	return o, nil
}

func (s *Service) FindByID(ctx context.Context, id string) (*Order, error) {
	return s.orders.FindByID(ctx, id)
}

// ListByOwner returns one page of the owner's order history
func (s *Service) ListByOwner(ctx context.Context, ownerID string, page, size int) (Page, error) {
	return s.orders.FindByOwner(ctx, ownerID, page, size)
}

func (s *Service) loadItems(ctx context.Context, items []ItemRequest) ([]PricedItem, error) {
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}

	products, err := s.inventory.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]int, len(products))
	for i := range products {
		byID[products[i].ID] = i
	}

	priced := make([]PricedItem, 0, len(items))
	for _, item := range items {
		idx, ok := byID[item.ProductID]
		if !ok {
			return nil, ErrInconsistentResult
		}
		priced = append(priced, PricedItem{Product: products[idx], Quantity: item.Quantity})
	}
	return priced, nil
}

func (s *Service) release(ctx context.Context, reserved []ItemRequest) {
	for _, item := range reserved {
		if err := s.inventory.AdjustAvailable(ctx, item.ProductID, item.Quantity); err != nil {
			log.Printf("[Order] Failed to release %d units of %s: %v", item.Quantity, item.ProductID, err)
		}
	}
}
