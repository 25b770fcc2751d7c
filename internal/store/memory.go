package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/marketplace/internal/domain/cart"
	"github.com/example/marketplace/internal/domain/category"
	"github.com/example/marketplace/internal/domain/discount"
	"github.com/example/marketplace/internal/domain/favorites"
	"github.com/example/marketplace/internal/domain/order"
	"github.com/example/marketplace/internal/domain/product"
	"github.com/example/marketplace/internal/event"
	"github.com/shopspring/decimal"
)

// In-memory store implementations. They back tests and single-process
// deployments; the Mongo implementations are the durable equivalents.

// MemoryProducts is an in-memory product store
type MemoryProducts struct {
	mu    sync.RWMutex
	items map[string]product.Product
}

func NewMemoryProducts() *MemoryProducts {
	return &MemoryProducts{items: make(map[string]product.Product)}
}

func (s *MemoryProducts) Save(_ context.Context, p *product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[p.ID] = *p
	return nil
}

func (s *MemoryProducts) FindByID(_ context.Context, id string) (*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.items[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (s *MemoryProducts) FindByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		p, ok := s.items[id]
		if !ok {
			return nil, product.ErrNotFound
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *MemoryProducts) List(_ context.Context, offset, limit int) ([]product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if offset >= len(ids) {
		return nil, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}

	out := make([]product.Product, 0, end-offset)
	for _, id := range ids[offset:end] {
		out = append(out, s.items[id])
	}
	return out, nil
}

func (s *MemoryProducts) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[id]
	return ok, nil
}

func (s *MemoryProducts) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return product.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

// DecrementAvailable is the conditional reservation: check and decrement
// under one lock so concurrent orders cannot both pass the check.
func (s *MemoryProducts) DecrementAvailable(_ context.Context, id string, qty int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[id]
	if !ok {
		return false, product.ErrNotFound
	}
	if p.AvailableQuantity < qty {
		return false, nil
	}
	p.AvailableQuantity -= qty
	s.items[id] = p
	return true, nil
}

func (s *MemoryProducts) AdjustAvailable(_ context.Context, id string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[id]
	if !ok {
		return product.ErrNotFound
	}
	p.AvailableQuantity += delta
	if p.AvailableQuantity < 0 {
		p.AvailableQuantity = 0
	}
	s.items[id] = p
	return nil
}

func (s *MemoryProducts) AdjustOrdersCount(_ context.Context, id string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[id]
	if !ok {
		return product.ErrNotFound
	}
	p.OrdersCount += delta
	if p.OrdersCount < 0 {
		p.OrdersCount = 0
	}
	s.items[id] = p
	return nil
}

func (s *MemoryProducts) UpdateActualPrice(_ context.Context, id string, price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[id]
	if !ok {
		return product.ErrNotFound
	}
	p.ActualPrice = price
	s.items[id] = p
	return nil
}

func (s *MemoryProducts) UpdateRate(_ context.Context, id string, rate float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[id]
	if !ok {
		return product.ErrNotFound
	}
	p.Rate = rate
	s.items[id] = p
	return nil
}

// MemoryCategories is an in-memory category store
type MemoryCategories struct {
	mu    sync.RWMutex
	items map[string]category.Category
}

func NewMemoryCategories() *MemoryCategories {
	return &MemoryCategories{items: make(map[string]category.Category)}
}

func (s *MemoryCategories) Save(_ context.Context, c *category.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[c.ID] = *c
	return nil
}

func (s *MemoryCategories) FindByID(_ context.Context, id string) (*category.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.items[id]
	if !ok {
		return nil, category.ErrNotFound
	}
	return &c, nil
}

func (s *MemoryCategories) FindByIDs(_ context.Context, ids []string) ([]category.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]category.Category, 0, len(ids))
	for _, id := range ids {
		c, ok := s.items[id]
		if !ok {
			return nil, category.ErrNotFound
		}
		out = append(out, c)
	}
	return out, nil
}

// MemoryDiscounts is an in-memory discount store
type MemoryDiscounts struct {
	mu    sync.RWMutex
	items map[string]discount.Discount
}

func NewMemoryDiscounts() *MemoryDiscounts {
	return &MemoryDiscounts{items: make(map[string]discount.Discount)}
}

func (s *MemoryDiscounts) Save(_ context.Context, d *discount.Discount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[d.ID] = *d
	return nil
}

func (s *MemoryDiscounts) FindByID(_ context.Context, id string) (*discount.Discount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.items[id]
	if !ok {
		return nil, discount.ErrNotFound
	}
	return &d, nil
}

func (s *MemoryDiscounts) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return discount.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *MemoryDiscounts) FindPromoCode(_ context.Context, code string) (*discount.Discount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.items {
		if d.Kind == discount.KindPromoCode && d.Code == code {
			out := d
			return &out, nil
		}
	}
	return nil, discount.ErrNotFound
}

func (s *MemoryDiscounts) RemoveProductFromTargets(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, d := range s.items {
		if d.Kind != discount.KindByProduct {
			continue
		}
		filtered := d.TargetProductIDs[:0:0]
		for _, pid := range d.TargetProductIDs {
			if pid != productID {
				filtered = append(filtered, pid)
			}
		}
		d.TargetProductIDs = filtered
		s.items[id] = d
	}
	return nil
}

// MemoryOrders is an in-memory order store
type MemoryOrders struct {
	mu    sync.RWMutex
	items map[string]order.Order
	seq   []string // insertion order for stable pagination
}

func NewMemoryOrders() *MemoryOrders {
	return &MemoryOrders{items: make(map[string]order.Order)}
}

func (s *MemoryOrders) Save(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[o.ID]; !ok {
		s.seq = append(s.seq, o.ID)
	}
	s.items[o.ID] = *o
	return nil
}

func (s *MemoryOrders) FindByID(_ context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.items[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (s *MemoryOrders) FindByOwner(_ context.Context, ownerID string, page, size int) (order.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var owned []order.Order
	for _, id := range s.seq {
		if o := s.items[id]; o.OwnerID == ownerID {
			owned = append(owned, o)
		}
	}

	result := order.Page{Total: int64(len(owned)), Page: page, Size: size}
	start := page * size
	if start >= len(owned) {
		result.Orders = []order.Order{}
		return result, nil
	}
	end := start + size
	if end > len(owned) {
		end = len(owned)
	}
	result.Orders = owned[start:end]
	return result, nil
}

// MemoryCarts is an in-memory cart store
type MemoryCarts struct {
	mu    sync.RWMutex
	items map[string]cart.Cart
}

func NewMemoryCarts() *MemoryCarts {
	return &MemoryCarts{items: make(map[string]cart.Cart)}
}

func (s *MemoryCarts) FindByOwner(_ context.Context, ownerID string) (*cart.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.items[ownerID]
	if !ok {
		return nil, cart.ErrNotFound
	}
	out := cart.Cart{OwnerID: c.OwnerID, Items: make(map[string]int64, len(c.Items))}
	for k, v := range c.Items {
		out.Items[k] = v
	}
	return &out, nil
}

func (s *MemoryCarts) Save(_ context.Context, c *cart.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := cart.Cart{OwnerID: c.OwnerID, Items: make(map[string]int64, len(c.Items))}
	for k, v := range c.Items {
		stored.Items[k] = v
	}
	s.items[c.OwnerID] = stored
	return nil
}

func (s *MemoryCarts) Delete(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, ownerID)
	return nil
}

func (s *MemoryCarts) RemoveProductFromAll(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for owner, c := range s.items {
		delete(c.Items, productID)
		s.items[owner] = c
	}
	return nil
}

// MemoryFavorites is an in-memory favorites store
type MemoryFavorites struct {
	mu    sync.RWMutex
	items map[string]map[string]struct{} // ownerID -> productIDs
}

func NewMemoryFavorites() *MemoryFavorites {
	return &MemoryFavorites{items: make(map[string]map[string]struct{})}
}

func (s *MemoryFavorites) FindByOwner(_ context.Context, ownerID string) (*favorites.List, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.items[ownerID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return &favorites.List{OwnerID: ownerID, ProductIDs: ids}, nil
}

func (s *MemoryFavorites) Add(_ context.Context, ownerID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.items[ownerID]
	if !ok {
		set = make(map[string]struct{})
		s.items[ownerID] = set
	}
	set[productID] = struct{}{}
	return nil
}

func (s *MemoryFavorites) Remove(_ context.Context, ownerID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items[ownerID], productID)
	return nil
}

func (s *MemoryFavorites) RemoveProductFromAll(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, set := range s.items {
		delete(set, productID)
	}
	return nil
}

// MemoryAffected tracks per-discount affected product sets
type MemoryAffected struct {
	mu   sync.Mutex
	sets map[string]map[string]struct{} // discountID -> productIDs
}

func NewMemoryAffected() *MemoryAffected {
	return &MemoryAffected{sets: make(map[string]map[string]struct{})}
}

func (s *MemoryAffected) Add(_ context.Context, discountID, productID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[discountID]
	if !ok {
		set = make(map[string]struct{})
		s.sets[discountID] = set
	}
	if _, dup := set[productID]; dup {
		return false, nil
	}
	set[productID] = struct{}{}
	return true, nil
}

func (s *MemoryAffected) List(_ context.Context, discountID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.sets[discountID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryAffected) Clear(_ context.Context, discountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets, discountID)
	return nil
}

func (s *MemoryAffected) RemoveProduct(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, set := range s.sets {
		delete(set, productID)
	}
	return nil
}

// MemoryProcessed is the in-memory processed-envelope set
type MemoryProcessed struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewMemoryProcessed() *MemoryProcessed {
	return &MemoryProcessed{ids: make(map[string]struct{})}
}

func (s *MemoryProcessed) Mark(_ context.Context, envelopeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.ids[envelopeID]; dup {
		return false, nil
	}
	s.ids[envelopeID] = struct{}{}
	return true, nil
}

func (s *MemoryProcessed) Forget(_ context.Context, envelopeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, envelopeID)
	return nil
}

// MemoryJournal is an in-memory event journal
type MemoryJournal struct {
	mu   sync.Mutex
	envs []event.Envelope
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (j *MemoryJournal) Append(_ context.Context, env event.Envelope) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.envs = append(j.envs, env)
	return nil
}

func (j *MemoryJournal) ListSince(_ context.Context, since time.Time) ([]event.Envelope, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []event.Envelope
	for _, env := range j.envs {
		if env.Timestamp.After(since) {
			out = append(out, env)
		}
	}
	return out, nil
}
