// Package reaction subscribes the product catalog's consistency protocol
// to the event dispatcher: order counters, discount-driven actual-price
// maintenance, and product-deletion cascades. Handlers are idempotent per
// envelope ID, so at-least-once delivery and journal replay are safe.
package reaction

import (
	"context"
	"fmt"
	"log"

	"github.com/example/marketplace/internal/domain/discount"
	"github.com/example/marketplace/internal/domain/order"
	"github.com/example/marketplace/internal/domain/product"
	"github.com/example/marketplace/internal/event"
	"github.com/shopspring/decimal"
)

const defaultSweepPageSize = 100

// Products is the catalog surface the reactor mutates
type Products interface {
	FindByID(ctx context.Context, id string) (*product.Product, error)
	List(ctx context.Context, offset, limit int) ([]product.Product, error)
	AdjustAvailable(ctx context.Context, id string, delta int64) error
	AdjustOrdersCount(ctx context.Context, id string, delta int64) error
	UpdateActualPrice(ctx context.Context, id string, price decimal.Decimal) error
	UpdateRate(ctx context.Context, id string, rate float64) error
}

// Discounts lets the reactor cascade product deletions into target sets
type Discounts interface {
	RemoveProductFromTargets(ctx context.Context, productID string) error
}

// Carts lets the reactor scrub deleted products out of drafts
type Carts interface {
	RemoveProductFromAll(ctx context.Context, productID string) error
}

// Favorites lets the reactor scrub deleted products out of favorite lists
type Favorites interface {
	RemoveProductFromAll(ctx context.Context, productID string) error
}

// Processed is the durable set of envelope IDs whose reactions completed.
// It is shared by every reactor against the same store, so journal replay
// after a restart and the out-of-process relay both dedup against the same
// record. Mark reports whether the ID was newly claimed; Forget releases a
// claim after a failed reaction so a retry is not dropped as a duplicate.
type Processed interface {
	Mark(ctx context.Context, envelopeID string) (bool, error)
	Forget(ctx context.Context, envelopeID string) error
}

// Affected persists, per discount, exactly which products its multiplier
// was applied to, so deletion reverses precisely that set. Add reports
// whether the product was newly recorded; a false return means the
// discount already touched this product and must not touch it again.
type Affected interface {
	Add(ctx context.Context, discountID, productID string) (bool, error)
	List(ctx context.Context, discountID string) ([]string, error)
	Clear(ctx context.Context, discountID string) error
	RemoveProduct(ctx context.Context, productID string) error
}

// Reactor applies event-driven reactions exactly once per envelope
type Reactor struct {
	products  Products
	discounts Discounts
	carts     Carts
	favorites Favorites
	affected  Affected
	processed Processed

	sweepPageSize int
}

func NewReactor(products Products, discounts Discounts, carts Carts, favorites Favorites, affected Affected, processed Processed) *Reactor {
	return &Reactor{
		products:      products,
		discounts:     discounts,
		carts:         carts,
		favorites:     favorites,
		affected:      affected,
		processed:     processed,
		sweepPageSize: defaultSweepPageSize,
	}
}

// Register subscribes the reactor to every event type it reacts to
func (r *Reactor) Register(bus *event.Bus) {
	for _, eventType := range []string{
		order.EventOrderRegistered,
		order.EventOrderCanceled,
		discount.EventDiscountRegistered,
		discount.EventDiscountDeleted,
		product.EventProductDeleted,
		product.EventCommentRegistered,
		product.EventCommentDeleted,
	} {
		bus.Subscribe(eventType, r.Handle)
	}
}

// Handle dispatches one envelope. The envelope ID is claimed in the
// processed set before the reaction runs; already-claimed IDs are dropped,
// and a failed reaction releases its claim so the bus retry (or a later
// replay) runs it again.
func (r *Reactor) Handle(ctx context.Context, env event.Envelope) error {
	claimed, err := r.processed.Mark(ctx, env.ID)
	if err != nil {
		return fmt.Errorf("failed to claim envelope %s: %w", env.ID, err)
	}
	if !claimed {
		log.Printf("[Reactor] Skipping duplicate envelope %s (%s)", env.ID, env.Type)
		return nil
	}

	if err := r.react(ctx, env); err != nil {
		if ferr := r.processed.Forget(ctx, env.ID); ferr != nil {
			log.Printf("[Reactor] Failed to release claim on envelope %s: %v", env.ID, ferr)
		}
		return err
	}
	return nil
}

func (r *Reactor) react(ctx context.Context, env event.Envelope) error {
	switch env.Type {
	case order.EventOrderRegistered:
		return r.handleOrderRegistered(ctx, env)
	case order.EventOrderCanceled:
		return r.handleOrderCanceled(ctx, env)
	case discount.EventDiscountRegistered:
		return r.handleDiscountRegistered(ctx, env)
	case discount.EventDiscountDeleted:
		return r.handleDiscountDeleted(ctx, env)
	case product.EventProductDeleted:
		return r.handleProductDeleted(ctx, env)
	case product.EventCommentRegistered, product.EventCommentDeleted:
		return r.handleCommentEvent(ctx, env)
	}
	return nil
}

// handleOrderRegistered bumps each ordered product's order counter. The
// available-quantity decrement already happened inside registration's
// conditional reservation.
func (r *Reactor) handleOrderRegistered(ctx context.Context, env event.Envelope) error {
	var e order.OrderRegistered
	if err := env.Decode(&e); err != nil {
		return err
	}

	for _, line := range e.Order.Lines {
		if err := r.products.AdjustOrdersCount(ctx, line.ProductID, 1); err != nil {
			return fmt.Errorf("failed to bump orders count for %s: %w", line.ProductID, err)
		}
	}
	return nil
}

// handleOrderCanceled reverses exactly the deltas registration applied
func (r *Reactor) handleOrderCanceled(ctx context.Context, env event.Envelope) error {
	var e order.OrderCanceled
	if err := env.Decode(&e); err != nil {
		return err
	}

	for _, line := range e.Order.Lines {
		if err := r.products.AdjustAvailable(ctx, line.ProductID, line.Quantity); err != nil {
			return fmt.Errorf("failed to release stock for %s: %w", line.ProductID, err)
		}
		if err := r.products.AdjustOrdersCount(ctx, line.ProductID, -1); err != nil {
			return fmt.Errorf("failed to drop orders count for %s: %w", line.ProductID, err)
		}
	}
	return nil
}

// handleDiscountRegistered sweeps the catalog in pages, folding the
// multiplier into each applicable product's actual price. The affected
// set records every touched product id; a product already in the set is
// never rescaled twice for the same discount.
func (r *Reactor) handleDiscountRegistered(ctx context.Context, env event.Envelope) error {
	var e discount.DiscountRegistered
	if err := env.Decode(&e); err != nil {
		return err
	}
	d := e.Discount
	if d.Kind == discount.KindPromoCode {
		return nil
	}

	multiplier := d.Multiplier()
	for offset := 0; ; offset += r.sweepPageSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := r.products.List(ctx, offset, r.sweepPageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}

		for i := range page {
			p := &page[i]
			if !d.AppliesTo(p.ID, p.CategoryIDs) {
				continue
			}
			added, err := r.affected.Add(ctx, d.ID, p.ID)
			if err != nil {
				return err
			}
			if !added {
				continue
			}
			if err := r.products.UpdateActualPrice(ctx, p.ID, p.ActualPrice.Mul(multiplier)); err != nil {
				return err
			}
		}
	}
}

// handleDiscountDeleted divides the multiplier back out of exactly the
// products the discount was applied to, then drops the affected set.
func (r *Reactor) handleDiscountDeleted(ctx context.Context, env event.Envelope) error {
	var e discount.DiscountDeleted
	if err := env.Decode(&e); err != nil {
		return err
	}
	d := e.Discount
	if d.Kind == discount.KindPromoCode {
		return nil
	}

	ids, err := r.affected.List(ctx, d.ID)
	if err != nil {
		return err
	}

	multiplier := d.Multiplier()
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := r.products.FindByID(ctx, id)
		if err != nil {
			// Product may have been deleted since; nothing to restore
			continue
		}
		if err := r.products.UpdateActualPrice(ctx, p.ID, p.ActualPrice.Div(multiplier)); err != nil {
			return err
		}
	}

	return r.affected.Clear(ctx, d.ID)
}

// handleProductDeleted cascades a removal: target sets shrink but the
// discounts themselves survive, carts and favorite lists drop the product,
// and affected sets forget it.
func (r *Reactor) handleProductDeleted(ctx context.Context, env event.Envelope) error {
	var e product.ProductDeleted
	if err := env.Decode(&e); err != nil {
		return err
	}

	if err := r.discounts.RemoveProductFromTargets(ctx, e.Product.ID); err != nil {
		return err
	}
	if err := r.carts.RemoveProductFromAll(ctx, e.Product.ID); err != nil {
		return err
	}
	if err := r.favorites.RemoveProductFromAll(ctx, e.Product.ID); err != nil {
		return err
	}
	return r.affected.RemoveProduct(ctx, e.Product.ID)
}

// handleCommentEvent folds a comment's rate into the product's running
// average; a deleted comment contributes its rate negated.
func (r *Reactor) handleCommentEvent(ctx context.Context, env event.Envelope) error {
	switch env.Type {
	case product.EventCommentRegistered:
		var e product.CommentRegistered
		if err := env.Decode(&e); err != nil {
			return err
		}
		return r.applyRate(ctx, e.ProductID, e.Rate)
	case product.EventCommentDeleted:
		var e product.CommentDeleted
		if err := env.Decode(&e); err != nil {
			return err
		}
		return r.applyRate(ctx, e.ProductID, -e.Rate)
	}
	return nil
}

func (r *Reactor) applyRate(ctx context.Context, productID string, rate float64) error {
	p, err := r.products.FindByID(ctx, productID)
	if err != nil {
		return err
	}

	divisor := 2.0
	if p.Rate == 0 {
		divisor = 1.0
	}
	newRate := (p.Rate + rate) / divisor
	if newRate < 0 {
		newRate = 0
	}
	return r.products.UpdateRate(ctx, productID, newRate)
}
