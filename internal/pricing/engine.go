// Package pricing turns product/quantity pairs into realized order lines.
// Product and category discounts are already baked into each product's
// actual price by the reactive maintenance protocol; the only discount
// resolved here, at order time, is an explicitly supplied promo code.
package pricing

import (
	"context"
	"errors"

	"github.com/example/marketplace/internal/domain/discount"
	"github.com/example/marketplace/internal/domain/order"
	"github.com/shopspring/decimal"
)

// PromoFinder resolves a promo code to its discount, if one exists
type PromoFinder interface {
	FindPromoCode(ctx context.Context, code string) (*discount.Discount, error)
}

// Engine implements order.Pricer
type Engine struct {
	promos PromoFinder
}

func NewEngine(promos PromoFinder) *Engine {
	return &Engine{promos: promos}
}

// lineBuilder accumulates the unit price of one line as discounts apply
type lineBuilder struct {
	line order.RealizedLine
}

func (b *lineBuilder) applyDiscount(d *discount.Discount) {
	b.line.UnitPrice = b.line.UnitPrice.Mul(d.Multiplier())
}

// PriceLines prices each item, seeding from the product's actual price and
// applying the promo code's multiplier when the code matches. An unknown
// code prices the order as if no code were given. PriceLines never mutates
// inventory, and the realized set always covers the requested set: any
// shortfall aborts the whole operation.
func (e *Engine) PriceLines(ctx context.Context, items []order.PricedItem, promoCode string) ([]order.RealizedLine, error) {
	builders := make([]*lineBuilder, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, order.ErrInvalidQuantity
		}
		builders = append(builders, &lineBuilder{
			line: order.RealizedLine{
				ProductID:   item.Product.ID,
				Caption:     item.Product.Caption,
				Description: item.Product.Description,
				Quantity:    item.Quantity,
				UnitPrice:   item.Product.ActualPrice,
			},
		})
	}

	if promoCode != "" {
		promo, err := e.promos.FindPromoCode(ctx, promoCode)
		if err != nil && !errors.Is(err, discount.ErrNotFound) {
			return nil, err
		}
		if promo != nil && promo.Matches(promoCode) {
			for _, b := range builders {
				b.applyDiscount(promo)
			}
		}
	}

	lines := make([]order.RealizedLine, 0, len(builders))
	for _, b := range builders {
		b.line.UnitPrice = roundPrice(b.line.UnitPrice)
		lines = append(lines, b.line)
	}

	if len(lines) != len(items) {
		return nil, order.ErrInconsistentResult
	}
	return lines, nil
}

// roundPrice normalizes to cent precision, dropping trailing digits the
// decimal multiplication may have introduced
func roundPrice(p decimal.Decimal) decimal.Decimal {
	return p.Round(2)
}
