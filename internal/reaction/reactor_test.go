package reaction_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/marketplace/internal/domain/cart"
	"github.com/example/marketplace/internal/domain/discount"
	"github.com/example/marketplace/internal/domain/order"
	"github.com/example/marketplace/internal/domain/product"
	"github.com/example/marketplace/internal/event"
	"github.com/example/marketplace/internal/reaction"
	"github.com/example/marketplace/internal/store"
)

type fixture struct {
	reactor   *reaction.Reactor
	products  *store.MemoryProducts
	discounts *store.MemoryDiscounts
	carts     *store.MemoryCarts
	favorites *store.MemoryFavorites
	affected  *store.MemoryAffected
	processed *store.MemoryProcessed
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	products := store.NewMemoryProducts()
	for _, p := range []product.Product{
		{ID: "p1", Caption: "Phone X", CategoryIDs: []string{"phones"}, BasePrice: decimal.NewFromInt(100), ActualPrice: decimal.NewFromInt(100), AvailableQuantity: 10},
		{ID: "p2", Caption: "Chair", CategoryIDs: []string{"furniture"}, BasePrice: decimal.NewFromInt(50), ActualPrice: decimal.NewFromInt(50), AvailableQuantity: 5},
	} {
		p := p
		require.NoError(t, products.Save(ctx, &p))
	}

	discounts := store.NewMemoryDiscounts()
	carts := store.NewMemoryCarts()
	favs := store.NewMemoryFavorites()
	affected := store.NewMemoryAffected()
	processed := store.NewMemoryProcessed()

	return &fixture{
		reactor:   reaction.NewReactor(products, discounts, carts, favs, affected, processed),
		products:  products,
		discounts: discounts,
		carts:     carts,
		favorites: favs,
		affected:  affected,
		processed: processed,
	}
}

func envelope(t *testing.T, eventType string, payload any) event.Envelope {
	t.Helper()
	env, err := event.NewEnvelope(eventType, payload)
	require.NoError(t, err)
	return env
}

func (f *fixture) actualPrice(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	p, err := f.products.FindByID(context.Background(), id)
	require.NoError(t, err)
	return p.ActualPrice
}

func orderWith(lines ...order.RealizedLine) order.Order {
	return order.Order{ID: "o1", OwnerID: "buyer-1", Status: order.StatusUnpaid, Lines: lines}
}

func TestOrderRegisteredBumpsOrdersCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := orderWith(
		order.RealizedLine{ProductID: "p1", Quantity: 2},
		order.RealizedLine{ProductID: "p2", Quantity: 1},
	)
	require.NoError(t, f.reactor.Handle(ctx, envelope(t, order.EventOrderRegistered, order.OrderRegistered{Order: o})))

	p1, err := f.products.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p1.OrdersCount, "one order, regardless of quantity")
	assert.Equal(t, int64(10), p1.AvailableQuantity, "reservation happened at registration, not here")
}

func TestDuplicateEnvelopeIsDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := orderWith(order.RealizedLine{ProductID: "p1", Quantity: 1})
	env := envelope(t, order.EventOrderRegistered, order.OrderRegistered{Order: o})

	require.NoError(t, f.reactor.Handle(ctx, env))
	require.NoError(t, f.reactor.Handle(ctx, env))

	p1, err := f.products.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p1.OrdersCount, "redelivery of the same envelope must not double-count")
}

// The processed set is shared store state, not reactor state: a journal
// replay after a restart, or a second worker on the same store, must not
// re-apply reactions.
func TestReplayThroughFreshReactorIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := orderWith(order.RealizedLine{ProductID: "p1", Quantity: 3})
	o.Status = order.StatusCanceled
	env := envelope(t, order.EventOrderCanceled, order.OrderCanceled{Order: o})

	require.NoError(t, f.reactor.Handle(ctx, env))

	restarted := reaction.NewReactor(f.products, f.discounts, f.carts, f.favorites, f.affected, f.processed)
	require.NoError(t, restarted.Handle(ctx, env))

	p1, err := f.products.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(13), p1.AvailableQuantity, "replay must release the canceled stock exactly once")
	assert.Equal(t, int64(0), p1.OrdersCount)
}

type flakyProducts struct {
	*store.MemoryProducts
	failFor string
	failed  bool
}

func (s *flakyProducts) AdjustOrdersCount(ctx context.Context, id string, delta int64) error {
	if id == s.failFor && !s.failed {
		s.failed = true
		return assert.AnError
	}
	return s.MemoryProducts.AdjustOrdersCount(ctx, id, delta)
}

// A failed reaction must release its envelope claim so the bus retry is
// not dropped as a duplicate.
func TestFailedReactionIsRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	products := &flakyProducts{MemoryProducts: f.products, failFor: "p2"}
	reactor := reaction.NewReactor(products, f.discounts, f.carts, f.favorites, f.affected, f.processed)

	o := orderWith(
		order.RealizedLine{ProductID: "p1", Quantity: 1},
		order.RealizedLine{ProductID: "p2", Quantity: 1},
	)
	env := envelope(t, order.EventOrderRegistered, order.OrderRegistered{Order: o})

	require.Error(t, reactor.Handle(ctx, env))
	require.NoError(t, reactor.Handle(ctx, env))

	p2, err := f.products.FindByID(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p2.OrdersCount, "the retry must complete the failed reaction")
}

func TestOrderCanceledReversesRegistration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := orderWith(order.RealizedLine{ProductID: "p1", Quantity: 3})
	require.NoError(t, f.reactor.Handle(ctx, envelope(t, order.EventOrderRegistered, order.OrderRegistered{Order: o})))

	o.Status = order.StatusCanceled
	require.NoError(t, f.reactor.Handle(ctx, envelope(t, order.EventOrderCanceled, order.OrderCanceled{Order: o})))

	p1, err := f.products.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), p1.OrdersCount)
	assert.Equal(t, int64(13), p1.AvailableQuantity, "canceled quantity is released")
}

func TestDiscountRegisteredRescalesApplicableProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := discount.Discount{
		ID:                 "d1",
		Kind:               discount.KindByCategory,
		Percent:            decimal.NewFromInt(10),
		ClosureCategoryIDs: []string{"phones"},
	}
	require.NoError(t, f.reactor.Handle(ctx, envelope(t, discount.EventDiscountRegistered, discount.DiscountRegistered{Discount: d})))

	assert.True(t, f.actualPrice(t, "p1").Equal(decimal.NewFromInt(90)), "got %s", f.actualPrice(t, "p1"))
	assert.True(t, f.actualPrice(t, "p2").Equal(decimal.NewFromInt(50)), "non-applicable product untouched")

	ids, err := f.affected.List(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)
}

func TestDiscountRedeliveryDoesNotDoubleApply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := discount.Discount{
		ID:                 "d1",
		Kind:               discount.KindByCategory,
		Percent:            decimal.NewFromInt(10),
		ClosureCategoryIDs: []string{"phones"},
	}
	// Two distinct envelopes for the same discount: the affected set, not
	// the envelope dedupe, must prevent the second rescale
	require.NoError(t, f.reactor.Handle(ctx, envelope(t, discount.EventDiscountRegistered, discount.DiscountRegistered{Discount: d})))
	require.NoError(t, f.reactor.Handle(ctx, envelope(t, discount.EventDiscountRegistered, discount.DiscountRegistered{Discount: d})))

	assert.True(t, f.actualPrice(t, "p1").Equal(decimal.NewFromInt(90)))
}

func TestDiscountDeleteRestoresExactPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := discount.Discount{
		ID:                 "d1",
		Kind:               discount.KindByCategory,
		Percent:            decimal.NewFromInt(15),
		ClosureCategoryIDs: []string{"phones"},
	}
	require.NoError(t, f.reactor.Handle(ctx, envelope(t, discount.EventDiscountRegistered, discount.DiscountRegistered{Discount: d})))
	require.NoError(t, f.reactor.Handle(ctx, envelope(t, discount.EventDiscountDeleted, discount.DiscountDeleted{Discount: d})))

	// Apply-then-delete round-trips to the exact original price
	assert.True(t, f.actualPrice(t, "p1").Equal(decimal.NewFromInt(100)), "got %s", f.actualPrice(t, "p1"))

	ids, err := f.affected.List(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, ids, "affected set is cleared after reversal")
}

func TestStackedDiscountsReverseIndependently(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d1 := discount.Discount{ID: "d1", Kind: discount.KindByCategory, Percent: decimal.NewFromInt(10), ClosureCategoryIDs: []string{"phones"}}
	d2 := discount.Discount{ID: "d2", Kind: discount.KindByProduct, Percent: decimal.NewFromInt(20), TargetProductIDs: []string{"p1"}}

	require.NoError(t, f.reactor.Handle(ctx, envelope(t, discount.EventDiscountRegistered, discount.DiscountRegistered{Discount: d1})))
	require.NoError(t, f.reactor.Handle(ctx, envelope(t, discount.EventDiscountRegistered, discount.DiscountRegistered{Discount: d2})))

	// 100 * 0.9 * 0.8 = 72
	assert.True(t, f.actualPrice(t, "p1").Equal(decimal.NewFromInt(72)), "got %s", f.actualPrice(t, "p1"))

	require.NoError(t, f.reactor.Handle(ctx, envelope(t, discount.EventDiscountDeleted, discount.DiscountDeleted{Discount: d1})))

	// Only d2 remains: 100 * 0.8 = 80
	assert.True(t, f.actualPrice(t, "p1").Equal(decimal.NewFromInt(80)), "got %s", f.actualPrice(t, "p1"))
}

func TestPromoCodeEventsNeverTouchPrices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := discount.Discount{ID: "d1", Kind: discount.KindPromoCode, Percent: decimal.NewFromInt(50), Code: "HALF"}
	require.NoError(t, f.reactor.Handle(ctx, envelope(t, discount.EventDiscountRegistered, discount.DiscountRegistered{Discount: d})))

	assert.True(t, f.actualPrice(t, "p1").Equal(decimal.NewFromInt(100)))
	assert.True(t, f.actualPrice(t, "p2").Equal(decimal.NewFromInt(50)))
}

func TestProductDeletedCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.discounts.Save(ctx, &discount.Discount{
		ID: "d1", Kind: discount.KindByProduct, Percent: decimal.NewFromInt(10), TargetProductIDs: []string{"p1", "p2"},
	}))
	require.NoError(t, f.carts.Save(ctx, &cart.Cart{OwnerID: "buyer-1", Items: map[string]int64{"p1": 2, "p2": 1}}))
	require.NoError(t, f.favorites.Add(ctx, "buyer-1", "p1"))
	require.NoError(t, f.favorites.Add(ctx, "buyer-1", "p2"))
	_, err := f.affected.Add(ctx, "d1", "p1")
	require.NoError(t, err)

	p, err := f.products.FindByID(ctx, "p1")
	require.NoError(t, err)
	require.NoError(t, f.reactor.Handle(ctx, envelope(t, product.EventProductDeleted, product.ProductDeleted{Product: *p})))

	d, err := f.discounts.FindByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, d.TargetProductIDs, "discount survives with the product dropped")

	c, err := f.carts.FindByOwner(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"p2": 1}, c.Items)

	favs, err := f.favorites.FindByOwner(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, favs.ProductIDs, "favorites drop the deleted product")

	ids, err := f.affected.List(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCommentEventsFoldIntoRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rate := func() float64 {
		p, err := f.products.FindByID(ctx, "p1")
		require.NoError(t, err)
		return p.Rate
	}

	// First comment seeds the rate directly
	require.NoError(t, f.reactor.Handle(ctx, envelope(t, product.EventCommentRegistered, product.CommentRegistered{ProductID: "p1", Rate: 5})))
	assert.InDelta(t, 5.0, rate(), 1e-9)

	// Subsequent comments average in
	require.NoError(t, f.reactor.Handle(ctx, envelope(t, product.EventCommentRegistered, product.CommentRegistered{ProductID: "p1", Rate: 3})))
	assert.InDelta(t, 4.0, rate(), 1e-9)

	// Deleting a comment contributes its rate negated, clamped at zero
	require.NoError(t, f.reactor.Handle(ctx, envelope(t, product.EventCommentDeleted, product.CommentDeleted{ProductID: "p1", Rate: 9})))
	assert.InDelta(t, 0.0, rate(), 1e-9)
}
