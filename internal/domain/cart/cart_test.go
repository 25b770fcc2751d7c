package cart_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/marketplace/internal/domain/cart"
	"github.com/example/marketplace/internal/domain/order"
	"github.com/example/marketplace/internal/domain/product"
	"github.com/example/marketplace/internal/identity"
	"github.com/example/marketplace/internal/pricing"
	"github.com/example/marketplace/internal/store"
)

var buyer = identity.Principal{AccountID: "buyer-1"}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, any) error { return nil }

type fixture struct {
	svc      *cart.Service
	carts    *store.MemoryCarts
	products *store.MemoryProducts
	orders   *order.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	products := store.NewMemoryProducts()
	for _, p := range []product.Product{
		{ID: "p1", Caption: "Phone X", ActualPrice: decimal.NewFromInt(100), AvailableQuantity: 10},
		{ID: "p2", Caption: "Charger", ActualPrice: decimal.NewFromInt(20), AvailableQuantity: 5},
	} {
		p := p
		require.NoError(t, products.Save(ctx, &p))
	}

	orderSvc := order.NewService(store.NewMemoryOrders(), products, pricing.NewEngine(store.NewMemoryDiscounts()), noopPublisher{})
	carts := store.NewMemoryCarts()
	svc := cart.NewService(carts, products, orderSvc)

	return &fixture{svc: svc, carts: carts, products: products, orders: orderSvc}
}

func TestGetCreatesEmptyDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.Get(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, buyer.AccountID, c.OwnerID)
	assert.Empty(t, c.Items)

	// The draft persists
	persisted, err := f.carts.FindByOwner(ctx, buyer.AccountID)
	require.NoError(t, err)
	assert.Empty(t, persisted.Items)
}

func TestGetRequiresAuthentication(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Get(context.Background(), identity.Principal{})
	assert.ErrorIs(t, err, identity.ErrAccessDenied)
}

func TestAddProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.AddProduct(ctx, buyer, "p1", 2))
	// Re-adding overwrites the quantity
	require.NoError(t, f.svc.AddProduct(ctx, buyer, "p1", 3))

	c, err := f.svc.Get(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"p1": 3}, c.Items)
}

func TestAddProductValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.AddProduct(ctx, buyer, "p1", 0), order.ErrInvalidQuantity)
	assert.ErrorIs(t, f.svc.AddProduct(ctx, buyer, "missing", 1), product.ErrNotFound)
}

func TestRemoveProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.AddProduct(ctx, buyer, "p1", 2))
	require.NoError(t, f.svc.RemoveProduct(ctx, buyer, "p1"))
	// Removing an absent product is a no-op
	require.NoError(t, f.svc.RemoveProduct(ctx, buyer, "p1"))

	c, err := f.svc.Get(ctx, buyer)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

type brokenCarts struct {
	*store.MemoryCarts
}

func (brokenCarts) FindByOwner(context.Context, string) (*cart.Cart, error) {
	return nil, assert.AnError
}

// Store failures must surface, not masquerade as success or an empty cart
func TestStoreErrorsPropagate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	svc := cart.NewService(brokenCarts{f.carts}, f.products, f.orders)

	assert.ErrorIs(t, svc.RemoveProduct(ctx, buyer, "p1"), assert.AnError)

	_, err := svc.Checkout(ctx, buyer, "1 Main St", "")
	assert.ErrorIs(t, err, assert.AnError)
}

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.AddProduct(ctx, buyer, "p1", 2))
	require.NoError(t, f.svc.AddProduct(ctx, buyer, "p2", 1))

	o, err := f.svc.Checkout(ctx, buyer, "1 Main St", "")
	require.NoError(t, err)
	require.Len(t, o.Lines, 2)
	assert.True(t, o.Total().Equal(decimal.NewFromInt(220)))

	// Stock was reserved through registration
	p1, err := f.products.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(8), p1.AvailableQuantity)

	// The draft is gone
	c, err := f.svc.Get(ctx, buyer)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, buyer, "1 Main St", "")
	assert.ErrorIs(t, err, cart.ErrEmptyCart)

	// A created-but-empty draft is still an empty checkout
	_, err = f.svc.Get(ctx, buyer)
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, buyer, "1 Main St", "")
	assert.ErrorIs(t, err, cart.ErrEmptyCart)
}

func TestCheckoutFailureKeepsDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.AddProduct(ctx, buyer, "p2", 99))

	_, err := f.svc.Checkout(ctx, buyer, "1 Main St", "")
	require.ErrorIs(t, err, order.ErrInsufficientStock)

	c, err := f.svc.Get(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"p2": 99}, c.Items, "failed checkout leaves the draft intact")
}

func TestClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.AddProduct(ctx, buyer, "p1", 1))
	require.NoError(t, f.svc.Clear(ctx, buyer))

	c, err := f.svc.Get(ctx, buyer)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}
