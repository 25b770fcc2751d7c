package favorites_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/marketplace/internal/domain/favorites"
	"github.com/example/marketplace/internal/domain/product"
	"github.com/example/marketplace/internal/identity"
	"github.com/example/marketplace/internal/store"
)

var buyer = identity.Principal{AccountID: "buyer-1"}

func newFixture(t *testing.T) *favorites.Service {
	t.Helper()
	ctx := context.Background()

	products := store.NewMemoryProducts()
	for _, id := range []string{"p1", "p2"} {
		require.NoError(t, products.Save(ctx, &product.Product{ID: id}))
	}
	return favorites.NewService(store.NewMemoryFavorites(), products)
}

func TestGetStartsEmpty(t *testing.T) {
	svc := newFixture(t)

	list, err := svc.Get(context.Background(), buyer)
	require.NoError(t, err)
	assert.Equal(t, buyer.AccountID, list.OwnerID)
	assert.Empty(t, list.ProductIDs)
}

func TestGetRequiresAuthentication(t *testing.T) {
	svc := newFixture(t)

	_, err := svc.Get(context.Background(), identity.Principal{})
	assert.ErrorIs(t, err, identity.ErrAccessDenied)
}

func TestAddAndRemove(t *testing.T) {
	svc := newFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, buyer, "p1"))
	require.NoError(t, svc.Add(ctx, buyer, "p2"))
	// Favoriting twice is a no-op
	require.NoError(t, svc.Add(ctx, buyer, "p1"))

	list, err := svc.Get(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, list.ProductIDs)

	require.NoError(t, svc.Remove(ctx, buyer, "p1"))
	// Removing an absent product is a no-op
	require.NoError(t, svc.Remove(ctx, buyer, "p1"))

	list, err = svc.Get(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, list.ProductIDs)
}

func TestAddUnknownProduct(t *testing.T) {
	svc := newFixture(t)

	err := svc.Add(context.Background(), buyer, "missing")
	assert.ErrorIs(t, err, product.ErrNotFound)
}
