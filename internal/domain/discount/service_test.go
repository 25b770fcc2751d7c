package discount_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/marketplace/internal/domain/category"
	"github.com/example/marketplace/internal/domain/discount"
	"github.com/example/marketplace/internal/domain/product"
	"github.com/example/marketplace/internal/identity"
	"github.com/example/marketplace/internal/store"
)

var admin = identity.Principal{AccountID: "admin-1", Permissions: []string{identity.PermAdmin}}

type recordingPublisher struct {
	types    []string
	payloads []any
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, payload any) error {
	p.types = append(p.types, eventType)
	p.payloads = append(p.payloads, payload)
	return nil
}

type fixture struct {
	svc       *discount.Service
	discounts *store.MemoryDiscounts
	publisher *recordingPublisher
	ids       map[string]string
}

// newFixture builds Electronics -> Phones plus an unrelated Furniture root,
// and one product so by-product targets resolve.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	categories := store.NewMemoryCategories()
	categorySvc := category.NewService(categories)

	ids := make(map[string]string)
	for _, spec := range []struct{ name, parent string }{
		{"Electronics", ""},
		{"Phones", "Electronics"},
		{"Furniture", ""},
	} {
		req := category.RegisterRequest{Name: spec.name}
		if spec.parent != "" {
			req.ParentID = ids[spec.parent]
		}
		c, err := categorySvc.Register(ctx, admin, req)
		require.NoError(t, err)
		ids[spec.name] = c.ID
	}

	products := store.NewMemoryProducts()
	require.NoError(t, products.Save(ctx, &product.Product{ID: "p1", Caption: "Phone X"}))

	discounts := store.NewMemoryDiscounts()
	publisher := &recordingPublisher{}
	svc := discount.NewService(discounts, categorySvc, products, publisher)

	return &fixture{svc: svc, discounts: discounts, publisher: publisher, ids: ids}
}

func TestRegisterByProduct(t *testing.T) {
	f := newFixture(t)

	d, err := f.svc.Register(context.Background(), admin, discount.RegisterRequest{
		Kind:             discount.KindByProduct,
		Percent:          decimal.NewFromInt(25),
		TargetProductIDs: []string{"p1"},
	})
	require.NoError(t, err)

	assert.Equal(t, discount.KindByProduct, d.Kind)
	assert.Equal(t, []string{"p1"}, d.TargetProductIDs)
	assert.Empty(t, d.ClosureCategoryIDs)
	assert.Equal(t, []string{discount.EventDiscountRegistered}, f.publisher.types)
}

func TestRegisterByProductUnknownTarget(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Register(context.Background(), admin, discount.RegisterRequest{
		Kind:             discount.KindByProduct,
		Percent:          decimal.NewFromInt(25),
		TargetProductIDs: []string{"missing"},
	})
	assert.ErrorIs(t, err, discount.ErrNoTargets)
}

func TestRegisterByCategoryCachesClosure(t *testing.T) {
	f := newFixture(t)

	d, err := f.svc.Register(context.Background(), admin, discount.RegisterRequest{
		Kind:              discount.KindByCategory,
		Percent:           decimal.NewFromInt(10),
		TargetCategoryIDs: []string{f.ids["Phones"]},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{f.ids["Phones"]}, d.TargetCategoryIDs)
	assert.Contains(t, d.ClosureCategoryIDs, f.ids["Phones"])
	assert.Contains(t, d.ClosureCategoryIDs, f.ids["Electronics"], "ancestors are in the closure")
	assert.NotContains(t, d.ClosureCategoryIDs, f.ids["Furniture"])
}

func TestRegisterPromoCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Register(ctx, admin, discount.RegisterRequest{
		Kind:    discount.KindPromoCode,
		Percent: decimal.NewFromInt(10),
		Code:    "SAVE10",
	})
	require.NoError(t, err)

	found, err := f.svc.FindPromoCode(ctx, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, d.ID, found.ID)

	_, err = f.svc.FindPromoCode(ctx, "save10")
	assert.ErrorIs(t, err, discount.ErrNotFound)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     discount.RegisterRequest
		wantErr error
	}{
		{"zero percent", discount.RegisterRequest{Kind: discount.KindPromoCode, Percent: decimal.Zero, Code: "X"}, discount.ErrInvalidPercent},
		{"over one hundred", discount.RegisterRequest{Kind: discount.KindPromoCode, Percent: decimal.NewFromInt(101), Code: "X"}, discount.ErrInvalidPercent},
		{"by-product without targets", discount.RegisterRequest{Kind: discount.KindByProduct, Percent: decimal.NewFromInt(10)}, discount.ErrNoTargets},
		{"by-category without targets", discount.RegisterRequest{Kind: discount.KindByCategory, Percent: decimal.NewFromInt(10)}, discount.ErrNoTargets},
		{"promo without code", discount.RegisterRequest{Kind: discount.KindPromoCode, Percent: decimal.NewFromInt(10)}, discount.ErrBlankCode},
		{"unknown kind", discount.RegisterRequest{Kind: "bogus", Percent: decimal.NewFromInt(10)}, discount.ErrInvalidKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, admin, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRegisterRequiresAdmin(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Register(context.Background(), identity.Principal{AccountID: "user-1"}, discount.RegisterRequest{
		Kind:    discount.KindPromoCode,
		Percent: decimal.NewFromInt(10),
		Code:    "SAVE10",
	})
	assert.ErrorIs(t, err, identity.ErrAccessDenied)
}

func TestDeletePublishesFullDiscount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Register(ctx, admin, discount.RegisterRequest{
		Kind:             discount.KindByProduct,
		Percent:          decimal.NewFromInt(25),
		TargetProductIDs: []string{"p1"},
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, admin, d.ID))

	_, err = f.svc.FindByID(ctx, d.ID)
	assert.ErrorIs(t, err, discount.ErrNotFound)

	require.Len(t, f.publisher.types, 2)
	assert.Equal(t, discount.EventDiscountDeleted, f.publisher.types[1])
	deleted, ok := f.publisher.payloads[1].(discount.DiscountDeleted)
	require.True(t, ok)
	assert.Equal(t, d.ID, deleted.Discount.ID)
	assert.True(t, deleted.Discount.Percent.Equal(d.Percent), "reversal needs the original percent")
}
