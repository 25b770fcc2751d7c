package discount

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound       = errors.New("discount not found")
	ErrInvalidPercent = errors.New("discount percent must be in (0, 100]")
	ErrInvalidKind    = errors.New("unknown discount kind")
	ErrNoTargets      = errors.New("discount must name at least one target")
	ErrBlankCode      = errors.New("promo code is required")
)

// Kind discriminates the closed set of discount variants
type Kind string

const (
	KindByProduct  Kind = "by_product"
	KindByCategory Kind = "by_category"
	KindPromoCode  Kind = "promo_code"
)

// Discount is a tagged union: exactly one variant's fields are populated,
// selected by Kind. ClosureCategoryIDs is resolved once at registration
// (targets plus ancestors plus descendant subtrees) and cached here so
// applicability checks never re-walk the category tree.
type Discount struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Description string          `json:"description"`
	Percent     decimal.Decimal `json:"percent"`
	CreatedAt   time.Time       `json:"created_at"`

	// KindByProduct
	TargetProductIDs []string `json:"target_product_ids,omitempty"`

	// KindByCategory
	TargetCategoryIDs  []string `json:"target_category_ids,omitempty"`
	ClosureCategoryIDs []string `json:"closure_category_ids,omitempty"`

	// KindPromoCode
	Code string `json:"code,omitempty"`
}

var oneHundred = decimal.NewFromInt(100)

// Multiplier is the factor a discount applies to a price
func (d *Discount) Multiplier() decimal.Decimal {
	return decimal.NewFromInt(1).Sub(d.Percent.Div(oneHundred))
}

// AppliesTo reports whether the discount automatically applies to a
// product with the given id and category memberships. Promo codes are
// never automatic; they only match an explicitly supplied code.
func (d *Discount) AppliesTo(productID string, categoryIDs []string) bool {
	switch d.Kind {
	case KindByProduct:
		for _, id := range d.TargetProductIDs {
			if id == productID {
				return true
			}
		}
		return false
	case KindByCategory:
		closure := make(map[string]struct{}, len(d.ClosureCategoryIDs))
		for _, id := range d.ClosureCategoryIDs {
			closure[id] = struct{}{}
		}
		for _, id := range categoryIDs {
			if _, ok := closure[id]; ok {
				return true
			}
		}
		return false
	case KindPromoCode:
		return false
	}
	return false
}

// Matches reports whether a promo-code discount matches the supplied code.
// Comparison is exact and case-sensitive.
func (d *Discount) Matches(code string) bool {
	return d.Kind == KindPromoCode && d.Code != "" && d.Code == code
}
