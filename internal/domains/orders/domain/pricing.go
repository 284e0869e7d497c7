package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// DiscountType selects how a promotion value is interpreted.
type DiscountType string

const (
	DiscountFixed      DiscountType = "fixed"
	DiscountPercentage DiscountType = "percentage"
)

var (
	ErrInvalidDiscountType = errors.New("promotion discount type is invalid")
	ErrNegativeDiscount    = errors.New("promotion discount value must not be negative")
	ErrInvalidPromotionID  = errors.New("promotion id must be greater than zero")
)

var hundred = decimal.NewFromInt(100)

// Promotion is an active discount on a product.
type Promotion struct {
	ID    int64
	Name  string
	Type  DiscountType
	Value decimal.Decimal
}

// Validate rejects promotions that cannot price a unit.
func (p Promotion) Validate() error {
	if p.ID <= 0 {
		return ErrInvalidPromotionID
	}
	if p.Type != DiscountFixed && p.Type != DiscountPercentage {
		return ErrInvalidDiscountType
	}
	if p.Value.IsNegative() {
		return ErrNegativeDiscount
	}
	return nil
}

// DiscountFor returns the per-unit discount, rounded to cents and clamped to
// the unit price.
func (p Promotion) DiscountFor(price decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch p.Type {
	case DiscountFixed:
		discount = p.Value
	case DiscountPercentage:
		discount = price.Mul(p.Value).Div(hundred)
	default:
		return decimal.Zero
	}
	discount = discount.Round(2)
	if discount.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(price) {
		return price
	}
	return discount
}

// SelectPromotion picks the valid promotion with the lowest id.
func SelectPromotion(promos []Promotion) (Promotion, bool) {
	var (
		best  Promotion
		found bool
	)
	for _, p := range promos {
		if p.Validate() != nil {
			continue
		}
		if !found || p.ID < best.ID {
			best = p
			found = true
		}
	}
	return best, found
}
