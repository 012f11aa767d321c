// Package pricing computes the payable total for a cart: rule-based fees,
// coupon discounts and CrashCash redemption. Everything here is pure; the
// same inputs always produce the same breakdown.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/example/crashkart/pkg/models"
)

var ErrValidation = errors.New("invalid pricing input")

// Breakdown is the component split of an order total. The reconciliation
// invariant holds for every breakdown produced here:
//
//	Total == Subtotal - CouponDiscount - LoyaltyDiscount
//	         + ShippingFee + ConvenienceFee + PlatformFee
//
// clamped at zero.
type Breakdown struct {
	Subtotal        decimal.Decimal `json:"subtotal"`
	ShippingFee     decimal.Decimal `json:"shipping_fee"`
	ConvenienceFee  decimal.Decimal `json:"convenience_fee"`
	PlatformFee     decimal.Decimal `json:"platform_fee"`
	CouponDiscount  decimal.Decimal `json:"coupon_discount"`
	LoyaltyDiscount decimal.Decimal `json:"loyalty_discount"`
	Total           decimal.Decimal `json:"total"`
}

// LoyaltyRedemption is a request to burn CrashCash against an order.
// MaxRedeemable is the product-level cap resolved by the caller; nil means
// the cart carries no cap.
type LoyaltyRedemption struct {
	Requested     decimal.Decimal
	Balance       decimal.Decimal
	MaxRedeemable *decimal.Decimal
}

// ComputeInput carries everything ComputeCharges needs. FreeShippingThreshold
// zero or negative disables the free-shipping override.
type ComputeInput struct {
	Subtotal              decimal.Decimal
	Rule                  models.ChargeRule
	FreeShippingThreshold decimal.Decimal
	Coupon                *models.Coupon
	Loyalty               *LoyaltyRedemption
}

// ComputeCharges produces the deterministic fee/discount breakdown for a
// cart. Validation failures reject the whole computation; there is no
// partial result.
func ComputeCharges(in ComputeInput) (Breakdown, error) {
	if in.Subtotal.IsNegative() {
		return Breakdown{}, fmt.Errorf("%w: negative subtotal %s", ErrValidation, in.Subtotal)
	}
	if in.Rule.ShippingFee.IsNegative() || in.Rule.ConvenienceFee.IsNegative() || in.Rule.PlatformFee.IsNegative() {
		return Breakdown{}, fmt.Errorf("%w: charge rule has negative fee", ErrValidation)
	}
	if in.Coupon != nil {
		switch in.Coupon.Type {
		case models.CouponPercentage, models.CouponFlat, models.CouponFreeDelivery:
		default:
			return Breakdown{}, fmt.Errorf("%w: unrecognized coupon type %q", ErrValidation, in.Coupon.Type)
		}
		if in.Coupon.Discount.IsNegative() {
			return Breakdown{}, fmt.Errorf("%w: negative coupon discount", ErrValidation)
		}
	}
	if in.Loyalty != nil && in.Loyalty.Requested.IsNegative() {
		return Breakdown{}, fmt.Errorf("%w: negative loyalty redemption", ErrValidation)
	}

	b := Breakdown{
		Subtotal:        in.Subtotal,
		ShippingFee:     in.Rule.ShippingFee,
		ConvenienceFee:  in.Rule.ConvenienceFee,
		PlatformFee:     in.Rule.PlatformFee,
		CouponDiscount:  decimal.Zero,
		LoyaltyDiscount: decimal.Zero,
	}

	if in.FreeShippingThreshold.IsPositive() && in.Subtotal.GreaterThanOrEqual(in.FreeShippingThreshold) {
		b.ShippingFee = decimal.Zero
	}

	if c := in.Coupon; c != nil && in.Subtotal.GreaterThanOrEqual(c.MinOrderValue) {
		switch c.Type {
		case models.CouponPercentage:
			d := in.Subtotal.Mul(c.Discount).Div(decimal.NewFromInt(100))
			if c.MaxDiscount != nil && d.GreaterThan(*c.MaxDiscount) {
				d = *c.MaxDiscount
			}
			b.CouponDiscount = d
		case models.CouponFlat:
			b.CouponDiscount = decimal.Min(c.Discount, in.Subtotal)
		case models.CouponFreeDelivery:
			b.ShippingFee = decimal.Zero
		}
	}

	if l := in.Loyalty; l != nil {
		d := decimal.Min(l.Requested, l.Balance)
		if l.MaxRedeemable != nil {
			d = decimal.Min(d, *l.MaxRedeemable)
		}
		remaining := in.Subtotal.Sub(b.CouponDiscount)
		d = decimal.Min(d, remaining)
		if d.IsNegative() {
			d = decimal.Zero
		}
		b.LoyaltyDiscount = d
	}

	b.Total = Total(b)
	return b, nil
}

// Total recomputes a breakdown's payable total from its components, clamped
// at zero.
func Total(b Breakdown) decimal.Decimal {
	t := b.Subtotal.
		Sub(b.CouponDiscount).
		Sub(b.LoyaltyDiscount).
		Add(b.ShippingFee).
		Add(b.ConvenienceFee).
		Add(b.PlatformFee)
	if t.IsNegative() {
		return decimal.Zero
	}
	return t
}

// Rounded returns a copy rounded to two places for display. Intermediate
// math stays unrounded; only rendering rounds.
func (b Breakdown) Rounded() Breakdown {
	return Breakdown{
		Subtotal:        b.Subtotal.Round(2),
		ShippingFee:     b.ShippingFee.Round(2),
		ConvenienceFee:  b.ConvenienceFee.Round(2),
		PlatformFee:     b.PlatformFee.Round(2),
		CouponDiscount:  b.CouponDiscount.Round(2),
		LoyaltyDiscount: b.LoyaltyDiscount.Round(2),
		Total:           b.Total.Round(2),
	}
}

// ResolveChargeRule picks the rule that applies to a product: a product
// rule beats a category rule, which beats an all-products rule, which beats
// the global default.
func ResolveChargeRule(rules []models.ChargeRule, productID, category string, def models.ChargeRule) models.ChargeRule {
	best := def
	rank := 0
	for _, r := range rules {
		switch {
		case r.Scope == models.ScopeProduct && r.Target == productID && rank < 3:
			best, rank = r, 3
		case r.Scope == models.ScopeCategory && r.Target == category && rank < 2:
			best, rank = r, 2
		case r.Scope == models.ScopeAll && rank < 1:
			best, rank = r, 1
		}
	}
	return best
}
