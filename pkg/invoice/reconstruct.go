// Package invoice rebuilds a display-ready charge breakdown for a persisted
// order. Orders only carry a best-effort notes blob from checkout time, and
// very old rows may carry none of it, so reconstruction substitutes and
// derives instead of failing.
package invoice

import (
	"github.com/shopspring/decimal"

	"github.com/example/crashkart/pkg/models"
	"github.com/example/crashkart/pkg/pricing"
)

// Reconstruct derives the fee/discount breakdown for an order. It never
// fails: missing fields become zero, the subtotal falls back to the sum of
// line prices, and an implausible stored shipping fee is replaced by the
// residual of the stored total. Read-only and idempotent.
func Reconstruct(order models.Order) pricing.Breakdown {
	notes := order.ParseNotes()

	b := pricing.Breakdown{
		Subtotal:        order.ItemsSubtotal(),
		ShippingFee:     decimal.Zero,
		ConvenienceFee:  valueOrZero(notes.ConvenienceFee),
		PlatformFee:     valueOrZero(notes.PlatformFee),
		CouponDiscount:  valueOrZero(notes.CouponDiscount),
		LoyaltyDiscount: valueOrZero(notes.CrashCashDiscount),
		Total:           order.Total,
	}
	if notes.Subtotal != nil {
		b.Subtotal = *notes.Subtotal
	}

	b.ShippingFee = shippingFee(notes, order.Total, b)
	return b
}

// shippingFee picks the stored shipping fee when it is plausible and derives
// it from the total otherwise. Some historical rows carry the whole order
// total in the deliveryCharge slot; a stored fee larger than the total or
// the subtotal is treated as that bug and discarded.
func shippingFee(notes models.OrderNotes, total decimal.Decimal, b pricing.Breakdown) decimal.Decimal {
	stored := notes.ShippingFee
	if stored == nil {
		stored = notes.DeliveryCharge
	}
	if stored != nil && !stored.IsNegative() &&
		stored.LessThan(total) && stored.LessThanOrEqual(b.Subtotal) {
		return *stored
	}
	if stored != nil && stored.IsZero() {
		return decimal.Zero
	}

	residual := total.
		Sub(b.Subtotal).
		Add(b.CouponDiscount).
		Add(b.LoyaltyDiscount).
		Sub(b.ConvenienceFee).
		Sub(b.PlatformFee)
	if residual.IsNegative() {
		return decimal.Zero
	}
	return residual
}

func valueOrZero(v *decimal.Decimal) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return *v
}
