package invoice

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/crashkart/pkg/models"
	"github.com/example/crashkart/pkg/pricing"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func dp(v string) *decimal.Decimal {
	x := decimal.RequireFromString(v)
	return &x
}

func orderWith(t *testing.T, total string, notes *models.OrderNotes, items ...models.Shipment) models.Order {
	t.Helper()
	o := models.Order{
		ID:        "ord-1",
		Total:     d(total),
		Shipments: items,
	}
	if notes != nil {
		require.NoError(t, o.EncodeNotes(*notes))
	}
	return o
}

func TestReconstructFromCompleteNotes(t *testing.T) {
	o := orderWith(t, "1105", &models.OrderNotes{
		Subtotal:          dp("1200"),
		ShippingFee:       dp("40"),
		ConvenienceFee:    dp("10"),
		PlatformFee:       dp("5"),
		CouponDiscount:    dp("100"),
		CrashCashDiscount: dp("50"),
	})

	b := Reconstruct(o)
	assert.True(t, b.Subtotal.Equal(d("1200")))
	assert.True(t, b.ShippingFee.Equal(d("40")))
	assert.True(t, b.ConvenienceFee.Equal(d("10")))
	assert.True(t, b.PlatformFee.Equal(d("5")))
	assert.True(t, b.CouponDiscount.Equal(d("100")))
	assert.True(t, b.LoyaltyDiscount.Equal(d("50")))

	// Reconciliation: the stored total matches the recomputed component sum.
	assert.True(t, pricing.Total(b).Equal(o.Total))
}

func TestReconstructSubtotalFallsBackToItems(t *testing.T) {
	o := orderWith(t, "650", nil,
		models.Shipment{Price: d("200"), Quantity: 3},
		models.Shipment{Price: d("50"), Quantity: 1},
	)

	b := Reconstruct(o)
	assert.True(t, b.Subtotal.Equal(d("650")), "sum of price x quantity, got %s", b.Subtotal)
	assert.True(t, b.CouponDiscount.IsZero())
	assert.True(t, b.LoyaltyDiscount.IsZero())
}

func TestReconstructLegacyDeliveryChargeName(t *testing.T) {
	o := orderWith(t, "540", &models.OrderNotes{
		Subtotal:       dp("500"),
		DeliveryCharge: dp("40"),
	})

	b := Reconstruct(o)
	assert.True(t, b.ShippingFee.Equal(d("40")))
}

func TestReconstructRecoversFromTotalInShippingSlot(t *testing.T) {
	// Known historical bug: the full order total stored as deliveryCharge.
	o := orderWith(t, "540", &models.OrderNotes{
		Subtotal:       dp("500"),
		DeliveryCharge: dp("540"),
	})

	b := Reconstruct(o)
	assert.False(t, b.ShippingFee.Equal(d("540")), "must not surface the buggy value")
	assert.True(t, b.ShippingFee.Equal(d("40")), "derived from total residual, got %s", b.ShippingFee)
}

func TestReconstructDerivedShippingClampedAtZero(t *testing.T) {
	// Stored total lower than the components imply; the residual would be
	// negative and is clamped instead.
	o := orderWith(t, "400", &models.OrderNotes{
		Subtotal: dp("500"),
	})

	b := Reconstruct(o)
	assert.True(t, b.ShippingFee.IsZero())
}

func TestReconstructEmptyOrderNeverFails(t *testing.T) {
	b := Reconstruct(models.Order{})
	assert.True(t, b.Subtotal.IsZero())
	assert.True(t, b.Total.IsZero())
}

func TestReconstructMalformedNotes(t *testing.T) {
	o := models.Order{
		Total: d("100"),
		Notes: `{"subtotal": garbage`,
		Shipments: []models.Shipment{
			{Price: d("100"), Quantity: 1},
		},
	}

	b := Reconstruct(o)
	assert.True(t, b.Subtotal.Equal(d("100")), "malformed notes fall back to items")
}

func TestReconstructIdempotent(t *testing.T) {
	o := orderWith(t, "540", &models.OrderNotes{
		Subtotal:       dp("500"),
		DeliveryCharge: dp("540"),
	})

	first := Reconstruct(o)
	second := Reconstruct(o)
	assert.Equal(t, first, second)
}
