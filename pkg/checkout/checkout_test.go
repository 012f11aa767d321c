package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/crashkart/pkg/fulfillment"
	"github.com/example/crashkart/pkg/invoice"
	"github.com/example/crashkart/pkg/models"
	"github.com/example/crashkart/pkg/notify"
	"github.com/example/crashkart/pkg/pricing"
	"github.com/example/crashkart/pkg/repository"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type fakeOrders struct {
	created map[string]*models.Order
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{created: make(map[string]*models.Order)}
}

func (f *fakeOrders) CreateOrder(_ context.Context, order *models.Order) error {
	f.created[order.ID] = order
	return nil
}

func (f *fakeOrders) FindOrderByID(_ context.Context, id string) (*models.Order, error) {
	o, ok := f.created[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) UpdateOrder(_ context.Context, order *models.Order) error {
	stored, ok := f.created[order.ID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	stored.Status = order.Status
	stored.Paid = order.Paid
	stored.UpdatedAt = order.UpdatedAt
	return nil
}

func (f *fakeOrders) UpdateShipmentsByOrderID(_ context.Context, orderID string, patch models.ShipmentPatch) error {
	o, ok := f.created[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	for i := range o.Shipments {
		o.Shipments[i].Status = patch.Status
	}
	return nil
}

func (f *fakeOrders) UpdateShipmentByID(_ context.Context, shipmentID string, patch models.ShipmentPatch) error {
	for _, o := range f.created {
		for i := range o.Shipments {
			if o.Shipments[i].ID == shipmentID {
				o.Shipments[i].Status = patch.Status
				return nil
			}
		}
	}
	return repository.ErrShipmentNotFound
}

type fakeCatalog struct {
	products map[string]*models.Product
	coupons  map[string]*models.Coupon
	users    map[string]*models.User
	rules    []models.ChargeRule
	debits   []string
}

func (f *fakeCatalog) FindChargeRules(_ context.Context) ([]models.ChargeRule, error) {
	return f.rules, nil
}

func (f *fakeCatalog) FindCoupon(_ context.Context, code string, _ time.Time) (*models.Coupon, error) {
	c, ok := f.coupons[code]
	if !ok {
		return nil, repository.ErrCouponNotFound
	}
	return c, nil
}

func (f *fakeCatalog) FindProduct(_ context.Context, id string) (*models.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return p, nil
}

func (f *fakeCatalog) FindUser(_ context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeCatalog) DebitCrashCash(_ context.Context, userID, amount string) error {
	f.debits = append(f.debits, userID+":"+amount)
	return nil
}

type fakeDispatcher struct {
	kinds []notify.Kind
}

func (d *fakeDispatcher) Dispatch(_ context.Context, kind notify.Kind, _ notify.OrderSnapshot, _ string) error {
	d.kinds = append(d.kinds, kind)
	return nil
}

func testCatalog() *fakeCatalog {
	return &fakeCatalog{
		products: map[string]*models.Product{
			"p-shirt": {ID: "p-shirt", Name: "Crash Tee", Category: "apparel", Price: d("600"), Stock: 10, MaxCrashCash: d("100")},
			"p-mug":   {ID: "p-mug", Name: "Crash Mug", Category: "kitchen", Price: d("200"), Stock: 5, MaxCrashCash: d("20")},
		},
		coupons: map[string]*models.Coupon{
			"FLAT100": {Code: "FLAT100", Type: models.CouponFlat, Discount: d("100"), MinOrderValue: d("500"), Active: true},
		},
		users: map[string]*models.User{
			"u-1": {ID: "u-1", Name: "Asha", Email: "asha@example.com", CrashCashBalance: d("300")},
		},
		rules: []models.ChargeRule{
			{ID: "r-apparel", Scope: models.ScopeCategory, Target: "apparel", ShippingFee: d("0"), ConvenienceFee: d("0"), PlatformFee: d("0")},
		},
	}
}

func newTestService(orders *fakeOrders, catalog *fakeCatalog, disp notify.Dispatcher) *Service {
	logger := zap.NewNop()
	lifecycle := fulfillment.NewService(orders, disp, nil, nil, nil, logger, fixedClock)
	defaults := PricingDefaults{
		FreeShippingThreshold: d("2000"),
		DefaultRule:           models.ChargeRule{ShippingFee: d("40"), ConvenienceFee: d("10"), PlatformFee: d("5")},
	}
	return NewService(orders, lifecycle, catalog, nil, disp, nil, nil, defaults, logger, fixedClock)
}

func baseRequest() PlaceOrderRequest {
	return PlaceOrderRequest{
		UserID:        "u-1",
		Items:         []Line{{ProductID: "p-shirt", Quantity: 2}},
		PaymentMethod: models.PaymentCOD,
		Address: models.Address{
			Name:  "Asha",
			Line1: "1 MG Road",
			City:  "Pune",
			Email: "asha@example.com",
		},
	}
}

func TestPlaceOrderEndToEnd(t *testing.T) {
	// Cart of 1200 in a free-shipping category, FLAT100 coupon, 50
	// CrashCash redeemed.
	orders := newFakeOrders()
	catalog := testCatalog()
	disp := &fakeDispatcher{}
	svc := newTestService(orders, catalog, disp)

	req := baseRequest()
	req.CouponCode = "FLAT100"
	req.CrashCash = d("50")

	order, breakdown, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, breakdown.CouponDiscount.Equal(d("100")))
	assert.True(t, breakdown.LoyaltyDiscount.Equal(d("50")))
	assert.True(t, breakdown.ShippingFee.IsZero(), "apparel category rule ships free")
	assert.True(t, breakdown.Total.Equal(d("1050")), "total = %s", breakdown.Total)

	assert.Equal(t, models.StatusOrderPlaced, order.Status)
	assert.False(t, order.Paid)
	require.Len(t, order.Shipments, 1)
	assert.Equal(t, models.StatusOrderPlaced, order.Shipments[0].Status)
	assert.Equal(t, order.ID, order.Shipments[0].OrderID)

	assert.Equal(t, []string{"u-1:50"}, catalog.debits)
	assert.Equal(t, []notify.Kind{notify.KindOrderConfirmed}, disp.kinds)
	require.Contains(t, orders.created, order.ID)
}

func TestPlaceOrderSnapshotReconciles(t *testing.T) {
	// The notes snapshot written at checkout must reconstruct to the stored
	// total.
	orders := newFakeOrders()
	svc := newTestService(orders, testCatalog(), &fakeDispatcher{})

	req := baseRequest()
	req.Items = []Line{{ProductID: "p-mug", Quantity: 3}} // default rule applies

	order, breakdown, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, breakdown.Total.Equal(d("655")), "600 + 40 + 10 + 5, got %s", breakdown.Total)

	rebuilt := invoice.Reconstruct(*order)
	assert.True(t, pricing.Total(rebuilt).Equal(order.Total))
	assert.True(t, rebuilt.ShippingFee.Equal(d("40")))
}

func TestPlaceOrderValidation(t *testing.T) {
	svc := newTestService(newFakeOrders(), testCatalog(), &fakeDispatcher{})

	tests := []struct {
		name   string
		mutate func(*PlaceOrderRequest)
	}{
		{"missing user", func(r *PlaceOrderRequest) { r.UserID = "" }},
		{"empty cart", func(r *PlaceOrderRequest) { r.Items = nil }},
		{"zero quantity", func(r *PlaceOrderRequest) { r.Items[0].Quantity = 0 }},
		{"bad payment method", func(r *PlaceOrderRequest) { r.PaymentMethod = "UPI" }},
		{"negative crashcash", func(r *PlaceOrderRequest) { r.CrashCash = d("-1") }},
		{"no address", func(r *PlaceOrderRequest) { r.Address = models.Address{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			tt.mutate(&req)
			_, _, err := svc.PlaceOrder(context.Background(), req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestPlaceOrderOutOfStock(t *testing.T) {
	svc := newTestService(newFakeOrders(), testCatalog(), &fakeDispatcher{})

	req := baseRequest()
	req.Items = []Line{{ProductID: "p-mug", Quantity: 50}}

	_, _, err := svc.PlaceOrder(context.Background(), req)
	assert.ErrorIs(t, err, ErrOutOfStock)
}

func TestPlaceOrderLoyaltyCappedByProducts(t *testing.T) {
	orders := newFakeOrders()
	catalog := testCatalog()
	svc := newTestService(orders, catalog, &fakeDispatcher{})

	req := baseRequest()
	req.Items = []Line{{ProductID: "p-mug", Quantity: 1}} // product cap 20
	req.CrashCash = d("200")

	_, breakdown, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, breakdown.LoyaltyDiscount.Equal(d("20")), "capped by product, got %s", breakdown.LoyaltyDiscount)
}

func TestGatewayOrderStartsPaymentPending(t *testing.T) {
	orders := newFakeOrders()
	svc := newTestService(orders, testCatalog(), &fakeDispatcher{})

	req := baseRequest()
	req.PaymentMethod = models.PaymentGateway

	order, _, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaymentPending, order.Status)
	assert.Equal(t, models.StatusPaymentPending, order.Shipments[0].Status)
}

func TestConfirmPayment(t *testing.T) {
	orders := newFakeOrders()
	svc := newTestService(orders, testCatalog(), &fakeDispatcher{})

	req := baseRequest()
	req.PaymentMethod = models.PaymentGateway
	placed, _, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	confirmed, err := svc.ConfirmPayment(context.Background(), placed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOrderPlaced, confirmed.Status)
	assert.True(t, confirmed.Paid)

	stored := orders.created[placed.ID]
	assert.Equal(t, models.StatusOrderPlaced, stored.Status)
	assert.True(t, stored.Paid)
}

func TestConfirmPaymentOnCODOrderRejected(t *testing.T) {
	orders := newFakeOrders()
	svc := newTestService(orders, testCatalog(), &fakeDispatcher{})

	placed, _, err := svc.PlaceOrder(context.Background(), baseRequest())
	require.NoError(t, err)

	// A COD order is already ORDER_PLACED; re-confirming is the idempotent
	// no-op transition, not an error, but it must not un-place the order.
	confirmed, err := svc.ConfirmPayment(context.Background(), placed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOrderPlaced, confirmed.Status)
}
