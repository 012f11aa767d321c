// Package checkout finalizes a cart into an order: it resolves the charge
// rule, computes the charge breakdown, snapshots it into the order's notes,
// and creates the order with one shipment per purchased line.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/crashkart/pkg/fulfillment"
	"github.com/example/crashkart/pkg/models"
	"github.com/example/crashkart/pkg/notify"
	"github.com/example/crashkart/pkg/pricing"
)

var (
	ErrValidation = pricing.ErrValidation
	ErrOutOfStock = errors.New("product out of stock")
)

// Line is one purchased product.
type Line struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// PlaceOrderRequest is the boundary-validated checkout payload. Optional
// fields default explicitly; nothing is merged ad hoc past this point.
type PlaceOrderRequest struct {
	UserID        string               `json:"user_id"`
	Items         []Line               `json:"items"`
	Address       models.Address       `json:"address"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	CouponCode    string               `json:"coupon_code"`
	CrashCash     decimal.Decimal      `json:"crashcash"`
}

// Catalog is the reference-data collaborator consulted at checkout.
type Catalog interface {
	FindChargeRules(ctx context.Context) ([]models.ChargeRule, error)
	FindCoupon(ctx context.Context, code string, now time.Time) (*models.Coupon, error)
	FindProduct(ctx context.Context, id string) (*models.Product, error)
	FindUser(ctx context.Context, id string) (*models.User, error)
	DebitCrashCash(ctx context.Context, userID string, amount string) error
}

// RuleCache is the read-through cache in front of FindChargeRules. Stale
// reads are fine: the computed fees are snapshotted into the order, so a
// rule edit never retroactively changes a placed order.
type RuleCache interface {
	GetChargeRulesCache(ctx context.Context) ([]models.ChargeRule, error)
	CacheChargeRules(ctx context.Context, rules []models.ChargeRule) error
}

// AuditLogger records the checkout in the audit trail.
type AuditLogger interface {
	LogCheckout(ctx context.Context, order *models.Order) error
}

// OrderStore is the order persistence checkout needs: creation plus the
// shared lifecycle operations.
type OrderStore interface {
	fulfillment.OrderStore
	CreateOrder(ctx context.Context, order *models.Order) error
}

type Service struct {
	orders     OrderStore
	lifecycle  *fulfillment.Service
	catalog    Catalog
	rules      RuleCache
	dispatcher notify.Dispatcher
	publisher  fulfillment.EventPublisher
	audit      AuditLogger
	pricing    PricingDefaults
	logger     *zap.Logger
	clock      fulfillment.Clock
}

// PricingDefaults carries the global fee configuration applied when no
// admin rule matches.
type PricingDefaults struct {
	FreeShippingThreshold decimal.Decimal
	DefaultRule           models.ChargeRule
}

func NewService(orders OrderStore, lifecycle *fulfillment.Service, catalog Catalog, rules RuleCache, dispatcher notify.Dispatcher, publisher fulfillment.EventPublisher, audit AuditLogger, defaults PricingDefaults, logger *zap.Logger, clock fulfillment.Clock) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		orders:     orders,
		lifecycle:  lifecycle,
		catalog:    catalog,
		rules:      rules,
		dispatcher: dispatcher,
		publisher:  publisher,
		audit:      audit,
		pricing:    defaults,
		logger:     logger,
		clock:      clock,
	}
}

// PlaceOrder validates, prices and persists a new order. COD orders start
// at ORDER_PLACED; gateway orders start at PAYMENT_PENDING until
// ConfirmPayment flips them.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*models.Order, pricing.Breakdown, error) {
	if err := validate(req); err != nil {
		return nil, pricing.Breakdown{}, err
	}

	user, err := s.catalog.FindUser(ctx, req.UserID)
	if err != nil {
		return nil, pricing.Breakdown{}, err
	}

	now := s.clock()

	subtotal := decimal.Zero
	loyaltyCap := decimal.Zero
	var shipments []models.Shipment
	var topLine struct {
		amount    decimal.Decimal
		productID string
		category  string
	}
	for _, line := range req.Items {
		product, err := s.catalog.FindProduct(ctx, line.ProductID)
		if err != nil {
			return nil, pricing.Breakdown{}, err
		}
		if product.Stock < line.Quantity {
			return nil, pricing.Breakdown{}, fmt.Errorf("product %s: %w", product.ID, ErrOutOfStock)
		}

		amount := product.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		subtotal = subtotal.Add(amount)
		loyaltyCap = loyaltyCap.Add(product.MaxCrashCash)
		if amount.GreaterThan(topLine.amount) {
			topLine.amount = amount
			topLine.productID = product.ID
			topLine.category = product.Category
		}

		shipments = append(shipments, models.Shipment{
			ID:          uuid.NewString(),
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			Price:       product.Price,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	rules, err := s.chargeRules(ctx)
	if err != nil {
		return nil, pricing.Breakdown{}, err
	}
	// The order-level charge rule is resolved against the cart's
	// highest-value line.
	rule := pricing.ResolveChargeRule(rules, topLine.productID, topLine.category, s.pricing.DefaultRule)

	var coupon *models.Coupon
	if req.CouponCode != "" {
		coupon, err = s.catalog.FindCoupon(ctx, req.CouponCode, now)
		if err != nil {
			return nil, pricing.Breakdown{}, err
		}
	}

	var loyalty *pricing.LoyaltyRedemption
	if req.CrashCash.IsPositive() {
		loyalty = &pricing.LoyaltyRedemption{
			Requested:     req.CrashCash,
			Balance:       user.CrashCashBalance,
			MaxRedeemable: &loyaltyCap,
		}
	}

	breakdown, err := pricing.ComputeCharges(pricing.ComputeInput{
		Subtotal:              subtotal,
		Rule:                  rule,
		FreeShippingThreshold: s.pricing.FreeShippingThreshold,
		Coupon:                coupon,
		Loyalty:               loyalty,
	})
	if err != nil {
		return nil, pricing.Breakdown{}, err
	}

	initial := models.StatusOrderPlaced
	if req.PaymentMethod == models.PaymentGateway {
		initial = models.StatusPaymentPending
	}
	for i := range shipments {
		shipments[i].Status = initial
	}

	order := &models.Order{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		Status:        initial,
		PaymentMethod: req.PaymentMethod,
		Paid:          false,
		Subtotal:      breakdown.Subtotal,
		Total:         breakdown.Total,
		CouponCode:    req.CouponCode,
		Address:       req.Address,
		Shipments:     shipments,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i := range order.Shipments {
		order.Shipments[i].OrderID = order.ID
	}
	if err := order.EncodeNotes(models.OrderNotes{
		Subtotal:          &breakdown.Subtotal,
		ShippingFee:       &breakdown.ShippingFee,
		ConvenienceFee:    &breakdown.ConvenienceFee,
		PlatformFee:       &breakdown.PlatformFee,
		CouponDiscount:    &breakdown.CouponDiscount,
		CrashCashDiscount: &breakdown.LoyaltyDiscount,
	}); err != nil {
		return nil, pricing.Breakdown{}, fmt.Errorf("encode notes: %w", err)
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return nil, pricing.Breakdown{}, err
	}

	if breakdown.LoyaltyDiscount.IsPositive() {
		if err := s.catalog.DebitCrashCash(ctx, req.UserID, breakdown.LoyaltyDiscount.String()); err != nil {
			s.logger.Error("crashcash debit failed after order creation",
				zap.String("order_id", order.ID), zap.Error(err))
		}
	}

	s.fanOut(ctx, order)
	return order, breakdown, nil
}

// ConfirmPayment flips a gateway order from PAYMENT_PENDING to ORDER_PLACED
// once the payment collaborator reports success, and marks it paid.
func (s *Service) ConfirmPayment(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.lifecycle.UpdateStatus(ctx, orderID, models.StatusOrderPlaced, fulfillment.UpdateOptions{})
	if err != nil {
		return nil, err
	}

	order.Paid = true
	if err := s.orders.UpdateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("mark paid: %w", err)
	}
	return order, nil
}

func (s *Service) chargeRules(ctx context.Context) ([]models.ChargeRule, error) {
	if s.rules != nil {
		if rules, err := s.rules.GetChargeRulesCache(ctx); err == nil {
			return rules, nil
		}
	}

	rules, err := s.catalog.FindChargeRules(ctx)
	if err != nil {
		return nil, err
	}
	if s.rules != nil {
		if err := s.rules.CacheChargeRules(ctx, rules); err != nil {
			s.logger.Warn("charge rule cache write failed", zap.Error(err))
		}
	}
	return rules, nil
}

func (s *Service) fanOut(ctx context.Context, order *models.Order) {
	if s.audit != nil {
		go func(o models.Order) {
			if err := s.audit.LogCheckout(context.Background(), &o); err != nil {
				s.logger.Warn("checkout audit failed", zap.String("order_id", o.ID), zap.Error(err))
			}
		}(*order)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishOrderEvent(ctx, *order, "placed"); err != nil {
			s.logger.Warn("event publish failed", zap.String("order_id", order.ID), zap.Error(err))
		}
	}

	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, notify.KindOrderConfirmed, notify.Snapshot(*order), order.Address.Email); err != nil {
			s.logger.Warn("confirmation dispatch failed", zap.String("order_id", order.ID), zap.Error(err))
		}
	}
}

func validate(req PlaceOrderRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrValidation)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: empty cart", ErrValidation)
	}
	for _, line := range req.Items {
		if line.ProductID == "" || line.Quantity <= 0 {
			return fmt.Errorf("%w: bad line item", ErrValidation)
		}
	}
	switch req.PaymentMethod {
	case models.PaymentCOD, models.PaymentGateway:
	default:
		return fmt.Errorf("%w: unknown payment method %q", ErrValidation, req.PaymentMethod)
	}
	if req.CrashCash.IsNegative() {
		return fmt.Errorf("%w: negative crashcash redemption", ErrValidation)
	}
	if req.Address.Email == "" || req.Address.Line1 == "" {
		return fmt.Errorf("%w: incomplete delivery address", ErrValidation)
	}
	return nil
}
