package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID           string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name         string          `gorm:"type:varchar(256);not null" json:"name"`
	Category     string          `gorm:"type:varchar(64);index" json:"category"`
	Price        decimal.Decimal `gorm:"type:decimal(12,2)" json:"price"`
	Stock        int             `json:"stock"`
	MaxCrashCash decimal.Decimal `gorm:"type:decimal(12,2)" json:"max_crashcash"` // max loyalty redeemable against this product
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}

// RuleScope says what a charge rule applies to.
type RuleScope string

const (
	ScopeAll      RuleScope = "all"
	ScopeCategory RuleScope = "category"
	ScopeProduct  RuleScope = "product"
)

// ChargeRule is an admin-configured fee policy. Target holds the category
// name or product ID for scoped rules and is empty for ScopeAll. Editing a
// rule never rewrites placed orders: the computed fees are snapshotted into
// the order's notes at checkout.
type ChargeRule struct {
	ID             string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Scope          RuleScope       `gorm:"type:varchar(16);not null;index" json:"scope"`
	Target         string          `gorm:"type:varchar(64);index" json:"target,omitempty"`
	ShippingFee    decimal.Decimal `gorm:"type:decimal(12,2)" json:"shipping_fee"`
	ConvenienceFee decimal.Decimal `gorm:"type:decimal(12,2)" json:"convenience_fee"`
	PlatformFee    decimal.Decimal `gorm:"type:decimal(12,2)" json:"platform_fee"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (ChargeRule) TableName() string {
	return "charge_rules"
}

type CouponType string

const (
	CouponPercentage   CouponType = "percentage"
	CouponFlat         CouponType = "flat"
	CouponFreeDelivery CouponType = "free-delivery"
)

type Coupon struct {
	Code          string           `gorm:"primaryKey;type:varchar(64)" json:"code"`
	Type          CouponType       `gorm:"type:varchar(16);not null" json:"type"`
	Discount      decimal.Decimal  `gorm:"type:decimal(12,2)" json:"discount"`
	MaxDiscount   *decimal.Decimal `gorm:"type:decimal(12,2)" json:"max_discount,omitempty"` // percentage type only
	MinOrderValue decimal.Decimal  `gorm:"type:decimal(12,2)" json:"min_order_value"`
	Active        bool             `gorm:"default:true" json:"active"`
	ExpiresAt     *time.Time       `json:"expires_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func (Coupon) TableName() string {
	return "coupons"
}
