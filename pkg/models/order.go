package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCOD     PaymentMethod = "COD"
	PaymentGateway PaymentMethod = "GATEWAY"
)

type Order struct {
	ID            string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID        string          `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Status        Status          `gorm:"type:varchar(32);default:'ORDER_PLACED';index" json:"status"`
	PaymentMethod PaymentMethod   `gorm:"type:varchar(16)" json:"payment_method"`
	Paid          bool            `json:"paid"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(12,2)" json:"subtotal"`
	Total         decimal.Decimal `gorm:"type:decimal(12,2)" json:"total"`
	CouponCode    string          `gorm:"type:varchar(64)" json:"coupon_code,omitempty"`
	Notes         string          `gorm:"type:text" json:"notes"` // JSON blob, see OrderNotes
	Address       Address         `gorm:"embedded;embeddedPrefix:ship_" json:"address"`
	Shipments     []Shipment      `gorm:"foreignKey:OrderID" json:"shipments,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     *time.Time      `gorm:"index" json:"-"`
}

func (Order) TableName() string {
	return "orders"
}

// Address is the delivery address snapshot taken at checkout. It is copied
// into the order row and never follows later edits to the user's saved
// addresses.
type Address struct {
	Name     string `gorm:"type:varchar(128)" json:"name"`
	Phone    string `gorm:"type:varchar(32)" json:"phone"`
	Line1    string `gorm:"type:varchar(256)" json:"line1"`
	Line2    string `gorm:"type:varchar(256)" json:"line2,omitempty"`
	City     string `gorm:"type:varchar(64)" json:"city"`
	State    string `gorm:"type:varchar(64)" json:"state"`
	Postcode string `gorm:"type:varchar(16)" json:"postcode"`
	Email    string `gorm:"type:varchar(128)" json:"email"`
}

// Shipment is one product line of an order, trackable independently of its
// sibling lines.
type Shipment struct {
	ID                string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderID           string           `gorm:"type:varchar(36);not null;index" json:"order_id"`
	ProductID         string           `gorm:"type:varchar(36);not null" json:"product_id"`
	ProductName       string           `gorm:"type:varchar(256)" json:"product_name"`
	Quantity          int              `gorm:"not null" json:"quantity"`
	Price             decimal.Decimal  `gorm:"type:decimal(12,2)" json:"price"`
	Status            Status           `gorm:"type:varchar(32);default:'ORDER_PLACED'" json:"status"`
	TrackingNumber    string           `gorm:"type:varchar(64)" json:"tracking_number,omitempty"`
	EstimatedDelivery *time.Time       `json:"estimated_delivery,omitempty"`
	DeliveredAt       *time.Time       `json:"delivered_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func (Shipment) TableName() string {
	return "shipments"
}

// OrderNotes is the schema-flexible fee snapshot serialized into the order's
// notes column at checkout. Every field is optional: historical rows may
// carry any subset, and DeliveryCharge is the legacy name some rows use
// instead of ShippingFee.
type OrderNotes struct {
	Subtotal          *decimal.Decimal `json:"subtotal,omitempty"`
	DeliveryCharge    *decimal.Decimal `json:"deliveryCharge,omitempty"`
	ShippingFee       *decimal.Decimal `json:"shippingFee,omitempty"`
	ConvenienceFee    *decimal.Decimal `json:"convenienceFee,omitempty"`
	PlatformFee       *decimal.Decimal `json:"platformFee,omitempty"`
	CouponDiscount    *decimal.Decimal `json:"couponDiscount,omitempty"`
	CrashCashDiscount *decimal.Decimal `json:"crashCashDiscount,omitempty"`
}

// ParseNotes decodes the notes blob. A missing or malformed blob yields an
// empty OrderNotes rather than an error; invoice rendering must always have
// something to work with.
func (o *Order) ParseNotes() OrderNotes {
	var n OrderNotes
	if o.Notes == "" {
		return n
	}
	if err := json.Unmarshal([]byte(o.Notes), &n); err != nil {
		return OrderNotes{}
	}
	return n
}

// EncodeNotes serializes the fee snapshot into the notes column.
func (o *Order) EncodeNotes(n OrderNotes) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	o.Notes = string(data)
	return nil
}

// ShipmentPatch is the single logical write applied to shipment rows on a
// status transition. Nil fields are left untouched.
type ShipmentPatch struct {
	Status            Status
	TrackingNumber    *string
	EstimatedDelivery *time.Time
	DeliveredAt       *time.Time
	UpdatedAt         time.Time
}

// ItemsSubtotal sums price x quantity over the order's shipments.
func (o *Order) ItemsSubtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, s := range o.Shipments {
		sum = sum.Add(s.Price.Mul(decimal.NewFromInt(int64(s.Quantity))))
	}
	return sum
}
