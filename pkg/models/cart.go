package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cart tracks an open (not yet checked out) cart for the abandoned-cart
// reminder job. RemindersSent and LastReminderAt gate the reminder cadence
// so a re-invoked batch skips carts already handled this cycle.
type Cart struct {
	ID             string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID         string          `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Email          string          `gorm:"type:varchar(128)" json:"email"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(12,2)" json:"subtotal"`
	ItemCount      int             `json:"item_count"`
	CheckedOut     bool            `gorm:"index" json:"checked_out"`
	RemindersSent  int             `json:"reminders_sent"`
	LastReminderAt *time.Time      `json:"last_reminder_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `gorm:"index" json:"updated_at"`
}

func (Cart) TableName() string {
	return "carts"
}

type AlertKind string

const (
	AlertPriceDrop AlertKind = "price_drop"
	AlertRestock   AlertKind = "restock"
)

// PriceAlert is a customer's standing request to be told when a product's
// price drops below a target or when it is back in stock. Pending is
// cleared when the alert is sent; the job clears it before dispatch so a
// crash mid-batch re-skips the row instead of re-mailing it.
type PriceAlert struct {
	ID          string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID      string           `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Email       string           `gorm:"type:varchar(128)" json:"email"`
	ProductID   string           `gorm:"type:varchar(36);not null;index" json:"product_id"`
	Kind        AlertKind        `gorm:"type:varchar(16);not null" json:"kind"`
	TargetPrice *decimal.Decimal `gorm:"type:decimal(12,2)" json:"target_price,omitempty"` // price_drop only
	Pending     bool             `gorm:"index" json:"pending"`
	NotifiedAt  *time.Time       `json:"notified_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (PriceAlert) TableName() string {
	return "price_alerts"
}
