// Package notify is the boundary between order lifecycle transitions and
// whatever actually delivers customer notifications. The core only requests
// a dispatch; delivery transport, templates and retries live behind Sender.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/crashkart/pkg/models"
)

// Kind names the notification being requested.
type Kind string

const (
	KindOrderConfirmed Kind = "order_confirmed"
	KindStatusChanged  Kind = "status_changed"
	KindAbandonedCart  Kind = "abandoned_cart"
	KindPriceDrop      Kind = "price_drop"
	KindBackInStock    Kind = "back_in_stock"
)

// ItemSnapshot is one order line as it should appear in a notification.
type ItemSnapshot struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// OrderSnapshot is the frozen view of an order attached to a dispatch
// request. It is a copy, not a live reference; the order may move on while
// the notification is in flight.
type OrderSnapshot struct {
	OrderID  string          `json:"order_id"`
	Status   models.Status   `json:"status"`
	Total    decimal.Decimal `json:"total"`
	Items    []ItemSnapshot  `json:"items"`
	PlacedAt time.Time       `json:"placed_at"`
}

// Snapshot freezes an order for dispatch.
func Snapshot(o models.Order) OrderSnapshot {
	snap := OrderSnapshot{
		OrderID:  o.ID,
		Status:   o.Status,
		Total:    o.Total,
		PlacedAt: o.CreatedAt,
	}
	for _, s := range o.Shipments {
		snap.Items = append(snap.Items, ItemSnapshot{
			Name:     s.ProductName,
			Quantity: s.Quantity,
			Price:    s.Price,
		})
	}
	return snap
}

// CartSnapshot freezes an abandoned cart for a reminder dispatch. The
// snapshot shape is shared with order notifications; only the identifying
// fields are populated.
func CartSnapshot(c models.Cart) OrderSnapshot {
	return OrderSnapshot{
		OrderID:  c.ID,
		Total:    c.Subtotal,
		PlacedAt: c.UpdatedAt,
	}
}

// ProductSnapshot freezes a product line for a price-drop or restock alert.
func ProductSnapshot(p models.Product) OrderSnapshot {
	return OrderSnapshot{
		Items: []ItemSnapshot{{Name: p.Name, Quantity: 1, Price: p.Price}},
	}
}

// DispatchError is a transport failure from the notification collaborator.
// Callers in the order lifecycle log it and move on; it never rolls back
// the transition that triggered it.
type DispatchError struct {
	Kind Kind
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %v", e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Dispatcher requests a notification. Implementations must not block the
// caller on delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind Kind, snap OrderSnapshot, recipient string) error
}

// Sender is the delivery transport behind a Dispatcher (SMTP, provider API).
type Sender interface {
	Send(ctx context.Context, kind Kind, snap OrderSnapshot, recipient string) error
}
