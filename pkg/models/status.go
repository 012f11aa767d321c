package models

// Status is the order/shipment lifecycle status. Values are stored and
// exchanged as-is, case-sensitive.
type Status string

const (
	StatusPaymentPending  Status = "PAYMENT_PENDING"
	StatusOrderPlaced     Status = "ORDER_PLACED"
	StatusProcessing      Status = "PROCESSING"
	StatusShipped         Status = "SHIPPED"
	StatusDelivered       Status = "DELIVERED"
	StatusCancelled       Status = "CANCELLED"
	StatusReturnAccepted  Status = "RETURN_ACCEPTED"
	StatusReturnPickedUp  Status = "RETURN_PICKED_UP"
	StatusRefundCompleted Status = "REFUND_COMPLETED"
)

// AllStatuses lists every recognized status value.
var AllStatuses = []Status{
	StatusPaymentPending,
	StatusOrderPlaced,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
	StatusReturnAccepted,
	StatusReturnPickedUp,
	StatusRefundCompleted,
}

// Valid reports whether s is a recognized status value.
func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusRefundCompleted
}
