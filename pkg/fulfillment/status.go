// Package fulfillment owns the order/shipment lifecycle: which status
// transitions are permitted, how a transition is applied to an order and
// its shipments, and which side effects it fans out.
package fulfillment

import (
	"errors"

	"github.com/example/crashkart/pkg/models"
)

var (
	// ErrInvalidStatus means the requested status is not a recognized value.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidTransition means the requested status is recognized but not
	// reachable from the current one.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// transitions is the permitted edge set. The happy path is strictly
// forward, cancellation is reachable from every non-terminal state, and the
// return branch only opens after delivery.
var transitions = map[models.Status][]models.Status{
	models.StatusPaymentPending: {models.StatusOrderPlaced, models.StatusCancelled},
	models.StatusOrderPlaced:    {models.StatusProcessing, models.StatusCancelled},
	models.StatusProcessing:     {models.StatusShipped, models.StatusCancelled},
	models.StatusShipped:        {models.StatusDelivered, models.StatusCancelled},
	models.StatusDelivered:      {models.StatusReturnAccepted},
	models.StatusReturnAccepted: {models.StatusReturnPickedUp},
	models.StatusReturnPickedUp: {models.StatusRefundCompleted},
}

// CanTransition reports whether from -> to is a permitted transition.
// Re-applying the current status is permitted and treated as a no-op
// transition so bulk fan-outs stay idempotent.
func CanTransition(from, to models.Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// statusRank orders the statuses along the fulfillment progression, used
// when rolling an order's status up from its shipments.
var statusRank = map[models.Status]int{
	models.StatusPaymentPending:  0,
	models.StatusOrderPlaced:     1,
	models.StatusProcessing:      2,
	models.StatusShipped:         3,
	models.StatusDelivered:       4,
	models.StatusReturnAccepted:  5,
	models.StatusReturnPickedUp:  6,
	models.StatusRefundCompleted: 7,
}

// AggregateStatus rolls a set of shipment statuses up to an order status:
// the least-advanced non-cancelled shipment wins. An order whose shipments
// are all cancelled is cancelled.
func AggregateStatus(shipments []models.Shipment) models.Status {
	least := models.Status("")
	allCancelled := len(shipments) > 0
	for _, s := range shipments {
		if s.Status == models.StatusCancelled {
			continue
		}
		allCancelled = false
		if least == "" || statusRank[s.Status] < statusRank[least] {
			least = s.Status
		}
	}
	if allCancelled {
		return models.StatusCancelled
	}
	if least == "" {
		return models.StatusOrderPlaced
	}
	return least
}
