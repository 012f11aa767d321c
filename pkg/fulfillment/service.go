package fulfillment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/crashkart/pkg/models"
	"github.com/example/crashkart/pkg/notify"
	"github.com/example/crashkart/pkg/repository"
)

// OrderStore is the persistence collaborator. Implementations guarantee
// atomic per-row updates; the service issues one logical update per
// transition and never a reader-visible sequence of partial writes.
type OrderStore interface {
	FindOrderByID(ctx context.Context, id string) (*models.Order, error)
	UpdateOrder(ctx context.Context, order *models.Order) error
	UpdateShipmentsByOrderID(ctx context.Context, orderID string, patch models.ShipmentPatch) error
	UpdateShipmentByID(ctx context.Context, shipmentID string, patch models.ShipmentPatch) error
}

// EventPublisher pushes lifecycle events to the event bus.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, order models.Order, event string) error
}

// AuditLogger records transitions in the append-only audit trail.
type AuditLogger interface {
	LogTransition(ctx context.Context, orderID, shipmentID string, from, to models.Status) error
}

// SummaryCache invalidates cached order summaries after a write.
type SummaryCache interface {
	InvalidateOrder(ctx context.Context, orderID string) error
}

// Clock is injectable so tests can pin transition timestamps.
type Clock func() time.Time

// UpdateOptions narrows a status update. A ShipmentID targets one line of a
// multi-item order and leaves the order's own status untouched; without it
// the status fans out to the order and every shipment under it.
type UpdateOptions struct {
	ShipmentID        string
	TrackingNumber    string
	EstimatedDelivery *time.Time
}

// Service applies status transitions and fans out their side effects.
type Service struct {
	store      OrderStore
	dispatcher notify.Dispatcher
	publisher  EventPublisher
	audit      AuditLogger
	cache      SummaryCache
	logger     *zap.Logger
	clock      Clock
}

// NewService wires the state machine. publisher, audit and cache may be nil
// when the corresponding collaborator is not deployed.
func NewService(store OrderStore, dispatcher notify.Dispatcher, publisher EventPublisher, audit AuditLogger, cache SummaryCache, logger *zap.Logger, clock Clock) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		publisher:  publisher,
		audit:      audit,
		cache:      cache,
		logger:     logger,
		clock:      clock,
	}
}

// UpdateStatus applies newStatus to an order, or to one shipment of it when
// opts.ShipmentID is set. Validation and transition checks happen before
// any write; notification, event and audit side effects happen after the
// write and never roll it back.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, newStatus models.Status, opts UpdateOptions) (*models.Order, error) {
	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}

	order, err := s.store.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	var from models.Status

	if opts.ShipmentID == "" {
		from = order.Status
		if !CanTransition(from, newStatus) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, newStatus)
		}

		patch := s.patchFor(newStatus, opts, now)
		if err := s.store.UpdateShipmentsByOrderID(ctx, order.ID, patch); err != nil {
			return nil, fmt.Errorf("update shipments: %w", err)
		}

		order.Status = newStatus
		order.UpdatedAt = now
		if err := s.store.UpdateOrder(ctx, order); err != nil {
			return nil, fmt.Errorf("update order: %w", err)
		}
		applyPatch(order.Shipments, patch, "")
	} else {
		shipment := findShipment(order, opts.ShipmentID)
		if shipment == nil {
			return nil, fmt.Errorf("shipment %s in order %s: %w", opts.ShipmentID, orderID, repository.ErrShipmentNotFound)
		}
		from = shipment.Status
		if !CanTransition(from, newStatus) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, newStatus)
		}

		patch := s.patchFor(newStatus, opts, now)
		if err := s.store.UpdateShipmentByID(ctx, opts.ShipmentID, patch); err != nil {
			return nil, fmt.Errorf("update shipment: %w", err)
		}

		// The order's own status is left alone on a targeted update; only
		// the touch timestamp moves. Callers reconcile explicitly.
		order.UpdatedAt = now
		if err := s.store.UpdateOrder(ctx, order); err != nil {
			return nil, fmt.Errorf("update order: %w", err)
		}
		applyPatch(order.Shipments, patch, opts.ShipmentID)
	}

	s.fanOut(ctx, order, opts.ShipmentID, from, newStatus)
	return order, nil
}

// BulkResult is the outcome of one order within a bulk update.
type BulkResult struct {
	OrderID string `json:"order_id"`
	Err     error  `json:"-"`
	Error   string `json:"error,omitempty"`
}

// BulkReport is the per-order outcome of a bulk status update. The batch is
// not transactional: a failure partway through leaves earlier updates
// applied.
type BulkReport struct {
	Updated int          `json:"updated"`
	Failed  int          `json:"failed"`
	Results []BulkResult `json:"results"`
}

// UpdateStatusBulk applies newStatus to each order independently and
// reports per-order success or failure.
func (s *Service) UpdateStatusBulk(ctx context.Context, orderIDs []string, newStatus models.Status) BulkReport {
	report := BulkReport{}
	for _, id := range orderIDs {
		res := BulkResult{OrderID: id}
		if _, err := s.UpdateStatus(ctx, id, newStatus, UpdateOptions{}); err != nil {
			res.Err = err
			res.Error = err.Error()
			report.Failed++
		} else {
			report.Updated++
		}
		report.Results = append(report.Results, res)
	}
	return report
}

// Reconcile rolls the order's top-level status up from its shipments. The
// roll-up is never automatic on targeted shipment updates; admin flows call
// this once all lines of a multi-item order have moved.
func (s *Service) Reconcile(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.store.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	agg := AggregateStatus(order.Shipments)
	if agg == order.Status {
		return order, nil
	}

	from := order.Status
	order.Status = agg
	order.UpdatedAt = s.clock()
	if err := s.store.UpdateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}

	s.fanOut(ctx, order, "", from, agg)
	return order, nil
}

func (s *Service) patchFor(newStatus models.Status, opts UpdateOptions, now time.Time) models.ShipmentPatch {
	patch := models.ShipmentPatch{Status: newStatus, UpdatedAt: now}
	if opts.TrackingNumber != "" {
		patch.TrackingNumber = &opts.TrackingNumber
	}
	if opts.EstimatedDelivery != nil {
		patch.EstimatedDelivery = opts.EstimatedDelivery
	}
	if newStatus == models.StatusDelivered {
		patch.DeliveredAt = &now
	}
	return patch
}

// fanOut emits the post-transition side effects. Every one of them is
// best-effort: a failure is logged and swallowed, the transition stands.
func (s *Service) fanOut(ctx context.Context, order *models.Order, shipmentID string, from, to models.Status) {
	if s.audit != nil {
		go func(o models.Order) {
			if err := s.audit.LogTransition(context.Background(), o.ID, shipmentID, from, to); err != nil {
				s.logger.Warn("audit log failed", zap.String("order_id", o.ID), zap.Error(err))
			}
		}(*order)
	}

	if s.publisher != nil {
		event := "status_changed"
		if to == models.StatusCancelled {
			event = "cancelled"
		}
		if err := s.publisher.PublishOrderEvent(ctx, *order, event); err != nil {
			s.logger.Warn("event publish failed", zap.String("order_id", order.ID), zap.Error(err))
		}
	}

	if s.cache != nil {
		if err := s.cache.InvalidateOrder(ctx, order.ID); err != nil {
			s.logger.Warn("cache invalidation failed", zap.String("order_id", order.ID), zap.Error(err))
		}
	}

	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, notify.KindStatusChanged, notify.Snapshot(*order), order.Address.Email); err != nil {
			s.logger.Warn("notification dispatch failed",
				zap.String("order_id", order.ID),
				zap.String("status", string(to)),
				zap.Error(err))
		}
	}
}

func findShipment(order *models.Order, shipmentID string) *models.Shipment {
	for i := range order.Shipments {
		if order.Shipments[i].ID == shipmentID {
			return &order.Shipments[i]
		}
	}
	return nil
}

// applyPatch mirrors the persisted patch onto the in-memory shipments so
// the returned order reflects what was written. Empty shipmentID means all.
func applyPatch(shipments []models.Shipment, patch models.ShipmentPatch, shipmentID string) {
	for i := range shipments {
		if shipmentID != "" && shipments[i].ID != shipmentID {
			continue
		}
		shipments[i].Status = patch.Status
		shipments[i].UpdatedAt = patch.UpdatedAt
		if patch.TrackingNumber != nil {
			shipments[i].TrackingNumber = *patch.TrackingNumber
		}
		if patch.EstimatedDelivery != nil {
			shipments[i].EstimatedDelivery = patch.EstimatedDelivery
		}
		if patch.DeliveredAt != nil {
			shipments[i].DeliveredAt = patch.DeliveredAt
		}
	}
}
