package fulfillment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/crashkart/pkg/models"
	"github.com/example/crashkart/pkg/notify"
	"github.com/example/crashkart/pkg/repository"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type fakeStore struct {
	orders map[string]*models.Order
}

func newFakeStore(orders ...*models.Order) *fakeStore {
	s := &fakeStore{orders: make(map[string]*models.Order)}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *fakeStore) FindOrderByID(_ context.Context, id string) (*models.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	cp.Shipments = append([]models.Shipment(nil), o.Shipments...)
	return &cp, nil
}

func (s *fakeStore) UpdateOrder(_ context.Context, order *models.Order) error {
	stored, ok := s.orders[order.ID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	stored.Status = order.Status
	stored.UpdatedAt = order.UpdatedAt
	return nil
}

func (s *fakeStore) UpdateShipmentsByOrderID(_ context.Context, orderID string, patch models.ShipmentPatch) error {
	o, ok := s.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	for i := range o.Shipments {
		applyTo(&o.Shipments[i], patch)
	}
	return nil
}

func (s *fakeStore) UpdateShipmentByID(_ context.Context, shipmentID string, patch models.ShipmentPatch) error {
	for _, o := range s.orders {
		for i := range o.Shipments {
			if o.Shipments[i].ID == shipmentID {
				applyTo(&o.Shipments[i], patch)
				return nil
			}
		}
	}
	return repository.ErrShipmentNotFound
}

func applyTo(sh *models.Shipment, patch models.ShipmentPatch) {
	sh.Status = patch.Status
	sh.UpdatedAt = patch.UpdatedAt
	if patch.TrackingNumber != nil {
		sh.TrackingNumber = *patch.TrackingNumber
	}
	if patch.EstimatedDelivery != nil {
		sh.EstimatedDelivery = patch.EstimatedDelivery
	}
	if patch.DeliveredAt != nil {
		sh.DeliveredAt = patch.DeliveredAt
	}
}

type fakeDispatcher struct {
	calls []notify.Kind
	fail  bool
}

func (d *fakeDispatcher) Dispatch(_ context.Context, kind notify.Kind, _ notify.OrderSnapshot, _ string) error {
	d.calls = append(d.calls, kind)
	if d.fail {
		return &notify.DispatchError{Kind: kind, Err: errors.New("smtp down")}
	}
	return nil
}

func testOrder(status models.Status, shipments ...models.Shipment) *models.Order {
	return &models.Order{
		ID:        "ord-1",
		UserID:    "u-1",
		Status:    status,
		Total:     decimal.RequireFromString("500"),
		Shipments: shipments,
		Address:   models.Address{Email: "buyer@example.com"},
	}
}

func shipment(id string, status models.Status) models.Shipment {
	return models.Shipment{ID: id, OrderID: "ord-1", ProductName: "widget", Quantity: 1, Status: status}
}

func newTestService(store OrderStore, disp notify.Dispatcher) *Service {
	return NewService(store, disp, nil, nil, nil, zap.NewNop(), fixedClock)
}

func TestUpdateStatusFansOutToAllShipments(t *testing.T) {
	store := newFakeStore(testOrder(models.StatusOrderPlaced,
		shipment("sh-1", models.StatusOrderPlaced),
		shipment("sh-2", models.StatusOrderPlaced),
	))
	svc := newTestService(store, &fakeDispatcher{})

	updated, err := svc.UpdateStatus(context.Background(), "ord-1", models.StatusProcessing, UpdateOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.StatusProcessing, updated.Status)
	for _, sh := range store.orders["ord-1"].Shipments {
		assert.Equal(t, models.StatusProcessing, sh.Status)
	}
	assert.Equal(t, fixedNow, store.orders["ord-1"].UpdatedAt)
}

func TestUpdateStatusRejectsUnknownValue(t *testing.T) {
	store := newFakeStore(testOrder(models.StatusOrderPlaced))
	svc := newTestService(store, &fakeDispatcher{})

	_, err := svc.UpdateStatus(context.Background(), "ord-1", "TELEPORTED", UpdateOptions{})
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, models.StatusOrderPlaced, store.orders["ord-1"].Status, "no state change on rejection")
}

func TestUpdateStatusRejectsUnknownOrder(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeDispatcher{})

	_, err := svc.UpdateStatus(context.Background(), "missing", models.StatusProcessing, UpdateOptions{})
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)
}

func TestUpdateStatusRejectsBackwardTransition(t *testing.T) {
	store := newFakeStore(testOrder(models.StatusDelivered,
		shipment("sh-1", models.StatusDelivered),
	))
	svc := newTestService(store, &fakeDispatcher{})

	_, err := svc.UpdateStatus(context.Background(), "ord-1", models.StatusProcessing, UpdateOptions{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.StatusDelivered, store.orders["ord-1"].Status)
}

func TestUpdateStatusFromTerminalRejected(t *testing.T) {
	for _, terminal := range []models.Status{models.StatusCancelled, models.StatusRefundCompleted} {
		store := newFakeStore(testOrder(terminal))
		svc := newTestService(store, &fakeDispatcher{})

		_, err := svc.UpdateStatus(context.Background(), "ord-1", models.StatusOrderPlaced, UpdateOptions{})
		assert.ErrorIs(t, err, ErrInvalidTransition, "from %s", terminal)
	}
}

func TestDeliveredStampsDeliveredAt(t *testing.T) {
	store := newFakeStore(testOrder(models.StatusShipped,
		shipment("sh-1", models.StatusShipped),
	))
	svc := newTestService(store, &fakeDispatcher{})

	updated, err := svc.UpdateStatus(context.Background(), "ord-1", models.StatusDelivered, UpdateOptions{})
	require.NoError(t, err)

	require.NotNil(t, updated.Shipments[0].DeliveredAt)
	assert.Equal(t, fixedNow, *updated.Shipments[0].DeliveredAt)
}

func TestTargetedShipmentUpdateLeavesSiblingsAlone(t *testing.T) {
	store := newFakeStore(testOrder(models.StatusProcessing,
		shipment("sh-1", models.StatusProcessing),
		shipment("sh-2", models.StatusProcessing),
	))
	svc := newTestService(store, &fakeDispatcher{})

	eta := fixedNow.AddDate(0, 0, 3)
	_, err := svc.UpdateStatus(context.Background(), "ord-1", models.StatusShipped, UpdateOptions{
		ShipmentID:        "sh-1",
		TrackingNumber:    "TRK-42",
		EstimatedDelivery: &eta,
	})
	require.NoError(t, err)

	stored := store.orders["ord-1"]
	assert.Equal(t, models.StatusShipped, stored.Shipments[0].Status)
	assert.Equal(t, "TRK-42", stored.Shipments[0].TrackingNumber)
	assert.Equal(t, models.StatusProcessing, stored.Shipments[1].Status, "sibling untouched")
	assert.Equal(t, models.StatusProcessing, stored.Status, "order status untouched on targeted update")
	assert.Equal(t, fixedNow, stored.UpdatedAt, "order touch timestamp still moves")
}

func TestTargetedUpdateUnknownShipment(t *testing.T) {
	store := newFakeStore(testOrder(models.StatusProcessing,
		shipment("sh-1", models.StatusProcessing),
	))
	svc := newTestService(store, &fakeDispatcher{})

	_, err := svc.UpdateStatus(context.Background(), "ord-1", models.StatusShipped, UpdateOptions{ShipmentID: "sh-9"})
	assert.ErrorIs(t, err, repository.ErrShipmentNotFound)
}

func TestDispatchFailureDoesNotRollBackTransition(t *testing.T) {
	store := newFakeStore(testOrder(models.StatusOrderPlaced,
		shipment("sh-1", models.StatusOrderPlaced),
	))
	disp := &fakeDispatcher{fail: true}
	svc := newTestService(store, disp)

	updated, err := svc.UpdateStatus(context.Background(), "ord-1", models.StatusProcessing, UpdateOptions{})
	require.NoError(t, err, "dispatch failure is non-fatal")
	assert.Equal(t, models.StatusProcessing, updated.Status)
	assert.Equal(t, []notify.Kind{notify.KindStatusChanged}, disp.calls)
}

func TestUpdateStatusBulkReportsPerOrder(t *testing.T) {
	ok := testOrder(models.StatusOrderPlaced, shipment("sh-1", models.StatusOrderPlaced))
	stuck := &models.Order{ID: "ord-2", Status: models.StatusDelivered, Address: models.Address{Email: "x@example.com"}}
	store := newFakeStore(ok, stuck)
	svc := newTestService(store, &fakeDispatcher{})

	report := svc.UpdateStatusBulk(context.Background(), []string{"ord-1", "ord-2", "ord-9"}, models.StatusProcessing)

	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 2, report.Failed)
	require.Len(t, report.Results, 3)
	assert.NoError(t, report.Results[0].Err)
	assert.ErrorIs(t, report.Results[1].Err, ErrInvalidTransition)
	assert.ErrorIs(t, report.Results[2].Err, repository.ErrOrderNotFound)
	assert.Equal(t, models.StatusProcessing, store.orders["ord-1"].Status, "earlier success not rolled back by later failure")
}

func TestReconcileRollsUpLeastAdvancedShipment(t *testing.T) {
	store := newFakeStore(testOrder(models.StatusProcessing,
		shipment("sh-1", models.StatusDelivered),
		shipment("sh-2", models.StatusShipped),
	))
	svc := newTestService(store, &fakeDispatcher{})

	updated, err := svc.Reconcile(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusShipped, updated.Status)
}

func TestReconcileNoopWhenAlreadyAligned(t *testing.T) {
	store := newFakeStore(testOrder(models.StatusShipped,
		shipment("sh-1", models.StatusShipped),
	))
	disp := &fakeDispatcher{}
	svc := newTestService(store, disp)

	_, err := svc.Reconcile(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Empty(t, disp.calls, "no side effects without a transition")
}
