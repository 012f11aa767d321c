package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/example/crashkart/pkg/models"
)

// OrderRepository persists orders and shipments. Every write is a single
// atomic row update; readers may see pre- or post-transition rows but never
// a half-applied one.
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) FindOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Preload("Shipments").Where("id = ?", id).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("find order: %w", err)
	}
	return &order, nil
}

// CreateOrder inserts the order row and its shipments in one transaction.
func (r *OrderRepository) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// UpdateOrder writes the mutable order fields as one row update.
func (r *OrderRepository) UpdateOrder(ctx context.Context, order *models.Order) error {
	updates := map[string]interface{}{
		"status":     order.Status,
		"paid":       order.Paid,
		"updated_at": order.UpdatedAt,
	}
	res := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update order: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func patchUpdates(patch models.ShipmentPatch) map[string]interface{} {
	updates := map[string]interface{}{
		"status":     patch.Status,
		"updated_at": patch.UpdatedAt,
	}
	if patch.TrackingNumber != nil {
		updates["tracking_number"] = *patch.TrackingNumber
	}
	if patch.EstimatedDelivery != nil {
		updates["estimated_delivery"] = *patch.EstimatedDelivery
	}
	if patch.DeliveredAt != nil {
		updates["delivered_at"] = *patch.DeliveredAt
	}
	return updates
}

func (r *OrderRepository) UpdateShipmentsByOrderID(ctx context.Context, orderID string, patch models.ShipmentPatch) error {
	res := r.db.WithContext(ctx).Model(&models.Shipment{}).
		Where("order_id = ?", orderID).
		Updates(patchUpdates(patch))
	if res.Error != nil {
		return fmt.Errorf("update shipments: %w", res.Error)
	}
	return nil
}

func (r *OrderRepository) UpdateShipmentByID(ctx context.Context, shipmentID string, patch models.ShipmentPatch) error {
	res := r.db.WithContext(ctx).Model(&models.Shipment{}).
		Where("id = ?", shipmentID).
		Updates(patchUpdates(patch))
	if res.Error != nil {
		return fmt.Errorf("update shipment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrShipmentNotFound
	}
	return nil
}

// ListOrdersByUser pages a user's orders, newest first.
func (r *OrderRepository) ListOrdersByUser(ctx context.Context, userID string, page, pageSize int) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	offset := (page - 1) * pageSize
	err := query.Preload("Shipments").
		Order("created_at DESC").
		Offset(offset).Limit(pageSize).
		Find(&orders).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}
