package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/example/crashkart/pkg/models"
)

// CartRepository feeds the scheduled batch jobs: abandoned carts and armed
// price/restock alerts.
type CartRepository struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) *CartRepository {
	return &CartRepository{db: db}
}

// FindAbandonedCarts returns up to limit carts idle since before cutoff
// that are still under the reminder cap and were not reminded after
// remindedBefore. The limit bounds one batch invocation.
func (r *CartRepository) FindAbandonedCarts(ctx context.Context, cutoff, remindedBefore time.Time, maxReminders, limit int) ([]models.Cart, error) {
	var carts []models.Cart
	err := r.db.WithContext(ctx).
		Where("checked_out = ?", false).
		Where("updated_at < ?", cutoff).
		Where("reminders_sent < ?", maxReminders).
		Where("last_reminder_at IS NULL OR last_reminder_at < ?", remindedBefore).
		Order("updated_at").
		Limit(limit).
		Find(&carts).Error
	if err != nil {
		return nil, fmt.Errorf("find abandoned carts: %w", err)
	}
	return carts, nil
}

// MarkCartReminded bumps the reminder counter in the same row update that
// records the send time, so a crashed batch cannot re-mail the cart beyond
// its cadence on the next run. The counter guard makes the mark
// first-writer-wins.
func (r *CartRepository) MarkCartReminded(ctx context.Context, cartID string, remindersSeen int, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Cart{}).
		Where("id = ? AND reminders_sent = ?", cartID, remindersSeen).
		Updates(map[string]interface{}{
			"reminders_sent":   gorm.Expr("reminders_sent + 1"),
			"last_reminder_at": at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("mark cart reminded: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// FindTriggeredAlerts returns up to limit armed alerts whose product now
// satisfies the alert condition.
func (r *CartRepository) FindTriggeredAlerts(ctx context.Context, kind models.AlertKind, limit int) ([]models.PriceAlert, error) {
	query := r.db.WithContext(ctx).
		Model(&models.PriceAlert{}).
		Joins("JOIN products ON products.id = price_alerts.product_id").
		Where("price_alerts.pending = ?", true).
		Where("price_alerts.kind = ?", kind)

	switch kind {
	case models.AlertPriceDrop:
		query = query.Where("products.price <= price_alerts.target_price")
	case models.AlertRestock:
		query = query.Where("products.stock > 0")
	}

	var alerts []models.PriceAlert
	if err := query.Order("price_alerts.created_at").Limit(limit).Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("find triggered alerts: %w", err)
	}
	return alerts, nil
}

// DisarmAlert clears the pending flag. It returns false when another run
// already cleared it, which is the idempotent-skip signal for re-invoked
// batches.
func (r *CartRepository) DisarmAlert(ctx context.Context, alertID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.PriceAlert{}).
		Where("id = ? AND pending = ?", alertID, true).
		Updates(map[string]interface{}{
			"pending":     false,
			"notified_at": at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("disarm alert: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
