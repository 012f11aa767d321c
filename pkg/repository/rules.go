package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/example/crashkart/pkg/models"
)

// CatalogRepository persists the checkout-time reference data: charge
// rules, coupons, products and users.
type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) FindChargeRules(ctx context.Context) ([]models.ChargeRule, error) {
	var rules []models.ChargeRule
	if err := r.db.WithContext(ctx).Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("find charge rules: %w", err)
	}
	return rules, nil
}

func (r *CatalogRepository) CreateChargeRule(ctx context.Context, rule *models.ChargeRule) error {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("create charge rule: %w", err)
	}
	return nil
}

func (r *CatalogRepository) UpdateChargeRule(ctx context.Context, rule *models.ChargeRule) error {
	res := r.db.WithContext(ctx).Model(&models.ChargeRule{}).Where("id = ?", rule.ID).Updates(map[string]interface{}{
		"scope":           rule.Scope,
		"target":          rule.Target,
		"shipping_fee":    rule.ShippingFee,
		"convenience_fee": rule.ConvenienceFee,
		"platform_fee":    rule.PlatformFee,
	})
	if res.Error != nil {
		return fmt.Errorf("update charge rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *CatalogRepository) DeleteChargeRule(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ChargeRule{})
	if res.Error != nil {
		return fmt.Errorf("delete charge rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// FindCoupon loads an active, unexpired coupon by code.
func (r *CatalogRepository) FindCoupon(ctx context.Context, code string, now time.Time) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).Where("code = ? AND active = ?", code, true).First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("find coupon: %w", err)
	}
	if coupon.ExpiresAt != nil && coupon.ExpiresAt.Before(now) {
		return nil, ErrCouponNotFound
	}
	return &coupon, nil
}

func (r *CatalogRepository) CreateCoupon(ctx context.Context, coupon *models.Coupon) error {
	if err := r.db.WithContext(ctx).Create(coupon).Error; err != nil {
		return fmt.Errorf("create coupon: %w", err)
	}
	return nil
}

func (r *CatalogRepository) DeleteCoupon(ctx context.Context, code string) error {
	res := r.db.WithContext(ctx).Where("code = ?", code).Delete(&models.Coupon{})
	if res.Error != nil {
		return fmt.Errorf("delete coupon: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrCouponNotFound
	}
	return nil
}

func (r *CatalogRepository) FindProduct(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("find product: %w", err)
	}
	return &product, nil
}

func (r *CatalogRepository) FindUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// DebitCrashCash burns redeemed loyalty balance atomically; the guard in
// the WHERE clause refuses a debit the balance cannot cover.
func (r *CatalogRepository) DebitCrashCash(ctx context.Context, userID string, amount string) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND crash_cash_balance >= ?", userID, amount).
		Update("crash_cash_balance", gorm.Expr("crash_cash_balance - ?", amount))
	if res.Error != nil {
		return fmt.Errorf("debit crashcash: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
