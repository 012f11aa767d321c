package repository

import "errors"

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrShipmentNotFound = errors.New("shipment not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrCouponNotFound   = errors.New("coupon not found")
	ErrRuleNotFound     = errors.New("charge rule not found")
	ErrUserNotFound     = errors.New("user not found")
)
