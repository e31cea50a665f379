package service

import (
	"errors"

	"github.com/mmeshcher/storefront-promotions/internal/wheel"
)

// Доменные ошибки. Все они означают ошибку вызывающей стороны и не должны повторяться автоматически.
var (
	ErrInvalidProbabilitySum = wheel.ErrInvalidProbabilitySum
	ErrInvalidSegment        = wheel.ErrInvalidSegment
	ErrNoEligibleSegments    = wheel.ErrNoEligibleSegments
	ErrNoValidProbabilities  = wheel.ErrNoValidProbabilities

	ErrAlreadyUsed = errors.New("discount wheel already used")

	ErrNotFound      = errors.New("coupon not found")
	ErrExpired       = errors.New("coupon is not valid at this time")
	ErrLimitReached  = errors.New("coupon usage limit reached")
	ErrBelowMinimum  = errors.New("cart total is below the minimum purchase")
	ErrInvalidCoupon = errors.New("invalid coupon")
	ErrCouponExists  = errors.New("coupon already exists")

	ErrInvalidAmount   = errors.New("amount is out of range")
	ErrInvalidOrderRef = errors.New("invalid order reference")
	ErrAlreadyRedeemed = errors.New("order already has a redeemed coupon")
	ErrCouponChanged   = errors.New("coupon changed during redemption, retry")
)
