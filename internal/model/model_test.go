package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCouponState(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	limit := 5

	base := func() Coupon {
		return Coupon{
			Code:       "SPIN10",
			IsActive:   true,
			ValidFrom:  now.Add(-time.Hour),
			ValidUntil: now.Add(time.Hour),
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Coupon)
		want   CouponState
	}{
		{
			name:   "active",
			mutate: func(c *Coupon) {},
			want:   CouponStateActive,
		},
		{
			name:   "inactive wins over everything",
			mutate: func(c *Coupon) { c.IsActive = false; c.ValidUntil = now.Add(-time.Minute) },
			want:   CouponStateInactive,
		},
		{
			name:   "pending",
			mutate: func(c *Coupon) { c.ValidFrom = now.Add(time.Minute) },
			want:   CouponStatePending,
		},
		{
			name:   "expired",
			mutate: func(c *Coupon) { c.ValidUntil = now.Add(-time.Minute) },
			want:   CouponStateExpired,
		},
		{
			name:   "exhausted",
			mutate: func(c *Coupon) { c.UsageLimit = &limit; c.UsedCount = 5 },
			want:   CouponStateExhausted,
		},
		{
			name:   "limit not reached",
			mutate: func(c *Coupon) { c.UsageLimit = &limit; c.UsedCount = 4 },
			want:   CouponStateActive,
		},
		{
			name:   "boundaries are inclusive",
			mutate: func(c *Coupon) { c.ValidFrom = now; c.ValidUntil = now },
			want:   CouponStateActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			assert.Equal(t, tt.want, c.State(now))
		})
	}
}

func TestCouponSummary_HidesCounters(t *testing.T) {
	limit := 3
	c := Coupon{
		Code:          "FLAT50",
		DiscountType:  DiscountTypeFixed,
		DiscountValue: 50,
		UsageLimit:    &limit,
		UsedCount:     2,
	}

	assert.Equal(t, CouponSummary{Code: "FLAT50", DiscountType: DiscountTypeFixed, DiscountValue: 50}, c.Summary())
}

func TestDiscountTypeValid(t *testing.T) {
	assert.True(t, DiscountTypePercentage.Valid())
	assert.True(t, DiscountTypeFixed.Valid())
	assert.False(t, DiscountType("bogo").Valid())
}
