// Package model содержит доменные сущности сервиса промо-акций.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Segment описывает один сектор колеса скидок.
// Пустая категория означает, что сектор участвует в розыгрыше для любой категории.
type Segment struct {
	Label       string  `json:"label"`
	Reward      string  `json:"reward"`
	CouponCode  string  `json:"couponCode"`
	Probability float64 `json:"probability"`
	Color       string  `json:"color"`
	Active      bool    `json:"active"`
	Category    string  `json:"category,omitempty"`
}

// WheelConfig описывает единственную в системе конфигурацию колеса скидок.
// Список идентичностей, уже крутивших колесо, хранится отдельно; SpinCount отражает его размер.
type WheelConfig struct {
	ID        uuid.UUID
	Segments  []Segment
	UpdatedBy string
	SpinCount int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DiscountType описывает способ расчёта скидки по купону.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// Valid сообщает, является ли тип скидки допустимым.
func (t DiscountType) Valid() bool {
	return t == DiscountTypePercentage || t == DiscountTypeFixed
}

// CouponState обозначает вычисляемое состояние купона на заданный момент времени.
type CouponState string

const (
	CouponStatePending   CouponState = "PENDING"
	CouponStateActive    CouponState = "ACTIVE"
	CouponStateExpired   CouponState = "EXPIRED"
	CouponStateExhausted CouponState = "EXHAUSTED"
	CouponStateInactive  CouponState = "INACTIVE"
)

// Coupon описывает купон и счётчик его использований.
type Coupon struct {
	ID            uuid.UUID
	Code          string
	DiscountType  DiscountType
	DiscountValue float64
	MinPurchase   float64
	MaxDiscount   *float64
	ValidFrom     time.Time
	ValidUntil    time.Time
	UsageLimit    *int
	UsedCount     int
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Exhausted сообщает, исчерпан ли лимит использований купона.
func (c *Coupon) Exhausted() bool {
	return c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit
}

// State возвращает состояние купона на момент now.
func (c *Coupon) State(now time.Time) CouponState {
	switch {
	case !c.IsActive:
		return CouponStateInactive
	case now.Before(c.ValidFrom):
		return CouponStatePending
	case now.After(c.ValidUntil):
		return CouponStateExpired
	case c.Exhausted():
		return CouponStateExhausted
	default:
		return CouponStateActive
	}
}

// CouponSummary содержит публичное представление купона без внутренних счётчиков.
type CouponSummary struct {
	Code          string       `json:"code"`
	DiscountType  DiscountType `json:"discountType"`
	DiscountValue float64      `json:"discountValue"`
}

// Summary возвращает публичное представление купона.
func (c *Coupon) Summary() CouponSummary {
	return CouponSummary{
		Code:          c.Code,
		DiscountType:  c.DiscountType,
		DiscountValue: c.DiscountValue,
	}
}

// Redemption фиксирует факт применения купона к заказу.
type Redemption struct {
	ID         uuid.UUID
	CouponID   uuid.UUID
	Code       string
	Identity   string
	OrderRef   string
	CartTotal  float64
	Discount   float64
	RedeemedAt time.Time
}

// SpinReward связывает выигранный сектор с купоном.
// Coupon заполнен только для погашаемых наград.
type SpinReward struct {
	Segment    Segment
	Coupon     *CouponSummary
	Redeemable bool
}

// SpinResult содержит результат успешного вращения колеса.
type SpinResult struct {
	Reward  SpinReward
	Message string
}

// Quote содержит результат проверки купона для суммы корзины.
type Quote struct {
	Coupon         CouponSummary
	DiscountAmount float64
}

// RedeemResult содержит результат погашения купона при оформлении заказа.
type RedeemResult struct {
	Redemption Redemption
	Coupon     CouponSummary
	FinalTotal float64
}
