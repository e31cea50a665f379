package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront-promotions/internal/discount"
	"github.com/mmeshcher/storefront-promotions/internal/model"
	"github.com/mmeshcher/storefront-promotions/internal/money"
	"github.com/mmeshcher/storefront-promotions/internal/repository"
	"github.com/mmeshcher/storefront-promotions/internal/validation"
)

const timeLayout = "2006-01-02 15:04 MST"

func (s *Service) getCoupon(ctx context.Context, code string) (*model.Coupon, error) {
	ctx, cancel := s.dbContext(ctx)
	defer cancel()

	c, err := s.repo.GetCoupon(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrCouponNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	return c, nil
}

// activeCoupon ищет купон, допустимый к оформлению заказа: известный, активный и не служебный.
func (s *Service) activeCoupon(ctx context.Context, code string) (*model.Coupon, error) {
	code = validation.NormalizeCouponCode(code)
	if code == "" || s.sentinels.Contains(code) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
	}

	c, err := s.getCoupon(ctx, code)
	if err != nil {
		return nil, err
	}
	if !c.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	return c, nil
}

// checkRedeemable проверяет окно действия, лимит и минимальную сумму именно в этом порядке.
func checkRedeemable(c *model.Coupon, cartTotal decimal.Decimal, now time.Time) error {
	if now.Before(c.ValidFrom) {
		return fmt.Errorf("%w: coupon %s is valid from %s", ErrExpired, c.Code, c.ValidFrom.UTC().Format(timeLayout))
	}
	if now.After(c.ValidUntil) {
		return fmt.Errorf("%w: coupon %s expired at %s", ErrExpired, c.Code, c.ValidUntil.UTC().Format(timeLayout))
	}
	if c.Exhausted() {
		return fmt.Errorf("%w: coupon %s", ErrLimitReached, c.Code)
	}
	minPurchase := money.FromFloat(c.MinPurchase)
	if cartTotal.LessThan(minPurchase) {
		return fmt.Errorf("%w: minimum purchase of %s required", ErrBelowMinimum, minPurchase.StringFixed(money.Scale))
	}
	return nil
}

// ValidateCoupon проверяет купон для суммы корзины и рассчитывает скидку.
// Счётчик использований не изменяется.
func (s *Service) ValidateCoupon(ctx context.Context, code string, cartTotal float64) (*model.Quote, error) {
	if err := checkCartTotal(cartTotal); err != nil {
		return nil, err
	}

	c, err := s.activeCoupon(ctx, code)
	if err != nil {
		return nil, err
	}

	cart := money.FromFloat(cartTotal)
	if err := checkRedeemable(c, cart, s.now()); err != nil {
		return nil, err
	}

	return &model.Quote{
		Coupon:         c.Summary(),
		DiscountAmount: money.Float(discount.Compute(*c, cart)),
	}, nil
}

func checkCartTotal(v float64) error {
	if !money.ValidAmount(v) {
		return fmt.Errorf("%w: cart total must be between 0 and %.0f", ErrInvalidAmount, money.MaxAmount)
	}
	return nil
}

// roundAmounts приводит денежные поля и процент к сотым, как они будут сохранены.
func roundAmounts(c *model.Coupon) {
	c.DiscountValue = money.Round(c.DiscountValue)
	c.MinPurchase = money.Round(c.MinPurchase)
	if c.MaxDiscount != nil {
		v := money.Round(*c.MaxDiscount)
		c.MaxDiscount = &v
	}
}

func validateCoupon(c *model.Coupon) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{ErrInvalidCoupon}, args...)...)
	}

	switch {
	case !validation.IsValidCouponCode(c.Code):
		return invalid("code must be 3-32 characters of A-Z, 0-9, '-' or '_'")
	case !c.DiscountType.Valid():
		return invalid("discount type must be %q or %q", model.DiscountTypePercentage, model.DiscountTypeFixed)
	case !money.ValidAmount(c.DiscountValue):
		return invalid("discount value must be between 0 and %.0f", money.MaxAmount)
	case c.DiscountType == model.DiscountTypePercentage && c.DiscountValue > 100:
		return invalid("percentage discount must not exceed 100")
	case !money.ValidAmount(c.MinPurchase):
		return invalid("minimum purchase must be between 0 and %.0f", money.MaxAmount)
	case c.MaxDiscount != nil && !money.ValidAmount(*c.MaxDiscount):
		return invalid("maximum discount must be between 0 and %.0f", money.MaxAmount)
	case c.ValidFrom.IsZero() || c.ValidUntil.IsZero():
		return invalid("validity window is required")
	case c.ValidUntil.Before(c.ValidFrom):
		return invalid("validUntil must not be before validFrom")
	case c.UsageLimit != nil && *c.UsageLimit < 0:
		return invalid("usage limit must not be negative")
	case c.UsageLimit != nil && c.UsedCount > *c.UsageLimit:
		return invalid("usage limit %d is below current usage %d", *c.UsageLimit, c.UsedCount)
	}
	return nil
}

func translateWriteErr(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrCouponExists):
		return ErrCouponExists
	case errors.Is(err, repository.ErrCouponConstraint):
		return fmt.Errorf("%w: %v", ErrInvalidCoupon, err)
	case errors.Is(err, repository.ErrCouponNotFound):
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Service) checkReserved(code string) error {
	if s.sentinels.Contains(code) {
		return fmt.Errorf("%w: code %s is reserved for non-monetary wheel rewards", ErrInvalidCoupon, code)
	}
	return nil
}

// CreateCoupon создаёт купон. Счётчик использований нового купона всегда равен нулю.
func (s *Service) CreateCoupon(ctx context.Context, c *model.Coupon) (*model.Coupon, error) {
	c.Code = validation.NormalizeCouponCode(c.Code)
	c.UsedCount = 0

	if err := validateCoupon(c); err != nil {
		return nil, err
	}
	roundAmounts(c)
	if err := s.checkReserved(c.Code); err != nil {
		return nil, err
	}

	ctx, cancel := s.dbContext(ctx)
	defer cancel()

	if err := s.repo.CreateCoupon(ctx, c); err != nil {
		return nil, translateWriteErr("create coupon", err)
	}
	return c, nil
}

// UpdateCoupon заменяет редактируемые поля купона с кодом code.
// Пустой код в upd сохраняет прежний код.
func (s *Service) UpdateCoupon(ctx context.Context, code string, upd *model.Coupon) (*model.Coupon, error) {
	current, err := s.getCoupon(ctx, validation.NormalizeCouponCode(code))
	if err != nil {
		return nil, err
	}

	upd.ID = current.ID
	upd.UsedCount = current.UsedCount
	upd.Code = validation.NormalizeCouponCode(upd.Code)
	if upd.Code == "" {
		upd.Code = current.Code
	}

	if err := validateCoupon(upd); err != nil {
		return nil, err
	}
	roundAmounts(upd)
	if err := s.checkReserved(upd.Code); err != nil {
		return nil, err
	}

	ctx, cancel := s.dbContext(ctx)
	defer cancel()

	if err := s.repo.UpdateCoupon(ctx, upd); err != nil {
		return nil, translateWriteErr("update coupon", err)
	}
	return upd, nil
}

// GetCoupon возвращает купон по коду.
func (s *Service) GetCoupon(ctx context.Context, code string) (*model.Coupon, error) {
	return s.getCoupon(ctx, validation.NormalizeCouponCode(code))
}

// ListCoupons возвращает все купоны.
func (s *Service) ListCoupons(ctx context.Context) ([]model.Coupon, error) {
	ctx, cancel := s.dbContext(ctx)
	defer cancel()

	coupons, err := s.repo.ListCoupons(ctx)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	return coupons, nil
}

// DeleteCoupon удаляет купон по коду.
func (s *Service) DeleteCoupon(ctx context.Context, code string) error {
	ctx, cancel := s.dbContext(ctx)
	defer cancel()

	if err := s.repo.DeleteCoupon(ctx, validation.NormalizeCouponCode(code)); err != nil {
		return translateWriteErr("delete coupon", err)
	}
	return nil
}

// Now возвращает текущее время сервиса; используется для вычисления состояния купонов.
func (s *Service) Now() time.Time {
	return s.now()
}
