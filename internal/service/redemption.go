package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-promotions/internal/discount"
	"github.com/mmeshcher/storefront-promotions/internal/model"
	"github.com/mmeshcher/storefront-promotions/internal/money"
	"github.com/mmeshcher/storefront-promotions/internal/repository"
	"github.com/mmeshcher/storefront-promotions/internal/validation"
)

const maxOrderRefLength = 128

// Sentinels хранит множество кодов наград без денежного эквивалента.
// Такие коды никогда не ищутся в реестре купонов и не принимаются к оплате.
type Sentinels struct {
	codes map[string]struct{}
	list  []string
}

// NewSentinels создаёт множество из списка кодов; коды нормализуются, пустые пропускаются.
func NewSentinels(codes []string) *Sentinels {
	list := validation.NormalizeCodes(codes)
	set := make(map[string]struct{}, len(list))
	for _, c := range list {
		set[c] = struct{}{}
	}
	return &Sentinels{codes: set, list: list}
}

// Contains сообщает, является ли code служебным.
func (s *Sentinels) Contains(code string) bool {
	_, ok := s.codes[validation.NormalizeCouponCode(code)]
	return ok
}

// Codes возвращает нормализованный список служебных кодов.
func (s *Sentinels) Codes() []string {
	res := make([]string, len(s.list))
	copy(res, s.list)
	return res
}

// reward связывает выигранный сектор с купоном из реестра.
// Сектор со служебным кодом, с отсутствующим или недействующим купоном выдаётся без права погашения.
func (s *Service) reward(ctx context.Context, seg model.Segment) model.SpinReward {
	res := model.SpinReward{Segment: seg}
	if seg.CouponCode == "" || s.sentinels.Contains(seg.CouponCode) {
		return res
	}

	c, err := s.getCoupon(ctx, seg.CouponCode)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn("wheel segment references unknown coupon",
				zap.String("segment", seg.Label),
				zap.String("couponCode", seg.CouponCode),
			)
		} else {
			s.logger.Error("failed to resolve wheel reward", zap.String("couponCode", seg.CouponCode), zap.Error(err))
		}
		return res
	}

	if state := c.State(s.now()); state != model.CouponStateActive {
		s.logger.Warn("wheel segment references coupon that cannot be redeemed",
			zap.String("segment", seg.Label),
			zap.String("couponCode", c.Code),
			zap.String("state", string(state)),
		)
		return res
	}

	summary := c.Summary()
	res.Coupon = &summary
	res.Redeemable = true
	return res
}

// RedeemCoupon применяет купон к заказу orderRef и увеличивает счётчик использований.
// Проверка условий и увеличение счётчика выполняются одной атомарной операцией хранилища,
// поэтому лимит не может быть превышен конкурентными погашениями.
func (s *Service) RedeemCoupon(ctx context.Context, identity, code string, cartTotal float64, orderRef string) (*model.RedeemResult, error) {
	orderRef = strings.TrimSpace(orderRef)
	if orderRef == "" || len(orderRef) > maxOrderRefLength {
		return nil, ErrInvalidOrderRef
	}
	if err := checkCartTotal(cartTotal); err != nil {
		return nil, err
	}

	c, err := s.activeCoupon(ctx, code)
	if err != nil {
		return nil, err
	}

	now := s.now()
	cart := money.FromFloat(cartTotal)
	if err := checkRedeemable(c, cart, now); err != nil {
		return nil, err
	}

	amount := discount.Compute(*c, cart)
	red := &model.Redemption{
		CouponID:   c.ID,
		Code:       c.Code,
		Identity:   identity,
		OrderRef:   orderRef,
		CartTotal:  money.Float(cart),
		Discount:   money.Float(amount),
		RedeemedAt: now,
	}

	applied, err := s.applyRedemption(ctx, red, c)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, s.redeemFailure(ctx, c.Code, cart, now)
	}

	c.UsedCount++

	s.logger.Info("coupon redeemed",
		zap.String("code", c.Code),
		zap.String("identity", identity),
		zap.String("orderRef", orderRef),
		zap.String("discount", amount.StringFixed(money.Scale)),
	)

	return &model.RedeemResult{
		Redemption: *red,
		Coupon:     c.Summary(),
		FinalTotal: money.Float(cart.Sub(amount)),
	}, nil
}

func (s *Service) applyRedemption(ctx context.Context, red *model.Redemption, c *model.Coupon) (bool, error) {
	ctx, cancel := s.dbContext(ctx)
	defer cancel()

	applied, err := s.repo.RedeemCoupon(ctx, red, c.UpdatedAt)
	if err != nil {
		if errors.Is(err, repository.ErrOrderAlreadyRedeemed) {
			return false, fmt.Errorf("%w: %s", ErrAlreadyRedeemed, red.OrderRef)
		}
		return false, fmt.Errorf("redeem coupon: %w", err)
	}
	return applied, nil
}

// redeemFailure определяет, почему атомарное погашение не применилось:
// купон перечитывается и проверяется заново.
func (s *Service) redeemFailure(ctx context.Context, code string, cart decimal.Decimal, now time.Time) error {
	c, err := s.activeCoupon(ctx, code)
	if err != nil {
		return err
	}
	if err := checkRedeemable(c, cart, now); err != nil {
		return err
	}
	return ErrCouponChanged
}
