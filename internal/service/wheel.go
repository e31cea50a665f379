package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-promotions/internal/model"
	"github.com/mmeshcher/storefront-promotions/internal/validation"
	"github.com/mmeshcher/storefront-promotions/internal/wheel"
)

// LoadWheel возвращает конфигурацию колеса, при первом обращении засевая её секторами по умолчанию.
func (s *Service) LoadWheel(ctx context.Context) (*model.WheelConfig, error) {
	ctx, cancel := s.dbContext(ctx)
	defer cancel()

	cfg, err := s.repo.LoadOrCreateWheel(ctx, wheel.DefaultSegments())
	if err != nil {
		return nil, fmt.Errorf("load wheel: %w", err)
	}
	return cfg, nil
}

func normalizeSegments(segments []model.Segment) []model.Segment {
	res := make([]model.Segment, len(segments))
	for i, seg := range segments {
		seg.Label = strings.TrimSpace(seg.Label)
		seg.CouponCode = validation.NormalizeCouponCode(seg.CouponCode)
		seg.Category = strings.TrimSpace(seg.Category)
		res[i] = seg
	}
	return res
}

// ReplaceSegments проверяет и целиком заменяет список секторов колеса.
// При нарушении инварианта суммы вероятностей ничего не записывается.
func (s *Service) ReplaceSegments(ctx context.Context, segments []model.Segment, updatedBy string) (*model.WheelConfig, error) {
	segments = normalizeSegments(segments)
	if err := wheel.ValidateSegments(segments); err != nil {
		return nil, err
	}

	ctx, cancel := s.dbContext(ctx)
	defer cancel()

	cfg, err := s.repo.ReplaceSegments(ctx, segments, strings.TrimSpace(updatedBy))
	if err != nil {
		return nil, fmt.Errorf("replace segments: %w", err)
	}

	s.logger.Info("wheel segments replaced",
		zap.String("updatedBy", cfg.UpdatedBy),
		zap.Int("segments", len(cfg.Segments)),
	)

	return cfg, nil
}

// Spin разыгрывает сектор для identity.
// Единственная точка контроля однократности — атомарная запись RecordSpin после розыгрыша;
// если запись уже была, результат розыгрыша отбрасывается.
func (s *Service) Spin(ctx context.Context, identity, category string) (*model.SpinResult, error) {
	if identity == "" {
		return nil, errors.New("identity is required")
	}

	cfg, err := s.LoadWheel(ctx)
	if err != nil {
		return nil, err
	}

	won, err := wheel.Draw(wheel.Filter(cfg.Segments, category), s.source)
	if err != nil {
		return nil, err
	}

	recorded, err := s.recordSpin(ctx, cfg, identity, won)
	if err != nil {
		return nil, err
	}
	if !recorded {
		return nil, ErrAlreadyUsed
	}

	reward := s.reward(ctx, won)

	s.logger.Info("wheel spun",
		zap.String("identity", identity),
		zap.String("segment", won.Label),
		zap.String("couponCode", won.CouponCode),
		zap.Bool("redeemable", reward.Redeemable),
	)

	return &model.SpinResult{
		Reward:  reward,
		Message: spinMessage(reward),
	}, nil
}

func (s *Service) recordSpin(ctx context.Context, cfg *model.WheelConfig, identity string, won model.Segment) (bool, error) {
	ctx, cancel := s.dbContext(ctx)
	defer cancel()

	recorded, err := s.repo.RecordSpin(ctx, cfg.ID, identity, won)
	if err != nil {
		return false, fmt.Errorf("record spin: %w", err)
	}
	return recorded, nil
}

func spinMessage(r model.SpinReward) string {
	if r.Redeemable {
		return fmt.Sprintf("Congratulations! You won %s. Use code %s at checkout.", r.Segment.Label, r.Coupon.Code)
	}
	if r.Segment.Reward != "" {
		return fmt.Sprintf("You landed on %s. %s.", r.Segment.Label, strings.TrimSuffix(r.Segment.Reward, "."))
	}
	return fmt.Sprintf("You landed on %s.", r.Segment.Label)
}

// CheckUsage сообщает, использовал ли identity своё вращение.
func (s *Service) CheckUsage(ctx context.Context, identity string) (bool, error) {
	cfg, err := s.LoadWheel(ctx)
	if err != nil {
		return false, err
	}

	ctx, cancel := s.dbContext(ctx)
	defer cancel()

	used, err := s.repo.HasSpun(ctx, cfg.ID, identity)
	if err != nil {
		return false, fmt.Errorf("check usage: %w", err)
	}
	return used, nil
}
