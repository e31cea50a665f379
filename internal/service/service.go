// Package service реализует бизнес-логику колеса скидок и купонов.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-promotions/internal/model"
	"github.com/mmeshcher/storefront-promotions/internal/wheel"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
// Все изменяющие операции атомарны: наружу не выставлен путь «прочитать-изменить-записать».
type Repository interface {
	Close() error
	Ping(ctx context.Context) error

	LoadOrCreateWheel(ctx context.Context, defaults []model.Segment) (*model.WheelConfig, error)
	ReplaceSegments(ctx context.Context, segments []model.Segment, updatedBy string) (*model.WheelConfig, error)
	RecordSpin(ctx context.Context, wheelID uuid.UUID, identity string, won model.Segment) (bool, error)
	HasSpun(ctx context.Context, wheelID uuid.UUID, identity string) (bool, error)

	GetCoupon(ctx context.Context, code string) (*model.Coupon, error)
	ListCoupons(ctx context.Context) ([]model.Coupon, error)
	CreateCoupon(ctx context.Context, c *model.Coupon) error
	UpdateCoupon(ctx context.Context, c *model.Coupon) error
	DeleteCoupon(ctx context.Context, code string) error
	RedeemCoupon(ctx context.Context, red *model.Redemption, version time.Time) (bool, error)
}

// DefaultDBTimeout ограничивает одно обращение к хранилищу, если таймаут не задан.
const DefaultDBTimeout = 5 * time.Second

// Service содержит бизнес-логику колеса скидок и купонов.
type Service struct {
	repo      Repository
	logger    *zap.Logger
	sentinels *Sentinels
	source    wheel.Source
	now       func() time.Time
	dbTimeout time.Duration
}

// NewService создаёт новый сервис.
// sentinelCodes перечисляет коды наград без денежного эквивалента, не допускаемые к погашению.
func NewService(repo Repository, logger *zap.Logger, sentinelCodes []string, dbTimeout time.Duration) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dbTimeout <= 0 {
		dbTimeout = DefaultDBTimeout
	}

	return &Service{
		repo:      repo,
		logger:    logger,
		sentinels: NewSentinels(sentinelCodes),
		source:    wheel.DefaultSource,
		now:       time.Now,
		dbTimeout: dbTimeout,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := s.dbContext(ctx)
	defer cancel()
	return s.repo.Ping(ctx)
}

func (s *Service) dbContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.dbTimeout)
}
