package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/storefront-promotions/internal/model"
	"github.com/mmeshcher/storefront-promotions/internal/money"
)

type spinKey struct {
	wheelID  uuid.UUID
	identity string
}

// MemoryRepository хранит данные в памяти процесса.
// Используется, когда адрес БД не задан, и в тестах.
type MemoryRepository struct {
	mu          sync.Mutex
	wheel       *model.WheelConfig
	spins       map[spinKey]model.Segment
	coupons     map[string]*model.Coupon
	redemptions map[string]model.Redemption
	now         func() time.Time
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		spins:       make(map[spinKey]model.Segment),
		coupons:     make(map[string]*model.Coupon),
		redemptions: make(map[string]model.Redemption),
		now:         time.Now,
	}
}

// Close ничего не делает.
func (m *MemoryRepository) Close() error { return nil }

// Ping всегда успешен.
func (m *MemoryRepository) Ping(ctx context.Context) error { return ctx.Err() }

func copySegments(segments []model.Segment) []model.Segment {
	res := make([]model.Segment, len(segments))
	copy(res, segments)
	return res
}

func (m *MemoryRepository) wheelSnapshot() *model.WheelConfig {
	cfg := *m.wheel
	cfg.Segments = copySegments(m.wheel.Segments)

	var count int64
	for k := range m.spins {
		if k.wheelID == cfg.ID {
			count++
		}
	}
	cfg.SpinCount = count

	return &cfg
}

// LoadOrCreateWheel возвращает конфигурацию колеса, создавая её из defaults при первом обращении.
func (m *MemoryRepository) LoadOrCreateWheel(ctx context.Context, defaults []model.Segment) (*model.WheelConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.wheel == nil {
		now := m.now()
		m.wheel = &model.WheelConfig{
			ID:        uuid.New(),
			Segments:  copySegments(defaults),
			UpdatedBy: "system",
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	return m.wheelSnapshot(), nil
}

// ReplaceSegments целиком заменяет список секторов.
func (m *MemoryRepository) ReplaceSegments(ctx context.Context, segments []model.Segment, updatedBy string) (*model.WheelConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.wheel == nil {
		m.wheel = &model.WheelConfig{ID: uuid.New(), CreatedAt: now}
	}
	m.wheel.Segments = copySegments(segments)
	m.wheel.UpdatedBy = updatedBy
	m.wheel.UpdatedAt = now

	return m.wheelSnapshot(), nil
}

// RecordSpin атомарно отмечает, что identity прокрутил колесо wheelID.
func (m *MemoryRepository) RecordSpin(ctx context.Context, wheelID uuid.UUID, identity string, won model.Segment) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := spinKey{wheelID: wheelID, identity: identity}
	if _, ok := m.spins[key]; ok {
		return false, nil
	}
	m.spins[key] = won
	return true, nil
}

// HasSpun сообщает, крутил ли identity колесо wheelID.
func (m *MemoryRepository) HasSpun(ctx context.Context, wheelID uuid.UUID, identity string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.spins[spinKey{wheelID: wheelID, identity: identity}]
	return ok, nil
}

func copyCoupon(c *model.Coupon) *model.Coupon {
	res := *c
	if c.MaxDiscount != nil {
		v := *c.MaxDiscount
		res.MaxDiscount = &v
	}
	if c.UsageLimit != nil {
		v := *c.UsageLimit
		res.UsageLimit = &v
	}
	return &res
}

// checkCoupon повторяет ограничения таблицы coupons.
func checkCoupon(c *model.Coupon) error {
	switch {
	case !c.DiscountType.Valid(),
		c.DiscountValue < 0,
		c.DiscountType == model.DiscountTypePercentage && money.ToCents(c.DiscountValue) > 10000,
		c.MinPurchase < 0,
		c.MaxDiscount != nil && *c.MaxDiscount < 0,
		c.ValidUntil.Before(c.ValidFrom),
		c.UsageLimit != nil && *c.UsageLimit < 0,
		c.UsageLimit != nil && c.UsedCount > *c.UsageLimit:
		return ErrCouponConstraint
	}
	return nil
}

// GetCoupon возвращает купон по нормализованному коду.
func (m *MemoryRepository) GetCoupon(ctx context.Context, code string) (*model.Coupon, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.coupons[code]
	if !ok {
		return nil, ErrCouponNotFound
	}
	return copyCoupon(c), nil
}

// ListCoupons возвращает все купоны, отсортированные по коду.
func (m *MemoryRepository) ListCoupons(ctx context.Context) ([]model.Coupon, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	res := make([]model.Coupon, 0, len(m.coupons))
	for _, c := range m.coupons {
		res = append(res, *copyCoupon(c))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return res, nil
}

// CreateCoupon сохраняет новый купон.
func (m *MemoryRepository) CreateCoupon(ctx context.Context, c *model.Coupon) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.coupons[c.Code]; ok {
		return ErrCouponExists
	}
	if err := checkCoupon(c); err != nil {
		return err
	}

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := m.now()
	c.CreatedAt = now
	c.UpdatedAt = now

	m.coupons[c.Code] = copyCoupon(c)
	return nil
}

// UpdateCoupon обновляет редактируемые поля купона по его идентификатору.
func (m *MemoryRepository) UpdateCoupon(ctx context.Context, c *model.Coupon) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var current *model.Coupon
	for _, existing := range m.coupons {
		if existing.ID == c.ID {
			current = existing
			break
		}
	}
	if current == nil {
		return ErrCouponNotFound
	}
	if other, ok := m.coupons[c.Code]; ok && other.ID != c.ID {
		return ErrCouponExists
	}

	updated := copyCoupon(c)
	updated.UsedCount = current.UsedCount
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = m.now()
	if err := checkCoupon(updated); err != nil {
		return err
	}

	delete(m.coupons, current.Code)
	m.coupons[updated.Code] = updated

	*c = *copyCoupon(updated)
	return nil
}

// DeleteCoupon удаляет купон по коду вместе с его погашениями.
func (m *MemoryRepository) DeleteCoupon(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.coupons[code]
	if !ok {
		return ErrCouponNotFound
	}
	delete(m.coupons, code)

	for ref, red := range m.redemptions {
		if red.CouponID == c.ID {
			delete(m.redemptions, ref)
		}
	}
	return nil
}

// RedeemCoupon атомарно увеличивает счётчик использований купона и сохраняет факт погашения.
func (m *MemoryRepository) RedeemCoupon(ctx context.Context, red *model.Redemption, version time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.redemptions[red.OrderRef]; ok {
		return false, ErrOrderAlreadyRedeemed
	}

	var c *model.Coupon
	for _, existing := range m.coupons {
		if existing.ID == red.CouponID {
			c = existing
			break
		}
	}

	at := red.RedeemedAt
	switch {
	case c == nil,
		!c.UpdatedAt.Equal(version),
		!c.IsActive,
		at.Before(c.ValidFrom), at.After(c.ValidUntil),
		c.Exhausted(),
		money.ToCents(c.MinPurchase) > money.ToCents(red.CartTotal):
		return false, nil
	}

	if red.ID == uuid.Nil {
		red.ID = uuid.New()
	}
	c.UsedCount++
	m.redemptions[red.OrderRef] = *red

	return true, nil
}
