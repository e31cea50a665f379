// Package repository содержит реализации доступа к данным: PostgreSQL и хранилище в памяти.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/storefront-promotions/internal/model"
	"github.com/mmeshcher/storefront-promotions/internal/money"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrCouponNotFound возвращается, если купон с указанным кодом не найден.
var (
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrCouponExists возвращается при попытке создать купон с уже существующим кодом.
	ErrCouponExists = errors.New("coupon already exists")
	// ErrCouponConstraint возвращается, если изменение нарушает ограничения таблицы купонов.
	ErrCouponConstraint = errors.New("coupon violates storage constraint")
	// ErrOrderAlreadyRedeemed возвращается, если к заказу уже применён купон.
	ErrOrderAlreadyRedeemed = errors.New("order already has a redemption")
)

var errWheelMissing = errors.New("wheel config missing")

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операции чтения при временных ошибках.
// Операции, выдающие награду или списывающие купон, через него не проходят.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 500 * time.Millisecond}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(delays) {
			break
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Ping проверяет доступность БД.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// LoadOrCreateWheel возвращает конфигурацию колеса, создавая её из defaults при первом обращении.
func (r *PostgresRepository) LoadOrCreateWheel(ctx context.Context, defaults []model.Segment) (*model.WheelConfig, error) {
	var cfg *model.WheelConfig
	err := r.withRetry(ctx, func() error {
		var err error
		cfg, err = r.getWheel(ctx)
		return err
	})
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, errWheelMissing) {
		return nil, err
	}

	raw, err := json.Marshal(defaults)
	if err != nil {
		return nil, fmt.Errorf("marshal segments: %w", err)
	}

	// Параллельные первые обращения создают ровно одну строку благодаря ограничению на singleton.
	_, err = r.pool.Exec(ctx,
		`INSERT INTO wheel_configs (id, segments, updated_by) VALUES ($1, $2, $3)
		 ON CONFLICT (singleton) DO NOTHING`,
		uuid.New(), raw, "system",
	)
	if err != nil {
		return nil, fmt.Errorf("seed wheel config: %w", err)
	}

	return r.getWheel(ctx)
}

func (r *PostgresRepository) getWheel(ctx context.Context) (*model.WheelConfig, error) {
	var (
		cfg model.WheelConfig
		raw []byte
	)

	err := r.pool.QueryRow(ctx,
		`SELECT w.id, w.segments, w.updated_by, w.created_at, w.updated_at,
		        (SELECT count(*) FROM wheel_spins s WHERE s.wheel_id = w.id)
		 FROM wheel_configs w
		 WHERE w.singleton`,
	).Scan(&cfg.ID, &raw, &cfg.UpdatedBy, &cfg.CreatedAt, &cfg.UpdatedAt, &cfg.SpinCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errWheelMissing
		}
		return nil, fmt.Errorf("select wheel config: %w", err)
	}

	if err := json.Unmarshal(raw, &cfg.Segments); err != nil {
		return nil, fmt.Errorf("unmarshal segments: %w", err)
	}

	return &cfg, nil
}

// ReplaceSegments целиком заменяет список секторов одной командой.
func (r *PostgresRepository) ReplaceSegments(ctx context.Context, segments []model.Segment, updatedBy string) (*model.WheelConfig, error) {
	raw, err := json.Marshal(segments)
	if err != nil {
		return nil, fmt.Errorf("marshal segments: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO wheel_configs (id, segments, updated_by) VALUES ($1, $2, $3)
		 ON CONFLICT (singleton) DO UPDATE
		 SET segments = EXCLUDED.segments, updated_by = EXCLUDED.updated_by, updated_at = now()`,
		uuid.New(), raw, updatedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("replace segments: %w", err)
	}

	return r.getWheel(ctx)
}

// RecordSpin атомарно отмечает, что identity прокрутил колесо wheelID.
// Возвращает false, если отметка уже существовала.
func (r *PostgresRepository) RecordSpin(ctx context.Context, wheelID uuid.UUID, identity string, won model.Segment) (bool, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`INSERT INTO wheel_spins (wheel_id, identity, segment_label, coupon_code) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (wheel_id, identity) DO NOTHING`,
		wheelID, identity, won.Label, won.CouponCode,
	)
	if err != nil {
		return false, fmt.Errorf("insert spin: %w", err)
	}

	return cmdTag.RowsAffected() == 1, nil
}

// HasSpun сообщает, крутил ли identity колесо wheelID.
func (r *PostgresRepository) HasSpun(ctx context.Context, wheelID uuid.UUID, identity string) (bool, error) {
	var exists bool
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM wheel_spins WHERE wheel_id = $1 AND identity = $2)`,
			wheelID, identity,
		).Scan(&exists)
	})
	if err != nil {
		return false, fmt.Errorf("select spin: %w", err)
	}
	return exists, nil
}

const couponColumns = `id, code, discount_type, discount_value, min_purchase, max_discount,
	valid_from, valid_until, usage_limit, used_count, is_active, created_at, updated_at`

func scanCoupon(row pgx.Row) (*model.Coupon, error) {
	var (
		c             model.Coupon
		discountType  string
		discountValue int64
		minPurchase   int64
		maxDiscount   *int64
	)

	err := row.Scan(&c.ID, &c.Code, &discountType, &discountValue, &minPurchase, &maxDiscount,
		&c.ValidFrom, &c.ValidUntil, &c.UsageLimit, &c.UsedCount, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	c.DiscountType = model.DiscountType(discountType)
	c.DiscountValue = money.FromCents(discountValue)
	c.MinPurchase = money.FromCents(minPurchase)
	if maxDiscount != nil {
		v := money.FromCents(*maxDiscount)
		c.MaxDiscount = &v
	}

	return &c, nil
}

func maxDiscountCents(c *model.Coupon) *int64 {
	if c.MaxDiscount == nil {
		return nil
	}
	v := money.ToCents(*c.MaxDiscount)
	return &v
}

func translateCouponErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return ErrCouponExists
		case pgerrcode.CheckViolation:
			return fmt.Errorf("%w: %s", ErrCouponConstraint, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// GetCoupon возвращает купон по нормализованному коду.
func (r *PostgresRepository) GetCoupon(ctx context.Context, code string) (*model.Coupon, error) {
	var c *model.Coupon
	err := r.withRetry(ctx, func() error {
		var err error
		c, err = scanCoupon(r.pool.QueryRow(ctx,
			`SELECT `+couponColumns+` FROM coupons WHERE code = $1`,
			code,
		))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	return c, nil
}

// ListCoupons возвращает все купоны, отсортированные по коду.
func (r *PostgresRepository) ListCoupons(ctx context.Context) ([]model.Coupon, error) {
	var res []model.Coupon
	err := r.withRetry(ctx, func() error {
		res = res[:0]

		rows, err := r.pool.Query(ctx, `SELECT `+couponColumns+` FROM coupons ORDER BY code`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			c, err := scanCoupon(rows)
			if err != nil {
				return fmt.Errorf("scan coupon: %w", err)
			}
			res = append(res, *c)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}

	return res, nil
}

// CreateCoupon сохраняет новый купон и заполняет его идентификатор и метки времени.
func (r *PostgresRepository) CreateCoupon(ctx context.Context, c *model.Coupon) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO coupons (id, code, discount_type, discount_value, min_purchase, max_discount,
		                      valid_from, valid_until, usage_limit, used_count, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at, updated_at`,
		c.ID, c.Code, string(c.DiscountType), money.ToCents(c.DiscountValue), money.ToCents(c.MinPurchase),
		maxDiscountCents(c), c.ValidFrom, c.ValidUntil, c.UsageLimit, c.UsedCount, c.IsActive,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return translateCouponErr("create coupon", err)
	}

	return nil
}

// UpdateCoupon обновляет редактируемые поля купона по его идентификатору.
// Счётчик использований не изменяется.
func (r *PostgresRepository) UpdateCoupon(ctx context.Context, c *model.Coupon) error {
	row := r.pool.QueryRow(ctx,
		`UPDATE coupons
		 SET code = $2, discount_type = $3, discount_value = $4, min_purchase = $5, max_discount = $6,
		     valid_from = $7, valid_until = $8, usage_limit = $9, is_active = $10, updated_at = now()
		 WHERE id = $1
		 RETURNING `+couponColumns,
		c.ID, c.Code, string(c.DiscountType), money.ToCents(c.DiscountValue), money.ToCents(c.MinPurchase),
		maxDiscountCents(c), c.ValidFrom, c.ValidUntil, c.UsageLimit, c.IsActive,
	)

	updated, err := scanCoupon(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCouponNotFound
		}
		return translateCouponErr("update coupon", err)
	}

	*c = *updated
	return nil
}

// DeleteCoupon удаляет купон по коду.
func (r *PostgresRepository) DeleteCoupon(ctx context.Context, code string) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM coupons WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCouponNotFound
	}
	return nil
}

// RedeemCoupon атомарно увеличивает счётчик использований купона и сохраняет факт погашения.
// Счётчик увеличивается, только если купон не менялся с момента version, активен в момент
// red.RedeemedAt, лимит не исчерпан и сумма корзины не ниже минимальной.
// Возвращает false, если условия не выполнены; в этом случае ничего не записывается.
func (r *PostgresRepository) RedeemCoupon(ctx context.Context, red *model.Redemption, version time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if red.ID == uuid.Nil {
		red.ID = uuid.New()
	}

	cartCents := money.ToCents(red.CartTotal)

	cmdTag, err := tx.Exec(ctx,
		`INSERT INTO coupon_redemptions (id, coupon_id, identity, order_ref, cart_total, discount, redeemed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (order_ref) DO NOTHING`,
		red.ID, red.CouponID, red.Identity, red.OrderRef, cartCents, money.ToCents(red.Discount), red.RedeemedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert redemption: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return false, ErrOrderAlreadyRedeemed
	}

	cmdTag, err = tx.Exec(ctx,
		`UPDATE coupons SET used_count = used_count + 1
		 WHERE id = $1
		   AND updated_at = $2
		   AND is_active
		   AND valid_from <= $3 AND valid_until >= $3
		   AND (usage_limit IS NULL OR used_count < usage_limit)
		   AND min_purchase <= $4`,
		red.CouponID, version, red.RedeemedAt, cartCents,
	)
	if err != nil {
		return false, fmt.Errorf("increment usage: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return false, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}

	return true, nil
}
