// Package main запускает HTTP-сервер сервиса промоакций.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/storefront-promotions/internal/config"
	"github.com/mmeshcher/storefront-promotions/internal/handler"
	"github.com/mmeshcher/storefront-promotions/internal/middleware"
	"github.com/mmeshcher/storefront-promotions/internal/repository"
	"github.com/mmeshcher/storefront-promotions/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	var repo service.Repository
	if cfg.DatabaseURI != "" {
		pg, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		repo = pg
	} else {
		sugar.Warn("DATABASE_URI is empty, using in-memory storage")
		repo = repository.NewMemoryRepository()
	}

	svc := service.NewService(repo, logger, cfg.SentinelCodes, cfg.DBTimeout)
	defer svc.Close()

	if cfg.JWTSecret == "" {
		sugar.Warn("JWT_SECRET is empty, using a random key: no externally issued token will be accepted")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)

	limiter, closeLimiter := newSpinLimiter(cfg, sugar)
	defer closeLimiter()

	h := handler.NewHandler(svc, logger, authMiddleware, limiter)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting promotions server",
			"addr", cfg.RunAddress,
			"sentinels", cfg.SentinelCodes,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

// newSpinLimiter выбирает общий для всех экземпляров ограничитель в Redis
// или, если Redis не задан или недоступен, ограничитель в памяти процесса.
func newSpinLimiter(cfg *config.Config, sugar *zap.SugaredLogger) (middleware.Limiter, func()) {
	local := middleware.NewLocalLimiter(cfg.SpinRatePerMinute)
	if cfg.RedisAddress == "" {
		return local, func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		sugar.Warnw("redis unavailable, using in-process spin limiter", "addr", cfg.RedisAddress, "error", err.Error())
		_ = client.Close()
		return local, func() {}
	}

	sugar.Infow("using redis spin limiter", "addr", cfg.RedisAddress)
	limiter := middleware.NewRedisLimiter(client, "spin", cfg.SpinRatePerMinute, time.Minute)
	return limiter, func() { _ = client.Close() }
}
