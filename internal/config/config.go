// Package config содержит логику чтения конфигурации сервиса промоакций.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress    = "localhost:8080"
	defaultSentinelCodes = "TRYAGAIN,NOREWARD"
	defaultDBTimeout     = 5 * time.Second
	defaultSpinRate      = 10
)

// Config содержит параметры конфигурации сервиса промоакций.
type Config struct {
	RunAddress        string        `env:"RUN_ADDRESS"`
	DatabaseURI       string        `env:"DATABASE_URI"`
	JWTSecret         string        `env:"JWT_SECRET"`
	RedisAddress      string        `env:"REDIS_ADDRESS"`
	SentinelCodes     []string      `env:"SENTINEL_CODES" envSeparator:","`
	DBTimeout         time.Duration `env:"DB_TIMEOUT"`
	SpinRatePerMinute int           `env:"SPIN_RATE_PER_MINUTE"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envCfg := *cfg

	var sentinels string
	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory storage when empty")
	flag.StringVar(&cfg.JWTSecret, "s", "", "HS256 secret for bearer tokens")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for the spin rate limiter")
	flag.StringVar(&sentinels, "sentinel", defaultSentinelCodes, "comma-separated coupon codes of non-monetary rewards")
	flag.DurationVar(&cfg.DBTimeout, "db-timeout", defaultDBTimeout, "timeout of a single storage call")
	flag.IntVar(&cfg.SpinRatePerMinute, "spin-rate", defaultSpinRate, "spin requests per minute allowed for one identity")

	flag.Parse()

	cfg.SentinelCodes = splitCodes(sentinels)

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.JWTSecret != "" {
		cfg.JWTSecret = envCfg.JWTSecret
	}
	if envCfg.RedisAddress != "" {
		cfg.RedisAddress = envCfg.RedisAddress
	}
	if len(envCfg.SentinelCodes) > 0 {
		cfg.SentinelCodes = splitCodes(strings.Join(envCfg.SentinelCodes, ","))
	}
	if envCfg.DBTimeout != 0 {
		cfg.DBTimeout = envCfg.DBTimeout
	}
	if envCfg.SpinRatePerMinute != 0 {
		cfg.SpinRatePerMinute = envCfg.SpinRatePerMinute
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.DBTimeout <= 0 {
		return nil, fmt.Errorf("db timeout must be positive, got %s", cfg.DBTimeout)
	}
	if cfg.SpinRatePerMinute <= 0 {
		return nil, fmt.Errorf("spin rate must be positive, got %d", cfg.SpinRatePerMinute)
	}

	return cfg, nil
}

func splitCodes(s string) []string {
	var res []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			res = append(res, c)
		}
	}
	return res
}
