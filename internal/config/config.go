package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	LockTTL     time.Duration
	LogLevel    logrus.Level
	InitialCash decimal.Decimal

	QuoteURL       string
	QuoteAPIKey    string
	QuotePricePath string
	QuoteNamePath  string
	QuoteTimeout   time.Duration

	// PriceUpdateInterval drives the simulated market when no quote API is set.
	PriceUpdateInterval time.Duration
}

func defaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "sqlite://finance.db")
	v.SetDefault("LOCK_TTL", "10s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("INITIAL_CASH", "10000.00")
	v.SetDefault("QUOTE_PRICE_PATH", "$.latestPrice")
	v.SetDefault("QUOTE_NAME_PATH", "$.companyName")
	v.SetDefault("QUOTE_TIMEOUT", "5s")
	v.SetDefault("PRICE_UPDATE_INTERVAL", 3600)
}

// Load reads .env files, if any, and then the environment. Variables already
// set in the environment win over .env entries.
func Load(envFiles ...string) (*Config, error) {
	// Missing .env files are fine in production.
	_ = godotenv.Load(envFiles...)
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	defaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	level, err := logrus.ParseLevel(v.GetString("LOG_LEVEL"))
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	cash, err := decimal.NewFromString(strings.TrimSpace(v.GetString("INITIAL_CASH")))
	if err != nil {
		return nil, fmt.Errorf("INITIAL_CASH: %w", err)
	}
	if cash.IsNegative() {
		return nil, fmt.Errorf("INITIAL_CASH: must not be negative, got %s", cash)
	}
	interval := v.GetInt("PRICE_UPDATE_INTERVAL")
	if interval <= 0 {
		interval = 3600
	}
	lockTTL := v.GetDuration("LOCK_TTL")
	if lockTTL <= 0 {
		return nil, fmt.Errorf("LOCK_TTL: must be positive, got %q", v.GetString("LOCK_TTL"))
	}

	return &Config{
		Port:                v.GetString("PORT"),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		RedisURL:            v.GetString("REDIS_URL"),
		LockTTL:             lockTTL,
		LogLevel:            level,
		InitialCash:         cash,
		QuoteURL:            v.GetString("QUOTE_URL"),
		QuoteAPIKey:         v.GetString("QUOTE_API_KEY"),
		QuotePricePath:      v.GetString("QUOTE_PRICE_PATH"),
		QuoteNamePath:       v.GetString("QUOTE_NAME_PATH"),
		QuoteTimeout:        v.GetDuration("QUOTE_TIMEOUT"),
		PriceUpdateInterval: time.Duration(interval) * time.Second,
	}, nil
}
