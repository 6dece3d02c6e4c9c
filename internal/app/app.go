// Package app wires the ledger store, locker, price oracle and engine from a
// Config. The server and the operator CLI share it.
package app

import (
	"context"
	"fmt"

	"papertrade/internal/account"
	"papertrade/internal/config"
	"papertrade/internal/database"
	"papertrade/internal/handlers"
	"papertrade/internal/lock"
	"papertrade/internal/middleware"
	"papertrade/internal/portfolio"
	"papertrade/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type App struct {
	Repo     *database.Repo
	Engine   *portfolio.Engine
	Accounts *account.Service
	// Market is set when quotes come from the simulated market.
	Market *service.MarketSim
	Log    *logrus.Logger

	closers []func() error
}

// New opens and migrates the store and builds the engine on top of it.
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	a := &App{Log: log}

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db connect failed: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	a.Repo = database.New(db, log)
	if err := a.Repo.Migrate(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	var locks lock.Locker = lock.NewMutex()
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		a.closers = append(a.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		locks = lock.NewRedis(rdb, cfg.LockTTL, log)
		log.Info("using redis user locks")
	}

	var prices service.PriceProvider
	if cfg.QuoteURL != "" {
		prices = service.NewHTTPQuoteService(service.HTTPQuoteConfig{
			URL:       cfg.QuoteURL,
			Token:     cfg.QuoteAPIKey,
			PricePath: cfg.QuotePricePath,
			NamePath:  cfg.QuoteNamePath,
			Timeout:   cfg.QuoteTimeout,
		}, log)
		log.Infof("quoting from %s", cfg.QuoteURL)
	} else {
		a.Market = service.NewMarketSim(service.DefaultListings, log)
		prices = a.Market
		log.Info("quoting from the simulated market")
	}

	a.Engine = portfolio.NewEngine(a.Repo, prices, locks, log)
	a.Accounts = account.NewService(a.Repo, cfg.InitialCash, log)
	return a, nil
}

// Router returns the HTTP API with its middleware.
func (a *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(a.Log), middleware.NoCache())
	handlers.NewHandler(a.Engine, a.Accounts, a.Log).Register(r)
	return r
}

// Close releases the store and, when used, the redis client.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
