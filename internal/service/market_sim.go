package service

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"papertrade/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DefaultListings are the symbols the simulated market quotes out of the box.
var DefaultListings = map[string]Listing{
	"AAPL":  {Name: "Apple Inc.", Price: decimal.NewFromInt(150)},
	"GOOGL": {Name: "Alphabet Inc.", Price: decimal.NewFromInt(2800)},
	"MSFT":  {Name: "Microsoft Corporation", Price: decimal.NewFromInt(300)},
	"AMZN":  {Name: "Amazon.com, Inc.", Price: decimal.NewFromInt(3200)},
	"TSLA":  {Name: "Tesla, Inc.", Price: decimal.NewFromInt(800)},
	"META":  {Name: "Meta Platforms, Inc.", Price: decimal.NewFromInt(350)},
	"NVDA":  {Name: "NVIDIA Corporation", Price: decimal.NewFromInt(400)},
	"NFLX":  {Name: "Netflix, Inc.", Price: decimal.NewFromInt(450)},
}

type Listing struct {
	Name  string
	Price decimal.Decimal
}

// MarketSim quotes a fixed set of listings. Without Start the prices stay
// where they were set; with Start a background ticker moves every price by
// up to ±2% per tick.
type MarketSim struct {
	mu       sync.RWMutex
	listings map[string]Listing
	rnd      *rand.Rand
	log      *logrus.Logger
}

func NewMarketSim(listings map[string]Listing, log *logrus.Logger) *MarketSim {
	m := &MarketSim{
		listings: make(map[string]Listing, len(listings)),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		log:      log,
	}
	for sym, l := range listings {
		m.listings[NormalizeSymbol(sym)] = l
	}
	return m
}

func (m *MarketSim) Lookup(ctx context.Context, symbol string) (*models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sym := NormalizeSymbol(symbol)
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[sym]
	if !ok {
		return nil, nil
	}
	return &models.Quote{Symbol: sym, Name: l.Name, Price: l.Price}, nil
}

// Set lists symbol at price, replacing any existing quote.
func (m *MarketSim) Set(symbol string, price decimal.Decimal) {
	sym := NormalizeSymbol(symbol)
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.listings[sym]
	l.Price = price
	m.listings[sym] = l
}

// Delist removes symbol so that lookups report it as unknown.
func (m *MarketSim) Delist(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listings, NormalizeSymbol(symbol))
}

func (m *MarketSim) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]string, 0, len(m.listings))
	for sym := range m.listings {
		res = append(res, sym)
	}
	sort.Strings(res)
	return res
}

func (m *MarketSim) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				m.log.Info("price updater stopping")
				return
			case <-ticker.C:
				m.tick()
			}
		}
	}()
}

func (m *MarketSim) tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sym, l := range m.listings {
		pct := decimal.NewFromFloat(m.rnd.Float64()*4 - 2).Round(4)
		next := l.Price.Add(l.Price.Mul(pct).Div(decimal.NewFromInt(100))).Round(2)
		if next.LessThanOrEqual(decimal.Zero) {
			next = decimal.New(1, -2)
		}
		l.Price = next
		m.listings[sym] = l
	}
	m.log.Debugf("repriced %d listings", len(m.listings))
}
