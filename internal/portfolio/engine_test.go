package portfolio

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"papertrade/internal/database"
	"papertrade/internal/database/dbtest"
	"papertrade/internal/lock"
	"papertrade/internal/models"
	"papertrade/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	repo   *database.Repo
	market *service.MarketSim
	engine *Engine
	user   int64
}

func setupEngine(t *testing.T, cash string) *fixture {
	repo := dbtest.NewRepo(t)
	market := service.NewMarketSim(map[string]service.Listing{
		"AAPL": {Name: "Apple Inc.", Price: dec("150.00")},
		"MSFT": {Name: "Microsoft Corporation", Price: dec("300.00")},
	}, dbtest.Logger())
	uid, err := repo.CreateUser(context.Background(), "alice", "hash", dec(cash))
	require.NoError(t, err)
	return &fixture{
		repo:   repo,
		market: market,
		engine: NewEngine(repo, market, nil, dbtest.Logger()),
		user:   uid,
	}
}

func (f *fixture) cash(t *testing.T) decimal.Decimal {
	c, err := f.repo.GetCash(context.Background(), f.user)
	require.NoError(t, err)
	return c
}

func (f *fixture) txCount(t *testing.T) int {
	s, err := f.repo.Stats(context.Background())
	require.NoError(t, err)
	return s.Transactions
}

func TestBuySellScenario(t *testing.T) {
	f := setupEngine(t, "10000.00")
	ctx := context.Background()

	_, err := f.engine.Buy(ctx, f.user, "AAPL", 10)
	require.NoError(t, err)
	assert.Equal(t, "8500", f.cash(t).String())
	holdings, err := f.engine.Holdings(ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, []models.Holding{{Symbol: "AAPL", Shares: 10}}, holdings)

	_, err = f.engine.Sell(ctx, f.user, "AAPL", 15)
	assert.ErrorIs(t, err, ErrInsufficientShares)
	assert.Equal(t, "8500", f.cash(t).String())

	f.market.Set("AAPL", dec("160.00"))
	_, err = f.engine.Sell(ctx, f.user, "AAPL", 10)
	require.NoError(t, err)
	assert.Equal(t, "10100", f.cash(t).String())
	holdings, err = f.engine.Holdings(ctx, f.user)
	require.NoError(t, err)
	assert.Empty(t, holdings)
}

func TestBuy_UnknownSymbol(t *testing.T) {
	f := setupEngine(t, "10000.00")
	_, err := f.engine.Buy(context.Background(), f.user, "ZZZZ", 5)
	assert.ErrorIs(t, err, ErrUnknownSymbol)
	assert.Equal(t, "10000", f.cash(t).String())
	assert.Equal(t, 0, f.txCount(t))
}

func TestBuy_NormalizesSymbol(t *testing.T) {
	f := setupEngine(t, "10000.00")
	ctx := context.Background()
	_, err := f.engine.Buy(ctx, f.user, " aapl", 1)
	require.NoError(t, err)
	_, err = f.engine.Sell(ctx, f.user, "Aapl ", 1)
	require.NoError(t, err)

	hist, err := f.engine.History(ctx, f.user)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "AAPL", hist[0].Symbol)
	assert.Equal(t, "AAPL", hist[1].Symbol)
}

func TestBuy_InsufficientFunds(t *testing.T) {
	f := setupEngine(t, "1499.99")
	_, err := f.engine.Buy(context.Background(), f.user, "AAPL", 10)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.True(t, IsRejection(err))
	assert.Equal(t, "1499.99", f.cash(t).String())
	assert.Equal(t, 0, f.txCount(t))
}

func TestBuy_SpendsExactBalance(t *testing.T) {
	f := setupEngine(t, "1500.00")
	_, err := f.engine.Buy(context.Background(), f.user, "AAPL", 10)
	require.NoError(t, err)
	assert.True(t, f.cash(t).IsZero())
}

func TestTrade_Validation(t *testing.T) {
	f := setupEngine(t, "10000.00")
	ctx := context.Background()
	cases := []struct {
		symbol string
		shares int64
	}{
		{"", 1},
		{"   ", 1},
		{"AAPL", 0},
		{"AAPL", -3},
	}
	for _, c := range cases {
		_, err := f.engine.Buy(ctx, f.user, c.symbol, c.shares)
		assert.ErrorIs(t, err, ErrValidation, "buy %+v", c)
		_, err = f.engine.Sell(ctx, f.user, c.symbol, c.shares)
		assert.ErrorIs(t, err, ErrValidation, "sell %+v", c)
	}
	assert.Equal(t, 0, f.txCount(t))
}

func TestTrade_UnknownUser(t *testing.T) {
	f := setupEngine(t, "10000.00")
	ctx := context.Background()
	_, err := f.engine.Buy(ctx, 9999, "AAPL", 1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.engine.Sell(ctx, 9999, "AAPL", 1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.engine.Portfolio(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.engine.History(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSell_UnknownSymbolAfterOwnershipCheck(t *testing.T) {
	f := setupEngine(t, "10000.00")
	ctx := context.Background()
	_, err := f.engine.Buy(ctx, f.user, "MSFT", 2)
	require.NoError(t, err)

	_, err = f.engine.Sell(ctx, f.user, "ZZZZ", 1)
	assert.ErrorIs(t, err, ErrInsufficientShares)

	f.market.Delist("MSFT")
	_, err = f.engine.Sell(ctx, f.user, "MSFT", 1)
	assert.ErrorIs(t, err, ErrUnknownSymbol)
	assert.Equal(t, "9400", f.cash(t).String())
	assert.Equal(t, 1, f.txCount(t))
}

func TestTrade_CancelledContext(t *testing.T) {
	f := setupEngine(t, "10000.00")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.engine.Buy(ctx, f.user, "AAPL", 1)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "10000", f.cash(t).String())
	assert.Equal(t, 0, f.txCount(t))
}

func TestPortfolio(t *testing.T) {
	f := setupEngine(t, "10000.00")
	ctx := context.Background()
	_, err := f.engine.Buy(ctx, f.user, "AAPL", 10)
	require.NoError(t, err)
	_, err = f.engine.Buy(ctx, f.user, "MSFT", 5)
	require.NoError(t, err)

	f.market.Set("AAPL", dec("155.50"))
	v, err := f.engine.Portfolio(ctx, f.user)
	require.NoError(t, err)
	require.Len(t, v.Positions, 2)
	assert.Equal(t, "AAPL", v.Positions[0].Symbol)
	assert.Equal(t, "Apple Inc.", v.Positions[0].Name)
	assert.Equal(t, "1555", v.Positions[0].Total.String())
	assert.Equal(t, "1500", v.Positions[1].Total.String())
	assert.Equal(t, "7000", v.Cash.String())
	assert.Equal(t, "3055", v.HoldingsValue.String())
	assert.Equal(t, "10055", v.Total.String())
	assert.Empty(t, v.Unpriced)

	f.market.Delist("MSFT")
	v, err = f.engine.Portfolio(ctx, f.user)
	require.NoError(t, err)
	require.Len(t, v.Positions, 1)
	assert.Equal(t, []models.Holding{{Symbol: "MSFT", Shares: 5}}, v.Unpriced)
	assert.Equal(t, "8555", v.Total.String())
}

func TestPortfolio_NegativeQuoteIsUnpriced(t *testing.T) {
	f := setupEngine(t, "10000.00")
	ctx := context.Background()
	_, err := f.engine.Buy(ctx, f.user, "AAPL", 10)
	require.NoError(t, err)

	f.market.Set("AAPL", dec("-5"))
	_, err = f.engine.Sell(ctx, f.user, "AAPL", 1)
	assert.ErrorIs(t, err, ErrUnknownSymbol)

	v, err := f.engine.Portfolio(ctx, f.user)
	require.NoError(t, err)
	assert.Empty(t, v.Positions)
	assert.Equal(t, []models.Holding{{Symbol: "AAPL", Shares: 10}}, v.Unpriced)
	assert.True(t, v.HoldingsValue.IsZero())
	assert.Equal(t, "8500", v.Total.String())
}

func TestBuy_ShareCountOverflow(t *testing.T) {
	f := setupEngine(t, "10000.00")
	ctx := context.Background()
	f.market.Set("FREE", decimal.Zero)

	_, err := f.engine.Buy(ctx, f.user, "FREE", math.MaxInt64)
	require.NoError(t, err)
	_, err = f.engine.Buy(ctx, f.user, "FREE", 1)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 1, f.txCount(t))

	holdings, err := f.engine.Holdings(ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, []models.Holding{{Symbol: "FREE", Shares: math.MaxInt64}}, holdings)
	_, err = f.engine.Sell(ctx, f.user, "FREE", 1)
	assert.NoError(t, err)
}

func TestPortfolio_Empty(t *testing.T) {
	f := setupEngine(t, "10000.00")
	v, err := f.engine.Portfolio(context.Background(), f.user)
	require.NoError(t, err)
	assert.Empty(t, v.Positions)
	assert.Equal(t, "10000", v.Total.String())
}

func TestHistory_RepeatableRead(t *testing.T) {
	f := setupEngine(t, "10000.00")
	ctx := context.Background()
	for _, sym := range []string{"AAPL", "MSFT", "AAPL"} {
		_, err := f.engine.Buy(ctx, f.user, sym, 1)
		require.NoError(t, err)
	}
	first, err := f.engine.History(ctx, f.user)
	require.NoError(t, err)
	second, err := f.engine.History(ctx, f.user)
	require.NoError(t, err)
	assert.Len(t, first, 3)
	assert.Equal(t, first, second)
	assert.Greater(t, first[0].ID, first[2].ID)
}

func TestQuote(t *testing.T) {
	f := setupEngine(t, "0")
	q, err := f.engine.Quote(context.Background(), "msft")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", q.Symbol)
	assert.Equal(t, "300", q.Price.String())

	_, err = f.engine.Quote(context.Background(), "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.engine.Quote(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestParseShares(t *testing.T) {
	n, err := ParseShares(" 12 ")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	for _, in := range []string{"", "abc", "1.5", "0", "-4", "9999999999999999999999"} {
		_, err := ParseShares(in)
		assert.ErrorIs(t, err, ErrValidation, in)
	}
}

// failingLedger injects a store failure after cash was adjusted and before
// the transaction row is appended.
type failingLedger struct {
	*database.Repo
}

type failingTx struct {
	database.LedgerTx
}

var errDiskFull = errors.New("disk full")

func (f failingTx) AppendTransaction(ctx context.Context, symbol string, shares int64, price decimal.Decimal, typ models.TxType) (int64, error) {
	return 0, errDiskFull
}

func (l failingLedger) Atomically(ctx context.Context, userID int64, fn func(database.LedgerTx) error) error {
	return l.Repo.Atomically(ctx, userID, func(tx database.LedgerTx) error {
		return fn(failingTx{tx})
	})
}

func TestTrade_StoreFailureRollsBack(t *testing.T) {
	f := setupEngine(t, "10000.00")
	ctx := context.Background()
	_, err := f.engine.Buy(ctx, f.user, "AAPL", 10)
	require.NoError(t, err)
	before := f.cash(t)

	broken := NewEngine(failingLedger{f.repo}, f.market, nil, dbtest.Logger())
	_, err = broken.Buy(ctx, f.user, "AAPL", 5)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, errDiskFull)
	assert.False(t, IsRejection(err))
	_, err = broken.Sell(ctx, f.user, "AAPL", 5)
	assert.ErrorIs(t, err, ErrStorage)

	assert.True(t, before.Equal(f.cash(t)))
	assert.Equal(t, 1, f.txCount(t))
}

func concurrentSells(t *testing.T, f *fixture, n int) {
	ctx := context.Background()
	_, err := f.engine.Buy(ctx, f.user, "AAPL", 10)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Sell(ctx, f.user, "AAPL", 10)
		}(i)
	}
	wg.Wait()

	ok, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientShares):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, rejected)

	total, err := f.repo.SumShares(ctx, f.user, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Equal(t, "10000", f.cash(t).String())
}

func TestSell_ConcurrentOnlyOneSucceeds(t *testing.T) {
	concurrentSells(t, setupEngine(t, "10000.00"), 16)
}

func TestSell_ConcurrentWithRedisLock(t *testing.T) {
	f := setupEngine(t, "10000.00")
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	f.engine = NewEngine(f.repo, f.market, lock.NewRedis(client, time.Second, dbtest.Logger()), dbtest.Logger())
	concurrentSells(t, f, 8)
}

// noLock leaves serialisation to the database transaction alone.
type noLock struct{}

func (noLock) Lock(context.Context, string) (func(), error) { return func() {}, nil }

func TestSell_ConcurrentPostgresRowLock(t *testing.T) {
	repo := dbtest.Postgres(t)
	market := service.NewMarketSim(map[string]service.Listing{"AAPL": {Price: dec("150")}}, dbtest.Logger())
	uid, err := repo.CreateUser(context.Background(), "pg-concurrent", "hash", dec("10000"))
	require.NoError(t, err)
	f := &fixture{repo: repo, market: market, engine: NewEngine(repo, market, noLock{}, dbtest.Logger()), user: uid}
	concurrentSells(t, f, 8)
}

// TestCashConservation replays random trades at moving prices and checks the
// balance against an independent running total after every step.
func TestCashConservation(t *testing.T) {
	f := setupEngine(t, "25000.00")
	ctx := context.Background()
	rnd := rand.New(rand.NewSource(7))
	symbols := []string{"AAPL", "MSFT"}
	expected := dec("25000.00")

	for i := 0; i < 150; i++ {
		sym := symbols[rnd.Intn(len(symbols))]
		price := decimal.New(int64(5000+rnd.Intn(30000)), -2)
		f.market.Set(sym, price)
		shares := int64(1 + rnd.Intn(12))
		amount := price.Mul(decimal.NewFromInt(shares))

		if rnd.Intn(3) == 0 {
			_, err := f.engine.Sell(ctx, f.user, sym, shares)
			if err == nil {
				expected = expected.Add(amount)
			} else {
				require.ErrorIs(t, err, ErrInsufficientShares)
			}
		} else {
			_, err := f.engine.Buy(ctx, f.user, sym, shares)
			if err == nil {
				expected = expected.Sub(amount)
			} else {
				require.ErrorIs(t, err, ErrInsufficientFunds)
			}
		}

		require.True(t, expected.Equal(f.cash(t)), "step %d: expected %s, got %s", i, expected, f.cash(t))
		for _, s := range symbols {
			total, err := f.repo.SumShares(ctx, f.user, s)
			require.NoError(t, err)
			require.GreaterOrEqual(t, total, int64(0))
		}
	}

	violations, err := f.repo.Audit(ctx)
	require.NoError(t, err)
	assert.Empty(t, violations)
}
