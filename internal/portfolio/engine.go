package portfolio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"papertrade/internal/database"
	"papertrade/internal/lock"
	"papertrade/internal/models"
	"papertrade/internal/service"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Ledger is the part of the store the engine works against.
type Ledger interface {
	Atomically(ctx context.Context, userID int64, fn func(database.LedgerTx) error) error
	GetCash(ctx context.Context, userID int64) (decimal.Decimal, error)
	ActiveHoldings(ctx context.Context, userID int64) ([]models.Holding, error)
	History(ctx context.Context, userID int64) ([]models.Transaction, error)
}

// Engine validates and executes trades and builds portfolio views. It keeps
// no per-user state of its own: holdings and cash are always read back from
// the ledger.
type Engine struct {
	ledger Ledger
	prices service.PriceProvider
	locks  lock.Locker
	log    *logrus.Logger
}

// NewEngine wires an engine. A nil locker falls back to an in-process one.
func NewEngine(l Ledger, p service.PriceProvider, locks lock.Locker, log *logrus.Logger) *Engine {
	if locks == nil {
		locks = lock.NewMutex()
	}
	return &Engine{ledger: l, prices: p, locks: locks, log: log}
}

// Buy debits shares × quoted price from the user's cash and records a buy.
func (e *Engine) Buy(ctx context.Context, userID int64, symbol string, shares int64) (int64, error) {
	const op = "buy"
	sym, err := validate(op, symbol, shares)
	if err != nil {
		return 0, err
	}
	quote, err := e.quote(ctx, op, sym)
	if err != nil {
		return 0, err
	}
	cost := quote.Price.Mul(decimal.NewFromInt(shares))

	var txID int64
	err = e.atomically(ctx, op, userID, func(tx database.LedgerTx) error {
		cash, err := tx.Cash(ctx)
		if err != nil {
			return err
		}
		owned, err := tx.SumShares(ctx, sym)
		if err != nil {
			return err
		}
		if owned > math.MaxInt64-shares {
			return &Error{Op: op, Kind: ErrValidation, Msg: fmt.Sprintf("%s: own %d, %d more would overflow", sym, owned, shares)}
		}
		if cash.LessThan(cost) {
			return &Error{Op: op, Kind: ErrInsufficientFunds, Msg: fmt.Sprintf("%s costs %s, cash is %s", sym, cost, cash)}
		}
		if _, err := tx.AdjustCash(ctx, cost.Neg()); err != nil {
			return err
		}
		txID, err = tx.AppendTransaction(ctx, sym, shares, quote.Price, models.Buy)
		return err
	})
	if err != nil {
		e.logRejection(op, userID, sym, shares, err)
		return 0, err
	}
	e.log.WithFields(logrus.Fields{"user_id": userID, "symbol": sym, "shares": shares, "price": quote.Price.String()}).Info("bought")
	return txID, nil
}

// Sell credits shares × quoted price to the user's cash and records a sell.
// Ownership is checked before the oracle is asked for a price.
func (e *Engine) Sell(ctx context.Context, userID int64, symbol string, shares int64) (int64, error) {
	const op = "sell"
	sym, err := validate(op, symbol, shares)
	if err != nil {
		return 0, err
	}

	var (
		txID  int64
		price decimal.Decimal
	)
	err = e.atomically(ctx, op, userID, func(tx database.LedgerTx) error {
		owned, err := tx.SumShares(ctx, sym)
		if err != nil {
			return err
		}
		if owned < shares {
			return &Error{Op: op, Kind: ErrInsufficientShares, Msg: fmt.Sprintf("%s: own %d, selling %d", sym, owned, shares)}
		}
		quote, err := e.quote(ctx, op, sym)
		if err != nil {
			return err
		}
		price = quote.Price
		if _, err := tx.AdjustCash(ctx, price.Mul(decimal.NewFromInt(shares))); err != nil {
			return err
		}
		txID, err = tx.AppendTransaction(ctx, sym, -shares, price, models.Sell)
		return err
	})
	if err != nil {
		e.logRejection(op, userID, sym, shares, err)
		return 0, err
	}
	e.log.WithFields(logrus.Fields{"user_id": userID, "symbol": sym, "shares": shares, "price": price.String()}).Info("sold")
	return txID, nil
}

// Quote returns the oracle's current quote for symbol.
func (e *Engine) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	const op = "quote"
	sym := service.NormalizeSymbol(symbol)
	if sym == "" {
		return models.Quote{}, &Error{Op: op, Kind: ErrValidation, Msg: "must provide symbol"}
	}
	q, err := e.quote(ctx, op, sym)
	if err != nil {
		return models.Quote{}, err
	}
	return *q, nil
}

// Cash returns the user's current cash balance.
func (e *Engine) Cash(ctx context.Context, userID int64) (decimal.Decimal, error) {
	c, err := e.ledger.GetCash(ctx, userID)
	if err != nil {
		return decimal.Zero, classify("cash", err)
	}
	return c, nil
}

// Holdings lists the user's active holdings, e.g. to offer them for sale.
func (e *Engine) Holdings(ctx context.Context, userID int64) ([]models.Holding, error) {
	const op = "holdings"
	if _, err := e.ledger.GetCash(ctx, userID); err != nil {
		return nil, classify(op, err)
	}
	res, err := e.ledger.ActiveHoldings(ctx, userID)
	if err != nil {
		return nil, classify(op, err)
	}
	return res, nil
}

// History returns every ledger row of the user, newest first.
func (e *Engine) History(ctx context.Context, userID int64) ([]models.Transaction, error) {
	const op = "history"
	if _, err := e.ledger.GetCash(ctx, userID); err != nil {
		return nil, classify(op, err)
	}
	res, err := e.ledger.History(ctx, userID)
	if err != nil {
		return nil, classify(op, err)
	}
	return res, nil
}

// ParseShares turns raw caller input into a share count.
func ParseShares(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, &Error{Op: "parse", Kind: ErrValidation, Msg: "must provide valid number of shares"}
	}
	if n <= 0 {
		return 0, &Error{Op: "parse", Kind: ErrValidation, Msg: "must provide positive number of shares"}
	}
	return n, nil
}

func validate(op, symbol string, shares int64) (string, error) {
	sym := service.NormalizeSymbol(symbol)
	if sym == "" {
		return "", &Error{Op: op, Kind: ErrValidation, Msg: "must provide symbol"}
	}
	if shares <= 0 {
		return "", &Error{Op: op, Kind: ErrValidation, Msg: "must provide positive number of shares"}
	}
	return sym, nil
}

// quote treats an unreachable oracle like one without a quote, unless the
// caller's context ended.
func (e *Engine) quote(ctx context.Context, op, sym string) (*models.Quote, error) {
	q, err := e.prices.Lookup(ctx, sym)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Op: op, Kind: ErrStorage, Err: ctx.Err()}
		}
		e.log.Warnf("%s: price lookup for %s failed: %v", op, sym, err)
		return nil, &Error{Op: op, Kind: ErrUnknownSymbol, Msg: sym, Err: err}
	}
	if q == nil || q.Price.IsNegative() {
		return nil, &Error{Op: op, Kind: ErrUnknownSymbol, Msg: sym}
	}
	return q, nil
}

// atomically holds the user's lock around one ledger transaction, so the
// precondition reads inside fn and the writes that follow cannot interleave
// with another trade of the same user.
func (e *Engine) atomically(ctx context.Context, op string, userID int64, fn func(database.LedgerTx) error) error {
	unlock, err := e.locks.Lock(ctx, "user:"+strconv.FormatInt(userID, 10))
	if err != nil {
		return &Error{Op: op, Kind: ErrStorage, Msg: "acquire user lock", Err: err}
	}
	defer unlock()
	if err := e.ledger.Atomically(ctx, userID, fn); err != nil {
		return classify(op, err)
	}
	return nil
}

func classify(op string, err error) error {
	var e *Error
	switch {
	case errors.As(err, &e):
		return e
	case errors.Is(err, database.ErrUserNotFound):
		return &Error{Op: op, Kind: ErrNotFound, Err: err}
	case errors.Is(err, database.ErrNegativeCash):
		return &Error{Op: op, Kind: ErrInsufficientFunds, Err: err}
	case errors.Is(err, database.ErrInvalidTransaction):
		return &Error{Op: op, Kind: ErrValidation, Err: err}
	}
	return &Error{Op: op, Kind: ErrStorage, Err: err}
}

func (e *Engine) logRejection(op string, userID int64, sym string, shares int64, err error) {
	entry := e.log.WithFields(logrus.Fields{"user_id": userID, "symbol": sym, "shares": shares})
	if IsRejection(err) {
		entry.Infof("%s rejected: %v", op, err)
		return
	}
	entry.Errorf("%s failed: %v", op, err)
}
