package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"papertrade/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Repo struct {
	db  *sqlx.DB
	log *logrus.Logger
	now func() time.Time
}

func New(db *sqlx.DB, log *logrus.Logger) *Repo {
	return &Repo{db: db, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (r *Repo) DB() *sqlx.DB {
	return r.db
}

// LedgerTx is the set of ledger operations available inside an atomic unit.
// Every operation is scoped to the user the unit was opened for.
type LedgerTx interface {
	UserID() int64
	Cash(ctx context.Context) (decimal.Decimal, error)
	AdjustCash(ctx context.Context, delta decimal.Decimal) (decimal.Decimal, error)
	SumShares(ctx context.Context, symbol string) (int64, error)
	AppendTransaction(ctx context.Context, symbol string, shares int64, price decimal.Decimal, typ models.TxType) (int64, error)
}

// Atomically runs fn inside one database transaction with the user's row
// locked. The transaction commits only if fn returns nil; any error, panic
// or context cancellation rolls back every write fn made.
func (r *Repo) Atomically(ctx context.Context, userID int64, fn func(LedgerTx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.log.Warnf("rollback for user %d failed: %v", userID, rbErr)
			}
		}
	}()

	q := `SELECT id FROM users WHERE id = ?`
	if isPostgres(tx) {
		q += ` FOR UPDATE`
	}
	var id int64
	if err = tx.GetContext(ctx, &id, tx.Rebind(q), userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lock user: %w", err)
	}

	if err = fn(&Tx{tx: tx, userID: userID, now: r.now}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Tx is the LedgerTx backed by an open *sqlx.Tx.
type Tx struct {
	tx     *sqlx.Tx
	userID int64
	now    func() time.Time
}

func (t *Tx) UserID() int64 { return t.userID }

func (t *Tx) Cash(ctx context.Context) (decimal.Decimal, error) {
	return getCash(ctx, t.tx, t.userID)
}

func (t *Tx) AdjustCash(ctx context.Context, delta decimal.Decimal) (decimal.Decimal, error) {
	return adjustCash(ctx, t.tx, t.userID, delta)
}

func (t *Tx) SumShares(ctx context.Context, symbol string) (int64, error) {
	return sumShares(ctx, t.tx, t.userID, symbol)
}

func (t *Tx) AppendTransaction(ctx context.Context, symbol string, shares int64, price decimal.Decimal, typ models.TxType) (int64, error) {
	return appendTransaction(ctx, t.tx, models.Transaction{
		UserID:    t.userID,
		Symbol:    symbol,
		Shares:    shares,
		Price:     price,
		Type:      typ,
		Timestamp: t.now(),
	})
}

func (r *Repo) GetCash(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return getCash(ctx, r.db, userID)
}

func (r *Repo) SumShares(ctx context.Context, userID int64, symbol string) (int64, error) {
	return sumShares(ctx, r.db, userID, symbol)
}

// ActiveHoldings aggregates the ledger into one row per symbol with a
// positive share count, ordered by symbol.
func (r *Repo) ActiveHoldings(ctx context.Context, userID int64) ([]models.Holding, error) {
	res := []models.Holding{}
	err := r.db.SelectContext(ctx, &res, r.db.Rebind(`
		SELECT symbol, SUM(shares) AS total_shares
		FROM transactions
		WHERE user_id = ?
		GROUP BY symbol
		HAVING SUM(shares) > 0
		ORDER BY symbol`), userID)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// History returns every transaction of the user, newest first.
func (r *Repo) History(ctx context.Context, userID int64) ([]models.Transaction, error) {
	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(`
		SELECT id, user_id, symbol, shares, price, type, timestamp
		FROM transactions
		WHERE user_id = ?
		ORDER BY timestamp DESC, id DESC`), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := rows.StructScan(&t); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func getCash(ctx context.Context, q sqlx.ExtContext, userID int64) (decimal.Decimal, error) {
	var cash decimal.Decimal
	if err := sqlx.GetContext(ctx, q, &cash, q.Rebind(`SELECT cash FROM users WHERE id = ?`), userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ErrUserNotFound
		}
		return decimal.Zero, err
	}
	return cash, nil
}

// adjustCash writes the new balance computed in Go so the stored value is
// exact on both dialects.
func adjustCash(ctx context.Context, q sqlx.ExtContext, userID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	cur, err := getCash(ctx, q, userID)
	if err != nil {
		return decimal.Zero, err
	}
	next := cur.Add(delta)
	if next.IsNegative() {
		return cur, ErrNegativeCash
	}
	res, err := q.ExecContext(ctx, q.Rebind(`UPDATE users SET cash = ? WHERE id = ?`), next.String(), userID)
	if err != nil {
		return cur, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return cur, ErrUserNotFound
	}
	return next, nil
}

func sumShares(ctx context.Context, q sqlx.ExtContext, userID int64, symbol string) (int64, error) {
	var total int64
	err := sqlx.GetContext(ctx, q, &total, q.Rebind(`
		SELECT COALESCE(SUM(shares), 0)
		FROM transactions
		WHERE user_id = ? AND symbol = ?`), userID, symbol)
	return total, err
}

func appendTransaction(ctx context.Context, q sqlx.ExtContext, t models.Transaction) (int64, error) {
	if err := validateTransaction(t); err != nil {
		return 0, err
	}
	var id int64
	err := sqlx.GetContext(ctx, q, &id, q.Rebind(`
		INSERT INTO transactions (user_id, symbol, shares, price, type, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`),
		t.UserID, t.Symbol, t.Shares, t.Price.String(), string(t.Type), t.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	return id, nil
}

func validateTransaction(t models.Transaction) error {
	switch {
	case strings.TrimSpace(t.Symbol) == "":
		return fmt.Errorf("%w: empty symbol", ErrInvalidTransaction)
	case t.Shares == 0:
		return fmt.Errorf("%w: zero shares", ErrInvalidTransaction)
	case t.Price.IsNegative():
		return fmt.Errorf("%w: negative price %s", ErrInvalidTransaction, t.Price)
	case t.Type == models.Buy && t.Shares < 0, t.Type == models.Sell && t.Shares > 0:
		return fmt.Errorf("%w: %s of %d shares", ErrInvalidTransaction, t.Type, t.Shares)
	case !t.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTransaction, t.Type)
	}
	return nil
}
