package database

import (
	"context"
	"fmt"

	"papertrade/internal/models"

	"github.com/shopspring/decimal"
)

// Audit scans the whole store for rows and balances that break the ledger
// invariants. An empty result means the books are consistent.
func (r *Repo) Audit(ctx context.Context) ([]Violation, error) {
	res := []Violation{}

	users, err := r.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Cash.IsNegative() {
			res = append(res, Violation{UserID: u.ID, Reason: fmt.Sprintf("negative cash %s", u.Cash)})
		}
	}

	var negative []struct {
		UserID int64  `db:"user_id"`
		Symbol string `db:"symbol"`
		Total  int64  `db:"total_shares"`
	}
	if err := r.db.SelectContext(ctx, &negative, `
		SELECT user_id, symbol, SUM(shares) AS total_shares
		FROM transactions
		GROUP BY user_id, symbol
		HAVING SUM(shares) < 0
		ORDER BY user_id, symbol`); err != nil {
		return nil, err
	}
	for _, n := range negative {
		res = append(res, Violation{UserID: n.UserID, Symbol: n.Symbol, Reason: fmt.Sprintf("negative holding %d", n.Total)})
	}

	rows, err := r.db.QueryxContext(ctx, `SELECT id, user_id, symbol, shares, price, type FROM transactions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		// price is read as text so a corrupt value is reported, not skipped
		var t struct {
			ID     int64         `db:"id"`
			UserID int64         `db:"user_id"`
			Symbol string        `db:"symbol"`
			Shares int64         `db:"shares"`
			Price  string        `db:"price"`
			Type   models.TxType `db:"type"`
		}
		if err := rows.StructScan(&t); err != nil {
			res = append(res, Violation{UserID: t.UserID, TxID: t.ID, Reason: fmt.Sprintf("unreadable row: %v", err)})
			continue
		}
		price, err := decimal.NewFromString(t.Price)
		if err != nil {
			res = append(res, Violation{UserID: t.UserID, TxID: t.ID, Reason: fmt.Sprintf("unreadable row: price %q", t.Price)})
			continue
		}
		err = validateTransaction(models.Transaction{Symbol: t.Symbol, Shares: t.Shares, Price: price, Type: t.Type})
		if err != nil {
			res = append(res, Violation{UserID: t.UserID, TxID: t.ID, Reason: err.Error()})
		}
	}
	return res, rows.Err()
}

func (r *Repo) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := r.db.GetContext(ctx, &s, `
		SELECT
			(SELECT COUNT(*) FROM users) AS users,
			(SELECT COUNT(*) FROM transactions) AS transactions`)
	return s, err
}
