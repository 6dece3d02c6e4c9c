package portfolio

import (
	"context"

	"papertrade/internal/models"

	"github.com/shopspring/decimal"
)

type Position struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name,omitempty"`
	Shares int64           `json:"shares"`
	Price  decimal.Decimal `json:"price"`
	Total  decimal.Decimal `json:"total"`
}

// View is a point-in-time valuation. Holdings the oracle could not price are
// listed in Unpriced and left out of HoldingsValue and Total.
type View struct {
	UserID        int64            `json:"user_id"`
	Positions     []Position       `json:"positions"`
	Unpriced      []models.Holding `json:"unpriced,omitempty"`
	Cash          decimal.Decimal  `json:"cash"`
	HoldingsValue decimal.Decimal  `json:"holdings_value"`
	Total         decimal.Decimal  `json:"total"`
}

// Portfolio values every active holding at the oracle's current price.
func (e *Engine) Portfolio(ctx context.Context, userID int64) (View, error) {
	const op = "portfolio"
	cash, err := e.ledger.GetCash(ctx, userID)
	if err != nil {
		return View{}, classify(op, err)
	}
	holdings, err := e.ledger.ActiveHoldings(ctx, userID)
	if err != nil {
		return View{}, classify(op, err)
	}

	v := View{UserID: userID, Positions: []Position{}, Cash: cash, HoldingsValue: decimal.Zero}
	for _, h := range holdings {
		q, err := e.prices.Lookup(ctx, h.Symbol)
		if err != nil && ctx.Err() != nil {
			return View{}, &Error{Op: op, Kind: ErrStorage, Err: ctx.Err()}
		}
		if err != nil || q == nil || q.Price.IsNegative() {
			e.log.Warnf("portfolio: no price for %s, leaving %d shares out of user %d's total", h.Symbol, h.Shares, userID)
			v.Unpriced = append(v.Unpriced, h)
			continue
		}
		total := q.Price.Mul(decimal.NewFromInt(h.Shares))
		v.Positions = append(v.Positions, Position{Symbol: h.Symbol, Name: q.Name, Shares: h.Shares, Price: q.Price, Total: total})
		v.HoldingsValue = v.HoldingsValue.Add(total)
	}
	v.Total = v.HoldingsValue.Add(cash)
	return v, nil
}
