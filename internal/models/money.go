package models

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// USD formats an amount the way the portfolio pages show it, e.g. $1,234.56.
func USD(amount decimal.Decimal) string {
	cur := money.GetCurrency(money.USD)
	factor := decimal.New(1, int32(cur.Fraction))
	minor := amount.Mul(factor).Round(0).IntPart()
	return money.New(minor, money.USD).Display()
}
