package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TxType string

const (
	Buy  TxType = "buy"
	Sell TxType = "sell"
)

// Valid reports whether t is one of the two ledger entry types.
func (t TxType) Valid() bool {
	return t == Buy || t == Sell
}

type User struct {
	ID             int64           `db:"id" json:"id"`
	Username       string          `db:"username" json:"username"`
	CredentialHash string          `db:"hash" json:"-"`
	Cash           decimal.Decimal `db:"cash" json:"cash"`
}

// Transaction is one immutable ledger row. Shares is signed: positive for
// buys, negative for sells.
type Transaction struct {
	ID        int64           `db:"id" json:"id"`
	UserID    int64           `db:"user_id" json:"user_id"`
	Symbol    string          `db:"symbol" json:"symbol"`
	Shares    int64           `db:"shares" json:"shares"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Type      TxType          `db:"type" json:"type"`
	Timestamp time.Time       `db:"timestamp" json:"timestamp"`
}

// Amount is the absolute cash value moved by the transaction.
func (t Transaction) Amount() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Shares)).Abs()
}

// Holding is derived from the ledger and never stored.
type Holding struct {
	Symbol string `db:"symbol" json:"symbol"`
	Shares int64  `db:"total_shares" json:"shares"`
}

type Quote struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name,omitempty"`
	Price  decimal.Decimal `json:"price"`
}
