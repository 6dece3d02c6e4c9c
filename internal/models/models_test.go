package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestUSD(t *testing.T) {
	assert.Equal(t, "$10,000.00", USD(decimal.RequireFromString("10000")))
	assert.Equal(t, "$8,500.00", USD(decimal.RequireFromString("8500.00")))
	assert.Equal(t, "$0.13", USD(decimal.RequireFromString("0.125")))
	assert.Equal(t, "-$1.50", USD(decimal.RequireFromString("-1.5")))
}

func TestTransactionAmount(t *testing.T) {
	buy := Transaction{Shares: 10, Price: decimal.RequireFromString("150.00"), Type: Buy}
	sell := Transaction{Shares: -4, Price: decimal.RequireFromString("160.25"), Type: Sell}
	assert.True(t, buy.Amount().Equal(decimal.RequireFromString("1500")))
	assert.True(t, sell.Amount().Equal(decimal.RequireFromString("641")))
}

func TestTxTypeValid(t *testing.T) {
	assert.True(t, Buy.Valid())
	assert.True(t, Sell.Valid())
	assert.False(t, TxType("transfer").Valid())
}
