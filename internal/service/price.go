package service

import (
	"context"
	"strings"

	"papertrade/internal/models"
)

// PriceProvider is the price oracle. Lookup returns a nil quote and a nil
// error when the symbol is unknown; a non-nil error means the oracle itself
// could not be reached.
type PriceProvider interface {
	Lookup(ctx context.Context, symbol string) (*models.Quote, error)
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
