package market

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceFeed supplies the latest price and the current volatility
// (standard deviation of recent returns, as a fraction) for a symbol.
// Implementations return errors.ErrPriceUnavailable when a symbol has no data.
type PriceFeed interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	Volatility(ctx context.Context, symbol string) (decimal.Decimal, error)
}
