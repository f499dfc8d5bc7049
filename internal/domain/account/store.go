package account

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store exposes the account balances the engine evaluates against
type Store interface {
	Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	// PeakBalance is the highest balance seen, used for drawdown
	PeakBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
}

// Drawdown returns (peak - balance) / peak, zero when there is no peak
func Drawdown(balance, peak decimal.Decimal) decimal.Decimal {
	if !peak.IsPositive() || balance.GreaterThanOrEqual(peak) {
		return decimal.Zero
	}
	return peak.Sub(balance).Div(peak)
}
