package position

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position is a read-only snapshot of an open position owned by the ledger.
// Quantity is signed: positive for long, negative for short.
type Position struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	UserID     uuid.UUID       `db:"user_id" json:"user_id"`
	Symbol     string          `db:"symbol" json:"symbol"`
	Quantity   decimal.Decimal `db:"quantity" json:"quantity"`
	EntryPrice decimal.Decimal `db:"entry_price" json:"entry_price"`
	CurrentPnL decimal.Decimal `db:"current_pnl" json:"current_pnl"`
	OpenedAt   time.Time       `db:"opened_at" json:"opened_at"`
}

// Side returns long or short
func (p Position) Side() Side {
	if p.Quantity.IsNegative() {
		return SideShort
	}
	return SideLong
}

// Notional is |quantity| x price
func (p Position) Notional(price decimal.Decimal) decimal.Decimal {
	return p.Quantity.Abs().Mul(price)
}

// PnLFraction returns the signed unrealised return per unit of entry value,
// independent of position size. Longs gain when price rises, shorts when it falls.
func (p Position) PnLFraction(price decimal.Decimal) decimal.Decimal {
	if !p.EntryPrice.IsPositive() || p.Quantity.IsZero() {
		return decimal.Zero
	}
	move := price.Sub(p.EntryPrice).Div(p.EntryPrice)
	if p.Quantity.IsNegative() {
		return move.Neg()
	}
	return move
}

// Side of a position or order
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// CloseRequest asks the ledger to close a position
type CloseRequest struct {
	PositionID  uuid.UUID       `json:"position_id"`
	UserID      uuid.UUID       `json:"user_id"`
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	Reason      string          `json:"reason"`
	RequestedAt time.Time       `json:"requested_at"`
}
