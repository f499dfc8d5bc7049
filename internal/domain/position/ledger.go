package position

import (
	"context"

	"github.com/google/uuid"
)

// Ledger is the position store owned by the trading platform.
// The risk engine reads snapshots and issues close commands, it never mutates positions directly.
type Ledger interface {
	OpenPositions(ctx context.Context, userID uuid.UUID) ([]Position, error)
	ClosePosition(ctx context.Context, req CloseRequest) error
}
