package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"riskgate/internal/domain/position"
	"riskgate/internal/metrics"
	"riskgate/pkg/errors"
)

// Compile-time check
var _ position.Ledger = (*Ledger)(nil)

// CloseRequester delivers close commands to the ledger service.
// Implemented by *events.Publisher.
type CloseRequester interface {
	PublishCloseRequest(ctx context.Context, req position.CloseRequest) error
}

// Ledger reads open positions from the ledger database. Close commands go
// through the requester when one is set, otherwise they are written to
// the positions table for the ledger to pick up.
type Ledger struct {
	db        *sqlx.DB
	requester CloseRequester
}

// New creates a ledger adapter. requester may be nil.
func New(db *sqlx.DB, requester CloseRequester) *Ledger {
	return &Ledger{db: db, requester: requester}
}

// OpenPositions returns the user's open positions
func (l *Ledger) OpenPositions(ctx context.Context, userID uuid.UUID) (out []position.Position, err error) {
	defer func(start time.Time) { metrics.RecordDBQuery("ledger", "open_positions", time.Since(start), err) }(time.Now())

	query := `
		SELECT id, user_id, symbol, quantity, entry_price,
			unrealized_pnl AS current_pnl, opened_at
		FROM positions
		WHERE user_id = $1 AND status = 'open'
		ORDER BY opened_at`

	if err = l.db.SelectContext(ctx, &out, query, userID); err != nil {
		return nil, errors.Wrapf(errors.ErrDependencyUnavailable, "position ledger: %v", err)
	}
	return out, nil
}

// ClosePosition requests a close. Requesting twice is harmless.
func (l *Ledger) ClosePosition(ctx context.Context, req position.CloseRequest) (err error) {
	if l.requester != nil {
		return l.requester.PublishCloseRequest(ctx, req)
	}

	defer func(start time.Time) { metrics.RecordDBQuery("ledger", "close_request", time.Since(start), err) }(time.Now())

	query := `
		UPDATE positions
		SET close_requested_at = $3, close_reason = $4
		WHERE id = $1 AND user_id = $2 AND status = 'open' AND close_requested_at IS NULL`

	res, err := l.db.ExecContext(ctx, query, req.PositionID, req.UserID, req.RequestedAt, req.Reason)
	if err != nil {
		return errors.Wrapf(errors.ErrDependencyUnavailable, "request close: %v", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	// nothing updated: either already requested or the position is gone
	var status string
	err = l.db.GetContext(ctx, &status, `SELECT status FROM positions WHERE id = $1 AND user_id = $2`, req.PositionID, req.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(errors.ErrNotFound, "position %s", req.PositionID)
	}
	if err != nil {
		return errors.Wrapf(errors.ErrDependencyUnavailable, "check position: %v", err)
	}
	return nil
}
