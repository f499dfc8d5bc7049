package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"riskgate/internal/domain/account"
	"riskgate/internal/metrics"
	"riskgate/pkg/errors"
)

// Compile-time check
var _ account.Store = (*Accounts)(nil)

// Accounts reads balances from the ledger database
type Accounts struct {
	db *sqlx.DB
}

// NewAccounts creates an account store
func NewAccounts(db *sqlx.DB) *Accounts {
	return &Accounts{db: db}
}

// Balance returns the current balance
func (a *Accounts) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	return a.read(ctx, "balance", `SELECT balance FROM accounts WHERE user_id = $1`, userID)
}

// PeakBalance returns the highest recorded balance
func (a *Accounts) PeakBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	return a.read(ctx, "peak_balance", `SELECT peak_balance FROM accounts WHERE user_id = $1`, userID)
}

func (a *Accounts) read(ctx context.Context, op, query string, userID uuid.UUID) (v decimal.Decimal, err error) {
	defer func(start time.Time) { metrics.RecordDBQuery("ledger", op, time.Since(start), err) }(time.Now())

	err = a.db.GetContext(ctx, &v, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, errors.Wrapf(errors.ErrNotFound, "account %s", userID)
	}
	if err != nil {
		return decimal.Zero, errors.Wrapf(errors.ErrDependencyUnavailable, "account %s: %v", userID, err)
	}
	return v, nil
}
