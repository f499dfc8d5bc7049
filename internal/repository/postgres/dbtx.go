package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"riskgate/internal/metrics"
	"riskgate/pkg/errors"
)

// DBTX is a common interface for *sqlx.DB and *sqlx.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

const uniqueViolation = "23505"

// translate maps driver errors onto the engine's error taxonomy
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(errors.ErrNotFound, what)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return errors.Wrap(errors.ErrAlreadyExists, what)
	}
	if errors.Is(err, context.Canceled) {
		return errors.Wrap(err, what)
	}
	return errors.Wrapf(errors.ErrTransientStore, "%s: %v", what, err)
}

func observe(operation string, start time.Time, err error) {
	metrics.RecordDBQuery("postgres", operation, time.Since(start), err)
}
