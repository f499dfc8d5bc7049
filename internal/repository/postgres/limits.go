package postgres

import (
	"context"
	"time"

	"riskgate/internal/domain/limits"
)

// Compile-time check
var _ limits.Repository = (*LimitRepository)(nil)

// LimitRepository persists daily limit snapshots
type LimitRepository struct {
	db DBTX
}

// NewLimitRepository creates a new limit repository
func NewLimitRepository(db DBTX) *LimitRepository {
	return &LimitRepository{db: db}
}

// Save upserts a snapshot. A row with a newer or equal version is left alone,
// so writes that arrive out of order cannot roll usage back.
func (r *LimitRepository) Save(ctx context.Context, l *limits.DynamicLimit) (err error) {
	defer func(start time.Time) { observe("limit_save", start, err) }(time.Now())

	query := `
		INSERT INTO dynamic_limits (
			user_id, limit_type, current_value, limit_value,
			usage_percentage, reset_at, version, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		ON CONFLICT (user_id, limit_type) DO UPDATE SET
			current_value = EXCLUDED.current_value,
			limit_value = EXCLUDED.limit_value,
			usage_percentage = EXCLUDED.usage_percentage,
			reset_at = EXCLUDED.reset_at,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
		WHERE dynamic_limits.version < EXCLUDED.version`

	_, err = r.db.ExecContext(ctx, query,
		l.UserID, l.LimitType, l.CurrentValue, l.LimitValue,
		l.UsagePercentage, l.ResetAt, l.Version, l.UpdatedAt,
	)
	return translate(err, "save dynamic limit")
}

// List returns every stored snapshot
func (r *LimitRepository) List(ctx context.Context) (out []*limits.DynamicLimit, err error) {
	defer func(start time.Time) { observe("limit_list", start, err) }(time.Now())

	query := `
		SELECT user_id, limit_type, current_value, limit_value,
			usage_percentage, reset_at, version, updated_at
		FROM dynamic_limits`

	if err = r.db.SelectContext(ctx, &out, query); err != nil {
		return nil, translate(err, "list dynamic limits")
	}
	return out, nil
}
