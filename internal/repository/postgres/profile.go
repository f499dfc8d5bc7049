package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"riskgate/internal/domain/profile"
)

// Compile-time check
var _ profile.Repository = (*ProfileRepository)(nil)

const profileColumns = `id, user_id, tier, plan_tier,
	max_daily_loss_fraction, max_position_size_fraction, max_concurrent_trades,
	stop_loss_fraction, take_profit_fraction, max_drawdown_fraction,
	risk_score, status, version, created_at, updated_at`

// ProfileRepository implements profile.Repository using sqlx
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetActive retrieves the active profile version of a user
func (r *ProfileRepository) GetActive(ctx context.Context, userID uuid.UUID) (p *profile.RiskProfile, err error) {
	defer func(start time.Time) { observe("profile_get_active", start, err) }(time.Now())

	query := `SELECT ` + profileColumns + `
		FROM risk_profiles
		WHERE user_id = $1 AND status = 'active'`

	var out profile.RiskProfile
	if err = r.db.GetContext(ctx, &out, query, userID); err != nil {
		return nil, translate(err, "get active risk profile")
	}
	return &out, nil
}

// Save supersedes the active version and inserts the new one in one transaction
func (r *ProfileRepository) Save(ctx context.Context, p *profile.RiskProfile) (err error) {
	defer func(start time.Time) { observe("profile_save", start, err) }(time.Now())

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return translate(err, "begin profile save")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		UPDATE risk_profiles
		SET status = 'superseded', updated_at = $2
		WHERE user_id = $1 AND status = 'active'`,
		p.UserID, p.CreatedAt,
	)
	if err != nil {
		return translate(err, "supersede risk profile")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO risk_profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'active', $12, $13, $14)`,
		p.ID, p.UserID, p.Tier, p.PlanTier,
		p.MaxDailyLossFraction, p.MaxPositionSizeFraction, p.MaxConcurrentTrades,
		p.StopLossFraction, p.TakeProfitFraction, p.MaxDrawdownFraction,
		p.RiskScore, p.Version, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return translate(err, "insert risk profile")
	}

	if err = tx.Commit(); err != nil {
		return translate(err, "commit risk profile")
	}
	return nil
}

// History returns all versions, newest first
func (r *ProfileRepository) History(ctx context.Context, userID uuid.UUID) (out []*profile.RiskProfile, err error) {
	defer func(start time.Time) { observe("profile_history", start, err) }(time.Now())

	query := `SELECT ` + profileColumns + `
		FROM risk_profiles
		WHERE user_id = $1
		ORDER BY version DESC`

	if err = r.db.SelectContext(ctx, &out, query, userID); err != nil {
		return nil, translate(err, "list risk profiles")
	}
	return out, nil
}
