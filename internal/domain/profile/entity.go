package profile

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"riskgate/pkg/errors"
)

// Tier is the risk tolerance tier of a profile
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
	TierCustom Tier = "custom" // any fraction was changed by hand
)

// Status marks whether a profile version is the one in force
type Status string

const (
	StatusActive     Status = "active"
	StatusSuperseded Status = "superseded"
)

// RiskProfile holds the per-user admission thresholds.
// Every update produces a new version; only one version per user is active.
type RiskProfile struct {
	ID       uuid.UUID `db:"id" json:"id"`
	UserID   uuid.UUID `db:"user_id" json:"user_id"`
	Tier     Tier      `db:"tier" json:"tier"`
	PlanTier string    `db:"plan_tier" json:"plan_tier"` // free, basic, medium, premium, vip

	MaxDailyLossFraction    decimal.Decimal `db:"max_daily_loss_fraction" json:"max_daily_loss_fraction"`
	MaxPositionSizeFraction decimal.Decimal `db:"max_position_size_fraction" json:"max_position_size_fraction"`
	MaxConcurrentTrades     int             `db:"max_concurrent_trades" json:"max_concurrent_trades"`
	StopLossFraction        decimal.Decimal `db:"stop_loss_fraction" json:"stop_loss_fraction"`
	TakeProfitFraction      decimal.Decimal `db:"take_profit_fraction" json:"take_profit_fraction"`
	MaxDrawdownFraction     decimal.Decimal `db:"max_drawdown_fraction" json:"max_drawdown_fraction"`

	RiskScore decimal.Decimal `db:"risk_score" json:"risk_score"` // 0..100
	Status    Status          `db:"status" json:"status"`
	Version   int             `db:"version" json:"version"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Patch is a partial update. Nil fields keep their current value.
type Patch struct {
	MaxDailyLossFraction    *decimal.Decimal `json:"max_daily_loss_fraction,omitempty"`
	MaxPositionSizeFraction *decimal.Decimal `json:"max_position_size_fraction,omitempty"`
	MaxConcurrentTrades     *int             `json:"max_concurrent_trades,omitempty"`
	StopLossFraction        *decimal.Decimal `json:"stop_loss_fraction,omitempty"`
	TakeProfitFraction      *decimal.Decimal `json:"take_profit_fraction,omitempty"`
	MaxDrawdownFraction     *decimal.Decimal `json:"max_drawdown_fraction,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p Patch) Empty() bool {
	return p.MaxDailyLossFraction == nil && p.MaxPositionSizeFraction == nil &&
		p.MaxConcurrentTrades == nil && p.StopLossFraction == nil &&
		p.TakeProfitFraction == nil && p.MaxDrawdownFraction == nil
}

// Apply returns the next version of the profile with the patch applied.
// The receiver is not modified.
func (p RiskProfile) Apply(patch Patch, now time.Time) RiskProfile {
	next := p
	next.ID = uuid.New()
	next.Version = p.Version + 1
	next.Status = StatusActive
	next.CreatedAt = now
	next.UpdatedAt = now

	changed := false
	set := func(dst *decimal.Decimal, v *decimal.Decimal) {
		if v != nil && !v.Equal(*dst) {
			*dst = *v
			changed = true
		}
	}
	set(&next.MaxDailyLossFraction, patch.MaxDailyLossFraction)
	set(&next.MaxPositionSizeFraction, patch.MaxPositionSizeFraction)
	set(&next.StopLossFraction, patch.StopLossFraction)
	set(&next.TakeProfitFraction, patch.TakeProfitFraction)
	set(&next.MaxDrawdownFraction, patch.MaxDrawdownFraction)
	if patch.MaxConcurrentTrades != nil && *patch.MaxConcurrentTrades != next.MaxConcurrentTrades {
		next.MaxConcurrentTrades = *patch.MaxConcurrentTrades
		changed = true
	}

	if changed {
		next.Tier = TierCustom
	}
	next.RiskScore = Score(next)
	return next
}

// Validate checks every fraction is in (0, 1] and at least one trade is allowed
func (p RiskProfile) Validate() error {
	fractions := []struct {
		field string
		value decimal.Decimal
	}{
		{"max_daily_loss_fraction", p.MaxDailyLossFraction},
		{"max_position_size_fraction", p.MaxPositionSizeFraction},
		{"stop_loss_fraction", p.StopLossFraction},
		{"take_profit_fraction", p.TakeProfitFraction},
		{"max_drawdown_fraction", p.MaxDrawdownFraction},
	}
	for _, f := range fractions {
		if !f.value.IsPositive() || f.value.GreaterThan(decimal.NewFromInt(1)) {
			return errors.NewValidationError(f.field, "must be in (0, 1]", f.value.String())
		}
	}
	if p.MaxConcurrentTrades < 1 {
		return errors.NewValidationError("max_concurrent_trades", "must be at least 1", p.MaxConcurrentTrades)
	}
	return nil
}

// Clone returns a copy safe to hand out of a cache
func (p *RiskProfile) Clone() *RiskProfile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
