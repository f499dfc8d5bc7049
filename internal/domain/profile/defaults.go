package profile

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type tierDefaults struct {
	maxConcurrentTrades int
	maxPositionSize     string
	maxDailyLoss        string
	stopLoss            string
	takeProfit          string
	maxDrawdown         string
}

var defaultsByTier = map[Tier]tierDefaults{
	TierLow:    {3, "0.15", "0.03", "0.02", "0.04", "0.10"},
	TierMedium: {5, "0.20", "0.05", "0.03", "0.06", "0.15"},
	TierHigh:   {10, "0.25", "0.05", "0.05", "0.10", "0.20"},
}

// TierForPlan maps a subscription plan to its risk tier. Unknown plans get medium.
func TierForPlan(plan string) Tier {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case "free", "basic":
		return TierLow
	case "premium", "vip":
		return TierHigh
	default:
		return TierMedium
	}
}

// Default builds the first profile version for a user on the given plan
func Default(userID uuid.UUID, plan string, now time.Time) RiskProfile {
	tier := TierForPlan(plan)
	d := defaultsByTier[tier]

	p := RiskProfile{
		ID:                      uuid.New(),
		UserID:                  userID,
		Tier:                    tier,
		PlanTier:                strings.ToLower(strings.TrimSpace(plan)),
		MaxDailyLossFraction:    decimal.RequireFromString(d.maxDailyLoss),
		MaxPositionSizeFraction: decimal.RequireFromString(d.maxPositionSize),
		MaxConcurrentTrades:     d.maxConcurrentTrades,
		StopLossFraction:        decimal.RequireFromString(d.stopLoss),
		TakeProfitFraction:      decimal.RequireFromString(d.takeProfit),
		MaxDrawdownFraction:     decimal.RequireFromString(d.maxDrawdown),
		Status:                  StatusActive,
		Version:                 1,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if p.PlanTier == "" {
		p.PlanTier = "medium"
	}
	p.RiskScore = Score(p)
	return p
}

// Reference maxima used to normalise each fraction into the score
var (
	scoreRefPositionSize = decimal.RequireFromString("0.50")
	scoreRefDailyLoss    = decimal.RequireFromString("0.10")
	scoreRefStopLoss     = decimal.RequireFromString("0.10")
	scoreRefDrawdown     = decimal.RequireFromString("0.40")
	scoreRefConcurrent   = decimal.NewFromInt(20)
)

// Score rates how aggressive a profile is on a 0-100 scale.
// Each component is normalised against its reference maximum and capped at 1.
func Score(p RiskProfile) decimal.Decimal {
	one := decimal.NewFromInt(1)
	component := func(v, ref decimal.Decimal) decimal.Decimal {
		return decimal.Min(v.Div(ref), one)
	}

	sum := component(p.MaxPositionSizeFraction, scoreRefPositionSize).
		Add(component(p.MaxDailyLossFraction, scoreRefDailyLoss)).
		Add(component(p.StopLossFraction, scoreRefStopLoss)).
		Add(component(p.MaxDrawdownFraction, scoreRefDrawdown)).
		Add(component(decimal.NewFromInt(int64(p.MaxConcurrentTrades)), scoreRefConcurrent))

	return sum.Div(decimal.NewFromInt(5)).Mul(decimal.NewFromInt(100)).Round(2)
}
