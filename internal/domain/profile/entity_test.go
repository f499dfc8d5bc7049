package profile

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskgate/pkg/errors"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDefault_PlanTiers(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		plan      string
		tier      Tier
		trades    int
		position  string
		dailyLoss string
	}{
		{"free", TierLow, 3, "0.15", "0.03"},
		{"basic", TierLow, 3, "0.15", "0.03"},
		{"medium", TierMedium, 5, "0.20", "0.05"},
		{"", TierMedium, 5, "0.20", "0.05"},
		{"unknown-plan", TierMedium, 5, "0.20", "0.05"},
		{"premium", TierHigh, 10, "0.25", "0.05"},
		{"VIP", TierHigh, 10, "0.25", "0.05"},
	}

	for _, tt := range tests {
		t.Run(tt.plan, func(t *testing.T) {
			p := Default(uuid.New(), tt.plan, now)
			assert.Equal(t, tt.tier, p.Tier)
			assert.Equal(t, tt.trades, p.MaxConcurrentTrades)
			assert.True(t, d(tt.position).Equal(p.MaxPositionSizeFraction))
			assert.True(t, d(tt.dailyLoss).Equal(p.MaxDailyLossFraction))
			assert.Equal(t, StatusActive, p.Status)
			assert.Equal(t, 1, p.Version)
			require.NoError(t, p.Validate())
		})
	}
}

func TestValidate_RejectsOutOfRange(t *testing.T) {
	base := Default(uuid.New(), "medium", time.Now())

	zero := base
	zero.StopLossFraction = decimal.Zero
	assert.True(t, errors.Is(zero.Validate(), errors.ErrInvalidProfile))

	tooBig := base
	tooBig.MaxPositionSizeFraction = d("1.01")
	assert.True(t, errors.Is(tooBig.Validate(), errors.ErrInvalidProfile))

	noTrades := base
	noTrades.MaxConcurrentTrades = 0
	assert.True(t, errors.Is(noTrades.Validate(), errors.ErrInvalidProfile))

	full := base
	full.MaxDrawdownFraction = d("1")
	assert.NoError(t, full.Validate())
}

func TestApply_NewVersionAndCustomTier(t *testing.T) {
	now := time.Now()
	base := Default(uuid.New(), "premium", now)

	sl := d("0.02")
	next := base.Apply(Patch{StopLossFraction: &sl}, now.Add(time.Minute))

	assert.Equal(t, TierCustom, next.Tier)
	assert.Equal(t, 2, next.Version)
	assert.NotEqual(t, base.ID, next.ID)
	assert.Equal(t, base.UserID, next.UserID)
	assert.True(t, sl.Equal(next.StopLossFraction))
	assert.Equal(t, TierHigh, base.Tier, "receiver untouched")
}

func TestApply_ConcurrencyChangeIsCustom(t *testing.T) {
	base := Default(uuid.New(), "free", time.Now())
	trades := 4
	next := base.Apply(Patch{MaxConcurrentTrades: &trades}, time.Now())

	assert.Equal(t, TierCustom, next.Tier)
	assert.Equal(t, 4, next.MaxConcurrentTrades)
}

func TestApply_UnchangedValuesKeepTier(t *testing.T) {
	base := Default(uuid.New(), "free", time.Now())
	trades := base.MaxConcurrentTrades
	sl := base.StopLossFraction
	next := base.Apply(Patch{MaxConcurrentTrades: &trades, StopLossFraction: &sl}, time.Now())

	assert.Equal(t, TierLow, next.Tier)
}

func TestScore_Bounds(t *testing.T) {
	low := Default(uuid.New(), "free", time.Now())
	high := Default(uuid.New(), "vip", time.Now())

	assert.True(t, low.RiskScore.LessThan(high.RiskScore))
	assert.True(t, high.RiskScore.LessThanOrEqual(decimal.NewFromInt(100)))

	maxed := high
	maxed.MaxPositionSizeFraction = d("1")
	maxed.MaxDailyLossFraction = d("1")
	maxed.StopLossFraction = d("1")
	maxed.MaxDrawdownFraction = d("1")
	maxed.MaxConcurrentTrades = 100
	assert.True(t, decimal.NewFromInt(100).Equal(Score(maxed)))
}
