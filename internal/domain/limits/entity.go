package limits

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LimitType identifies what a dynamic limit counts
type LimitType string

const (
	LimitDailyLoss LimitType = "daily_loss"
)

// DynamicLimit is a running counter against a cap that resets at ResetAt
type DynamicLimit struct {
	UserID          uuid.UUID       `db:"user_id" json:"user_id"`
	LimitType       LimitType       `db:"limit_type" json:"limit_type"`
	CurrentValue    decimal.Decimal `db:"current_value" json:"current_value"`
	LimitValue      decimal.Decimal `db:"limit_value" json:"limit_value"`
	UsagePercentage decimal.Decimal `db:"usage_percentage" json:"usage_percentage"`
	ResetAt         time.Time       `db:"reset_at" json:"reset_at"`
	Version         int64           `db:"version" json:"version"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Usage is a point-in-time view of a limit
type Usage struct {
	Current    decimal.Decimal `json:"current"`
	Limit      decimal.Decimal `json:"limit"`
	Percentage decimal.Decimal `json:"percentage"`
	ResetAt    time.Time       `json:"reset_at"`
}

// Key identifies a limit
type Key struct {
	UserID    uuid.UUID
	LimitType LimitType
}

// Percentage computes current/limit. A zero or negative limit is fully used.
func Percentage(current, limit decimal.Decimal) decimal.Decimal {
	if !limit.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return current.Div(limit)
}

// Recompute refreshes UsagePercentage from the counters
func (l *DynamicLimit) Recompute() {
	l.UsagePercentage = Percentage(l.CurrentValue, l.LimitValue)
}

// Due reports whether the limit should be reset at now
func (l *DynamicLimit) Due(now time.Time) bool {
	return !now.Before(l.ResetAt)
}

// Usage returns the view of the limit
func (l *DynamicLimit) Usage() Usage {
	return Usage{
		Current:    l.CurrentValue,
		Limit:      l.LimitValue,
		Percentage: Percentage(l.CurrentValue, l.LimitValue),
		ResetAt:    l.ResetAt,
	}
}

// NextReset returns the next UTC midnight strictly after now
func NextReset(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
