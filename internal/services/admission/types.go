package admission

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"riskgate/internal/domain/risk"
	"riskgate/pkg/errors"
)

// Side of a proposed operation
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Operation is a proposed trade submitted for admission
type Operation struct {
	Symbol     string           `json:"symbol"`
	Side       Side             `json:"side"`
	Quantity   decimal.Decimal  `json:"quantity"`
	Price      decimal.Decimal  `json:"price"`
	StopLoss   *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit *decimal.Decimal `json:"take_profit,omitempty"`
}

// Validate checks the operation is well formed
func (o Operation) Validate() error {
	if strings.TrimSpace(o.Symbol) == "" {
		return errors.Wrap(errors.ErrInvalidInput, "symbol is required")
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return errors.Wrapf(errors.ErrInvalidInput, "side must be buy or sell, got %q", o.Side)
	}
	if !o.Quantity.IsPositive() {
		return errors.Wrap(errors.ErrInvalidInput, "quantity must be positive")
	}
	if !o.Price.IsPositive() {
		return errors.Wrap(errors.ErrInvalidInput, "price must be positive")
	}
	return nil
}

// Notional is quantity x price
func (o Operation) Notional() decimal.Decimal {
	return o.Quantity.Mul(o.Price)
}

// Check names
const (
	CheckDailyLoss   = "daily_loss"
	CheckExposure    = "exposure"
	CheckConcurrency = "concurrency"
	CheckVolatility  = "volatility"
	CheckDrawdown    = "drawdown"
	CheckCapital     = "capital"
	CheckInputs      = "inputs"
)

// CheckResult is the outcome of one admission check
type CheckResult struct {
	Name      string          `json:"name"`
	Passed    bool            `json:"passed"`
	Critical  bool            `json:"critical"`
	Reason    string          `json:"reason,omitempty"`
	Value     decimal.Decimal `json:"value"`
	Threshold decimal.Decimal `json:"threshold"`
}

// Result is the admission decision
type Result struct {
	UserID          uuid.UUID     `json:"user_id"`
	Operation       Operation     `json:"operation"`
	Approved        bool          `json:"approved"`
	Reasons         []string      `json:"reasons"`
	RiskLevel       risk.Level    `json:"risk_level"`
	Recommendations []string      `json:"recommendations"`
	Checks          []CheckResult `json:"checks"`
	EvaluatedAt     time.Time     `json:"evaluated_at"`
}

// FailedChecks returns the names of failed checks
func (r *Result) FailedChecks() []string {
	var names []string
	for _, c := range r.Checks {
		if !c.Passed {
			names = append(names, c.Name)
		}
	}
	return names
}

// Config holds the system-wide admission thresholds
type Config struct {
	VolatilityCeiling       decimal.Decimal
	CapitalReserve          decimal.Decimal
	ExposureReduceThreshold decimal.Decimal
	DailyLossWarnThreshold  decimal.Decimal
	DependencyTimeout       time.Duration
}

// DefaultConfig returns the standard thresholds
func DefaultConfig() Config {
	return Config{
		VolatilityCeiling:       decimal.RequireFromString("0.10"),
		CapitalReserve:          decimal.RequireFromString("0.05"),
		ExposureReduceThreshold: decimal.RequireFromString("0.70"),
		DailyLossWarnThreshold:  decimal.RequireFromString("0.80"),
		DependencyTimeout:       2 * time.Second,
	}
}
