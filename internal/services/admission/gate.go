package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"riskgate/internal/domain/account"
	"riskgate/internal/domain/alert"
	"riskgate/internal/domain/limits"
	"riskgate/internal/domain/market"
	"riskgate/internal/domain/position"
	"riskgate/internal/domain/profile"
	"riskgate/internal/domain/risk"
	"riskgate/internal/metrics"
	"riskgate/internal/registry"
	"riskgate/internal/services/exposure"
	"riskgate/pkg/errors"
	"riskgate/pkg/logger"
)

// ProfileSource returns the active risk profile of a user
type ProfileSource interface {
	Get(ctx context.Context, userID uuid.UUID) (*profile.RiskProfile, error)
}

// LimitSource keeps the daily loss cap in sync and reports usage
type LimitSource interface {
	SetLimit(ctx context.Context, userID uuid.UUID, lt limits.LimitType, value decimal.Decimal) (limits.Usage, error)
}

// AlertRaiser raises deduplicated alerts
type AlertRaiser interface {
	Raise(ctx context.Context, userID uuid.UUID, t alert.Type, severity alert.Severity, message string, actx alert.Context) (uuid.UUID, error)
}

// EventRecorder appends risk events
type EventRecorder interface {
	Record(ctx context.Context, t risk.EventType, userID uuid.UUID, payload map[string]interface{}, level risk.Level, autoAction bool) (*risk.RiskEvent, error)
}

// Gate evaluates proposed operations against the user's profile and
// system-wide ceilings. It never approves on missing data.
type Gate struct {
	profiles ProfileSource
	limits   LimitSource
	exposure *exposure.Calculator
	ledger   position.Ledger
	accounts account.Store
	prices   market.PriceFeed
	alerts   AlertRaiser
	events   EventRecorder
	registry *registry.Registry
	cfg      Config
	log      *logger.Logger
	now      func() time.Time
}

// Deps groups the collaborators of the gate
type Deps struct {
	Profiles ProfileSource
	Limits   LimitSource
	Exposure *exposure.Calculator
	Ledger   position.Ledger
	Accounts account.Store
	Prices   market.PriceFeed
	Alerts   AlertRaiser
	Events   EventRecorder
	Registry *registry.Registry
}

// NewGate creates an admission gate
func NewGate(deps Deps, cfg Config, log *logger.Logger) *Gate {
	if cfg.DependencyTimeout <= 0 {
		cfg.DependencyTimeout = DefaultConfig().DependencyTimeout
	}
	if deps.Registry == nil {
		deps.Registry = registry.New(1)
	}
	return &Gate{
		profiles: deps.Profiles,
		limits:   deps.Limits,
		exposure: deps.Exposure,
		ledger:   deps.Ledger,
		accounts: deps.Accounts,
		prices:   deps.Prices,
		alerts:   deps.Alerts,
		events:   deps.Events,
		registry: deps.Registry,
		cfg:      cfg,
		log:      log.Named("admission"),
		now:      time.Now,
	}
}

// WithClock overrides the time source (tests)
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// inputs are fetched concurrently; each field has its own error so one
// failing dependency does not hide the others.
type inputs struct {
	profile    *profile.RiskProfile
	profileErr error

	balance    decimal.Decimal
	balanceErr error

	peak    decimal.Decimal
	peakErr error

	positions    []position.Position
	positionsErr error

	price    decimal.Decimal
	priceErr error

	volatility    decimal.Decimal
	volatilityErr error
}

func (g *Gate) gather(ctx context.Context, userID uuid.UUID, symbol string) *inputs {
	in := &inputs{}
	var eg errgroup.Group

	bounded := func(fn func(ctx context.Context)) func() error {
		return func() error {
			ctx, cancel := context.WithTimeout(ctx, g.cfg.DependencyTimeout)
			defer cancel()
			fn(ctx)
			return nil
		}
	}

	eg.Go(bounded(func(ctx context.Context) {
		in.profile, in.profileErr = g.profiles.Get(ctx, userID)
	}))
	eg.Go(bounded(func(ctx context.Context) {
		in.balance, in.balanceErr = g.accounts.Balance(ctx, userID)
	}))
	eg.Go(bounded(func(ctx context.Context) {
		in.peak, in.peakErr = g.accounts.PeakBalance(ctx, userID)
	}))
	eg.Go(bounded(func(ctx context.Context) {
		in.positions, in.positionsErr = g.ledger.OpenPositions(ctx, userID)
	}))
	eg.Go(func() error {
		// Price applies the dependency timeout itself
		in.price, in.priceErr = g.exposure.Price(ctx, symbol)
		return nil
	})
	eg.Go(bounded(func(ctx context.Context) {
		in.volatility, in.volatilityErr = g.prices.Volatility(ctx, symbol)
	}))

	_ = eg.Wait()
	return in
}

// Evaluate runs every admission check and returns the decision.
// Any missing input or internal failure yields a denial.
func (g *Gate) Evaluate(ctx context.Context, userID uuid.UUID, op Operation) (res *Result) {
	start := g.now()
	res = &Result{
		UserID:      userID,
		Operation:   op,
		EvaluatedAt: start.UTC(),
	}

	defer func() {
		if r := recover(); r != nil {
			g.log.Errorw("Admission evaluation panicked", "user_id", userID, "panic", r)
			res.Approved = false
			res.Reasons = append(res.Reasons, fmt.Sprintf("Internal: evaluation failed: %v", r))
			res.RiskLevel = risk.LevelHigh
		}
		g.registry.Update(userID, func(u *registry.User) {
			u.Evaluations++
			if !res.Approved {
				u.Blocked++
			}
		})
		metrics.RecordAdmission(res.Approved, string(res.RiskLevel), res.FailedChecks(), time.Since(start))
	}()

	if err := op.Validate(); err != nil {
		res.Checks = append(res.Checks, CheckResult{Name: CheckInputs, Reason: "InvalidInput: " + err.Error()})
		g.deny(ctx, res)
		return res
	}

	in := g.gather(ctx, userID, op.Symbol)

	if pre := g.preconditions(in); len(pre) > 0 {
		res.Checks = append(res.Checks, pre...)
		g.deny(ctx, res)
		return res
	}

	var warnings []string
	dailyCheck, dailyWarning := g.checkDailyLoss(ctx, userID, in)
	if dailyWarning != "" {
		warnings = append(warnings, dailyWarning)
	}
	exposureCheck, projected := g.checkExposure(in, op)

	res.Checks = []CheckResult{
		dailyCheck,
		exposureCheck,
		g.checkConcurrency(in),
		g.checkVolatility(in),
		g.checkDrawdown(in),
		g.checkCapital(in, op),
	}

	for _, c := range res.Checks {
		if !c.Passed {
			g.deny(ctx, res)
			return res
		}
	}

	res.Approved = true
	res.RiskLevel = risk.LevelLow
	res.Recommendations = append(res.Recommendations, g.protectiveLevels(in.profile, op)...)

	total := g.exposure.TotalFraction(ctx, in.positions, projected, in.balance)
	if total.GreaterThan(g.cfg.ExposureReduceThreshold) {
		warnings = append(warnings, fmt.Sprintf(
			"reduce position size: total exposure would be %s of capital (threshold %s)",
			pct(total), pct(g.cfg.ExposureReduceThreshold),
		))
	}
	if len(warnings) > 0 {
		res.RiskLevel = risk.LevelMedium
		res.Recommendations = append(res.Recommendations, warnings...)
	}

	g.log.Debugw("Operation approved",
		"user_id", userID,
		"symbol", op.Symbol,
		"risk_level", res.RiskLevel,
		"recommendations", len(res.Recommendations),
	)
	return res
}

// preconditions fail when inputs every check depends on are missing
func (g *Gate) preconditions(in *inputs) []CheckResult {
	var failed []CheckResult
	if in.profileErr != nil {
		reason := dependencyReason("risk profile", in.profileErr)
		if errors.Is(in.profileErr, errors.ErrNotFound) {
			reason = "NotFound: no risk profile for user"
		}
		failed = append(failed, CheckResult{Name: CheckInputs, Reason: reason})
	}
	if in.balanceErr != nil {
		failed = append(failed, CheckResult{Name: CheckInputs, Reason: dependencyReason("account balance", in.balanceErr)})
	}
	if in.positionsErr != nil {
		failed = append(failed, CheckResult{Name: CheckInputs, Reason: dependencyReason("position ledger", in.positionsErr)})
	}
	return failed
}

func (g *Gate) checkDailyLoss(ctx context.Context, userID uuid.UUID, in *inputs) (CheckResult, string) {
	limitValue := in.profile.MaxDailyLossFraction.Mul(in.balance)
	usage, err := g.limits.SetLimit(ctx, userID, limits.LimitDailyLoss, limitValue)
	if err != nil {
		// usage is still the authoritative in-memory view
		g.log.Warnw("Daily limit persisted with error", "user_id", userID, "error", err)
	}

	c := CheckResult{
		Name:      CheckDailyLoss,
		Passed:    true,
		Value:     usage.Percentage,
		Threshold: decimal.NewFromInt(1),
	}

	if usage.Percentage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		c.Passed = false
		c.Critical = true
		c.Reason = fmt.Sprintf("daily loss limit reached: lost %s of %s (%s)",
			usage.Current.StringFixed(2), usage.Limit.StringFixed(2), pct(usage.Percentage))
		return c, ""
	}

	if usage.Percentage.GreaterThanOrEqual(g.cfg.DailyLossWarnThreshold) {
		msg := fmt.Sprintf("daily loss at %s of limit, resets %s", pct(usage.Percentage), usage.ResetAt.Format(time.RFC3339))
		g.raise(ctx, userID, alert.TypeDailyLossWarning, alert.SeverityMedium, msg, alert.Context{
			CurrentValue:   usage.Percentage,
			ThresholdValue: g.cfg.DailyLossWarnThreshold,
		})
		return c, msg
	}
	return c, ""
}

func (g *Gate) checkExposure(in *inputs, op Operation) (CheckResult, exposure.Exposure) {
	c := CheckResult{Name: CheckExposure, Threshold: in.profile.MaxPositionSizeFraction}
	if in.priceErr != nil {
		c.Reason = dependencyReason("price feed", in.priceErr)
		return c, exposure.Exposure{Symbol: op.Symbol}
	}

	exp := exposure.Compute(in.positions, op.Symbol, op.Quantity, in.price, in.balance)
	c.Value = exp.PercentageOfCapital
	if exp.PercentageOfCapital.GreaterThan(in.profile.MaxPositionSizeFraction) {
		c.Reason = fmt.Sprintf("exposure limit exceeded: %s would be %s of capital, max %s",
			op.Symbol, pct(exp.PercentageOfCapital), pct(in.profile.MaxPositionSizeFraction))
		return c, exp
	}
	c.Passed = true
	return c, exp
}

func (g *Gate) checkConcurrency(in *inputs) CheckResult {
	open := len(in.positions)
	c := CheckResult{
		Name:      CheckConcurrency,
		Passed:    true,
		Value:     decimal.NewFromInt(int64(open)),
		Threshold: decimal.NewFromInt(int64(in.profile.MaxConcurrentTrades)),
	}
	if open >= in.profile.MaxConcurrentTrades {
		c.Passed = false
		c.Reason = fmt.Sprintf("concurrent operations limit reached: %d open, max %d", open, in.profile.MaxConcurrentTrades)
	}
	return c
}

func (g *Gate) checkVolatility(in *inputs) CheckResult {
	c := CheckResult{Name: CheckVolatility, Threshold: g.cfg.VolatilityCeiling}
	if in.volatilityErr != nil {
		c.Reason = dependencyReason("volatility feed", in.volatilityErr)
		return c
	}
	c.Value = in.volatility
	if in.volatility.GreaterThan(g.cfg.VolatilityCeiling) {
		c.Critical = true
		c.Reason = fmt.Sprintf("volatility too high: %s, ceiling %s", pct(in.volatility), pct(g.cfg.VolatilityCeiling))
		return c
	}
	c.Passed = true
	return c
}

func (g *Gate) checkDrawdown(in *inputs) CheckResult {
	c := CheckResult{Name: CheckDrawdown, Threshold: in.profile.MaxDrawdownFraction}
	if in.peakErr != nil {
		c.Reason = dependencyReason("peak balance", in.peakErr)
		return c
	}
	dd := account.Drawdown(in.balance, in.peak)
	c.Value = dd
	if dd.GreaterThan(in.profile.MaxDrawdownFraction) {
		c.Critical = true
		c.Reason = fmt.Sprintf("drawdown limit exceeded: %s, max %s", pct(dd), pct(in.profile.MaxDrawdownFraction))
		return c
	}
	c.Passed = true
	return c
}

func (g *Gate) checkCapital(in *inputs, op Operation) CheckResult {
	usable := decimal.NewFromInt(1).Sub(g.cfg.CapitalReserve).Mul(in.balance)
	notional := op.Notional()
	c := CheckResult{Name: CheckCapital, Passed: true, Value: notional, Threshold: usable}
	if notional.GreaterThan(usable) {
		c.Passed = false
		c.Reason = fmt.Sprintf("insufficient capital: notional %s exceeds %s usable of balance %s",
			notional.StringFixed(2), usable.StringFixed(2), in.balance.StringFixed(2))
	}
	return c
}

// protectiveLevels suggests stop-loss and take-profit prices the caller did not supply
func (g *Gate) protectiveLevels(p *profile.RiskProfile, op Operation) []string {
	one := decimal.NewFromInt(1)
	slMul, tpMul := one.Sub(p.StopLossFraction), one.Add(p.TakeProfitFraction)
	if op.Side == SideSell {
		slMul, tpMul = one.Add(p.StopLossFraction), one.Sub(p.TakeProfitFraction)
	}

	var recs []string
	if op.StopLoss == nil {
		recs = append(recs, fmt.Sprintf("set stop-loss at %s", op.Price.Mul(slMul).String()))
	}
	if op.TakeProfit == nil {
		recs = append(recs, fmt.Sprintf("set take-profit at %s", op.Price.Mul(tpMul).String()))
	}
	return recs
}

func (g *Gate) deny(ctx context.Context, res *Result) {
	res.Approved = false
	res.RiskLevel = risk.LevelHigh
	for _, c := range res.Checks {
		if c.Passed {
			continue
		}
		res.Reasons = append(res.Reasons, c.Reason)
		if c.Critical {
			res.RiskLevel = risk.LevelCritical
		}
	}

	op := res.Operation
	g.log.Infow("Operation blocked",
		"user_id", res.UserID,
		"symbol", op.Symbol,
		"side", op.Side,
		"risk_level", res.RiskLevel,
		"failed_checks", res.FailedChecks(),
	)

	payload := map[string]interface{}{
		"symbol":        op.Symbol,
		"side":          op.Side,
		"quantity":      op.Quantity.String(),
		"price":         op.Price.String(),
		"reasons":       res.Reasons,
		"failed_checks": res.FailedChecks(),
	}
	if _, err := g.events.Record(ctx, risk.EventOperationBlocked, res.UserID, payload, res.RiskLevel, false); err != nil {
		g.log.Warnw("Blocked operation not recorded", "user_id", res.UserID, "error", err)
	}

	g.raise(ctx, res.UserID, alert.TypeOperationBlocked, alert.SeverityHigh,
		fmt.Sprintf("%s %s blocked: %s", op.Side, op.Symbol, res.Reasons[0]),
		alert.Context{Symbol: op.Symbol})
}

func (g *Gate) raise(ctx context.Context, userID uuid.UUID, t alert.Type, sev alert.Severity, msg string, actx alert.Context) {
	if _, err := g.alerts.Raise(ctx, userID, t, sev, msg, actx); err != nil {
		g.log.Warnw("Alert raise failed", "user_id", userID, "type", t, "error", err)
	}
}

func dependencyReason(dependency string, err error) string {
	metrics.DependencyFailures.WithLabelValues(dependency).Inc()
	return fmt.Sprintf("DependencyUnavailable: %s: %v", dependency, err)
}

func pct(f decimal.Decimal) string {
	return f.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}
