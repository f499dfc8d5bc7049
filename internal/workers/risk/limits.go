package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"riskgate/internal/domain/account"
	"riskgate/internal/domain/alert"
	"riskgate/internal/domain/limits"
	"riskgate/internal/domain/profile"
	"riskgate/internal/workers"
	"riskgate/pkg/errors"
	"riskgate/pkg/logger"
)

// Users lists monitored users. Implemented by *registry.Registry.
type Users interface {
	UserIDs() []uuid.UUID
}

// ProfileSource is implemented by *profiles.Store
type ProfileSource interface {
	Get(ctx context.Context, userID uuid.UUID) (*profile.RiskProfile, error)
}

// LimitTracker is implemented by *dailylimits.Tracker
type LimitTracker interface {
	SetLimit(ctx context.Context, userID uuid.UUID, lt limits.LimitType, value decimal.Decimal) (limits.Usage, error)
	ResetDue(ctx context.Context) []uuid.UUID
}

// Alerts is implemented by *alerts.Manager
type Alerts interface {
	Raise(ctx context.Context, userID uuid.UUID, t alert.Type, severity alert.Severity, message string, actx alert.Context) (uuid.UUID, error)
	ResolveCondition(ctx context.Context, userID uuid.UUID, t alert.Type, symbol string) (int, error)
}

var one = decimal.NewFromInt(1)

// LimitRefreshWorker recomputes every user's daily loss cap from the
// current balance and raises or clears the daily loss alerts
type LimitRefreshWorker struct {
	*workers.BaseWorker
	users    Users
	profiles ProfileSource
	accounts account.Store
	limits   LimitTracker
	alerts   Alerts
	warnAt   decimal.Decimal
}

// NewLimitRefreshWorker creates the daily_limit_refresh worker
func NewLimitRefreshWorker(
	users Users,
	profiles ProfileSource,
	accounts account.Store,
	tracker LimitTracker,
	alerts Alerts,
	warnAt decimal.Decimal,
	interval time.Duration,
	log *logger.Logger,
) *LimitRefreshWorker {
	return &LimitRefreshWorker{
		BaseWorker: workers.NewBaseWorker("daily_limit_refresh", interval, true, log),
		users:      users,
		profiles:   profiles,
		accounts:   accounts,
		limits:     tracker,
		alerts:     alerts,
		warnAt:     warnAt,
	}
}

// Run refreshes every monitored user
func (w *LimitRefreshWorker) Run(ctx context.Context) error {
	var errs errors.MultiError
	for _, userID := range w.users.UserIDs() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.refresh(ctx, userID); err != nil {
			errs.Add(errors.Wrapf(err, "user %s", userID))
		}
	}
	return errs.ToError()
}

func (w *LimitRefreshWorker) refresh(ctx context.Context, userID uuid.UUID) error {
	p, err := w.profiles.Get(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "risk profile")
	}
	balance, err := w.accounts.Balance(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "account balance")
	}

	usage, err := w.limits.SetLimit(ctx, userID, limits.LimitDailyLoss, p.MaxDailyLossFraction.Mul(balance))
	if err != nil {
		w.Log().Warnw("Daily limit persisted with error", "user_id", userID, "error", err)
	}

	actx := alert.Context{CurrentValue: usage.Percentage, ThresholdValue: one}
	switch {
	case usage.Percentage.GreaterThanOrEqual(one):
		msg := fmt.Sprintf("daily loss limit exhausted: lost %s of %s, new operations are blocked until %s",
			usage.Current.StringFixed(2), usage.Limit.StringFixed(2), usage.ResetAt.Format(time.RFC3339))
		_, err = w.alerts.Raise(ctx, userID, alert.TypeDailyLossExhausted, alert.SeverityHigh, msg, actx)
	case usage.Percentage.GreaterThanOrEqual(w.warnAt):
		actx.ThresholdValue = w.warnAt
		msg := fmt.Sprintf("daily loss at %s%% of limit", usage.Percentage.Mul(decimal.NewFromInt(100)).StringFixed(1))
		_, err = w.alerts.Raise(ctx, userID, alert.TypeDailyLossWarning, alert.SeverityMedium, msg, actx)
	default:
		err = w.clear(ctx, userID)
	}
	return err
}

func (w *LimitRefreshWorker) clear(ctx context.Context, userID uuid.UUID) error {
	return clearDailyLossAlerts(ctx, w.alerts, userID)
}

func clearDailyLossAlerts(ctx context.Context, a Alerts, userID uuid.UUID) error {
	var errs errors.MultiError
	for _, t := range []alert.Type{alert.TypeDailyLossWarning, alert.TypeDailyLossExhausted} {
		if _, err := a.ResolveCondition(ctx, userID, t, ""); err != nil {
			errs.Add(err)
		}
	}
	return errs.ToError()
}

// LimitResetWorker rolls daily counters over at the reset boundary and
// clears the alerts raised against the previous day
type LimitResetWorker struct {
	*workers.BaseWorker
	limits LimitTracker
	alerts Alerts
}

// NewLimitResetWorker creates the limit_reset_sweep worker
func NewLimitResetWorker(tracker LimitTracker, alerts Alerts, interval time.Duration, log *logger.Logger) *LimitResetWorker {
	return &LimitResetWorker{
		BaseWorker: workers.NewBaseWorker("limit_reset_sweep", interval, true, log),
		limits:     tracker,
		alerts:     alerts,
	}
}

// Run resets due counters
func (w *LimitResetWorker) Run(ctx context.Context) error {
	var errs errors.MultiError
	for _, userID := range w.limits.ResetDue(ctx) {
		if err := clearDailyLossAlerts(ctx, w.alerts, userID); err != nil {
			errs.Add(errors.Wrapf(err, "user %s", userID))
		}
	}
	return errs.ToError()
}
