package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"riskgate/internal/domain/alert"
	"riskgate/internal/domain/limits"
	"riskgate/internal/domain/profile"
	"riskgate/internal/domain/risk"
	"riskgate/internal/registry"
	"riskgate/internal/services/admission"
	"riskgate/internal/services/alerts"
	"riskgate/internal/services/dailylimits"
	"riskgate/internal/services/eventlog"
	"riskgate/internal/services/monitor"
	"riskgate/internal/services/profiles"
	"riskgate/pkg/errors"
	"riskgate/pkg/logger"
)

// Engine is the entry point used by the HTTP API, workers and consumers
type Engine struct {
	registry *registry.Registry
	profiles *profiles.Store
	limits   *dailylimits.Tracker
	gate     *admission.Gate
	monitor  *monitor.Monitor
	alerts   *alerts.Manager
	events   *eventlog.Log
	log      *logger.Logger
	now      func() time.Time
}

// Deps groups the engine components
type Deps struct {
	Registry *registry.Registry
	Profiles *profiles.Store
	Limits   *dailylimits.Tracker
	Gate     *admission.Gate
	Monitor  *monitor.Monitor
	Alerts   *alerts.Manager
	Events   *eventlog.Log
}

// New creates the engine facade
func New(deps Deps, log *logger.Logger) *Engine {
	return &Engine{
		registry: deps.Registry,
		profiles: deps.Profiles,
		limits:   deps.Limits,
		gate:     deps.Gate,
		monitor:  deps.Monitor,
		alerts:   deps.Alerts,
		events:   deps.Events,
		log:      log.Named("engine"),
		now:      time.Now,
	}
}

// WithClock overrides the time source (tests)
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Activate starts monitoring a user, creating the plan's default profile
// if the user has none. Activating twice is a no-op.
func (e *Engine) Activate(ctx context.Context, userID uuid.UUID, plan string) (*profile.RiskProfile, error) {
	p, err := e.profiles.EnsureDefault(ctx, userID, plan)
	if err != nil {
		return nil, errors.Wrap(err, "ensure risk profile")
	}

	if e.registry.Activate(userID, p.PlanTier, e.now().UTC()) {
		e.registry.Update(userID, func(u *registry.User) { u.Profile = p.Clone() })
		e.log.Infow("User activated for risk monitoring",
			"user_id", userID,
			"plan", p.PlanTier,
			"tier", p.Tier,
		)
	}
	return p, nil
}

// Deactivate stops monitoring a user. In-memory counters are dropped;
// stored profiles, alerts and events are kept.
func (e *Engine) Deactivate(ctx context.Context, userID uuid.UUID) error {
	if !e.registry.Deactivate(userID) {
		return errors.Wrapf(errors.ErrNotFound, "user %s is not monitored", userID)
	}
	e.profiles.Forget(userID)
	e.limits.Forget(userID)
	e.log.Infow("User deactivated", "user_id", userID)
	return nil
}

// Evaluate runs admission for a proposed operation
func (e *Engine) Evaluate(ctx context.Context, userID uuid.UUID, op admission.Operation) *admission.Result {
	return e.gate.Evaluate(ctx, userID, op)
}

// GetProfile returns the active profile
func (e *Engine) GetProfile(ctx context.Context, userID uuid.UUID) (*profile.RiskProfile, error) {
	return e.profiles.Get(ctx, userID)
}

// UpdateProfile applies a partial update
func (e *Engine) UpdateProfile(ctx context.Context, userID uuid.UUID, patch profile.Patch) (*profile.RiskProfile, error) {
	p, err := e.profiles.Update(ctx, userID, patch)
	if err != nil {
		return nil, err
	}
	e.registry.Update(userID, func(u *registry.User) { u.Profile = p.Clone() })

	_, _ = e.events.Record(ctx, risk.EventProfileUpdated, userID, map[string]interface{}{
		"version":    p.Version,
		"tier":       p.Tier,
		"risk_score": p.RiskScore.String(),
	}, risk.LevelLow, false)
	return p, nil
}

// ProfileHistory returns all stored profile versions, newest first
func (e *Engine) ProfileHistory(ctx context.Context, userID uuid.UUID) ([]*profile.RiskProfile, error) {
	return e.profiles.History(ctx, userID)
}

// GetActiveAlerts lists active alerts, for one user or for everyone
func (e *Engine) GetActiveAlerts(ctx context.Context, userID *uuid.UUID) ([]*alert.RiskAlert, error) {
	return e.alerts.Active(ctx, userID)
}

// ResolveAlert marks an alert resolved
func (e *Engine) ResolveAlert(ctx context.Context, alertID uuid.UUID) error {
	return e.alerts.Resolve(ctx, alertID)
}

// DismissAlert marks an alert dismissed
func (e *Engine) DismissAlert(ctx context.Context, alertID uuid.UUID) error {
	return e.alerts.Dismiss(ctx, alertID)
}

// DailyLossUsage returns the current daily loss usage of a user
func (e *Engine) DailyLossUsage(ctx context.Context, userID uuid.UUID) limits.Usage {
	return e.limits.Usage(ctx, userID, limits.LimitDailyLoss)
}

// TradeClosed is a realised trade reported by the ledger
type TradeClosed struct {
	UserID      uuid.UUID       `json:"user_id"`
	PositionID  uuid.UUID       `json:"position_id"`
	Symbol      string          `json:"symbol"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	ClosedAt    time.Time       `json:"closed_at"`
}

// RecordTradeClosed books a realised loss against the daily limit and
// drops the position from monitoring
func (e *Engine) RecordTradeClosed(ctx context.Context, t TradeClosed) error {
	if t.UserID == uuid.Nil {
		return errors.Wrap(errors.ErrInvalidInput, "user_id is required")
	}

	if t.PositionID != uuid.Nil {
		e.monitor.ConfirmClosed(t.UserID, t.PositionID)
	}
	if _, err := e.alerts.ResolveCondition(ctx, t.UserID, alert.TypeTakeProfitSuggestion, t.Symbol); err != nil {
		e.log.Warnw("Failed to resolve take-profit alert", "user_id", t.UserID, "error", err)
	}

	if !t.RealizedPnL.IsNegative() {
		return nil
	}
	loss := t.RealizedPnL.Neg()
	usage, booked, err := e.limits.RecordTradeLoss(ctx, t.UserID, t.PositionID, t.ClosedAt, loss)
	if !booked {
		return err
	}
	e.log.Infow("Realised loss recorded",
		"user_id", t.UserID,
		"position_id", t.PositionID,
		"symbol", t.Symbol,
		"loss", loss.String(),
		"daily_usage", usage.Percentage.StringFixed(4),
	)
	return err
}

// Registry exposes the user registry to workers
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}
