package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"riskgate/internal/domain/alert"
	"riskgate/internal/domain/market"
	"riskgate/internal/domain/position"
	"riskgate/internal/domain/profile"
	"riskgate/internal/domain/risk"
	"riskgate/internal/metrics"
	"riskgate/internal/registry"
	"riskgate/pkg/errors"
	"riskgate/pkg/logger"
	"riskgate/pkg/retry"
)

// Mode selects which rules a sweep applies
type Mode string

const (
	// ModeGeneral applies the user stop-loss and the take-profit advisory
	ModeGeneral Mode = "general"
	// ModeFast applies the user stop-loss and the hard safety floor
	ModeFast Mode = "fast"
)

// Triggers of an automatic close
const (
	TriggerStopLoss  = "stop_loss"
	TriggerHardFloor = "hard_floor"
)

// ProfileSource returns the active risk profile of a user
type ProfileSource interface {
	Get(ctx context.Context, userID uuid.UUID) (*profile.RiskProfile, error)
}

// Alerts raises and resolves alerts
type Alerts interface {
	Raise(ctx context.Context, userID uuid.UUID, t alert.Type, severity alert.Severity, message string, actx alert.Context) (uuid.UUID, error)
	ResolveCondition(ctx context.Context, userID uuid.UUID, t alert.Type, symbol string) (int, error)
}

// EventRecorder appends risk events
type EventRecorder interface {
	Record(ctx context.Context, t risk.EventType, userID uuid.UUID, payload map[string]interface{}, level risk.Level, autoAction bool) (*risk.RiskEvent, error)
}

// Config for the position monitor
type Config struct {
	HardStopFloor     decimal.Decimal
	DependencyTimeout time.Duration
	Concurrency       int

	// ClosedRetention is how long a closed position is remembered after the
	// ledger stops listing it. Default: 10m
	ClosedRetention time.Duration
}

// Stats summarises a sweep
type Stats struct {
	Users       int
	Positions   int
	StopLosses  int
	TakeProfits int
	Removed     int
	Failures    int
}

func (s *Stats) add(o Stats) {
	s.Users += o.Users
	s.Positions += o.Positions
	s.StopLosses += o.StopLosses
	s.TakeProfits += o.TakeProfits
	s.Removed += o.Removed
	s.Failures += o.Failures
}

// Monitor watches open positions of registered users and enforces stop-losses.
// Per-position decisions are claimed under the user's lock; every call to an
// external collaborator happens outside it.
type Monitor struct {
	registry *registry.Registry
	ledger   position.Ledger
	prices   market.PriceFeed
	profiles ProfileSource
	alerts   Alerts
	events   EventRecorder
	closer   *retry.Retrier
	cfg      Config
	log      *logger.Logger
	now      func() time.Time
}

// Deps groups the collaborators of the monitor
type Deps struct {
	Registry *registry.Registry
	Ledger   position.Ledger
	Prices   market.PriceFeed
	Profiles ProfileSource
	Alerts   Alerts
	Events   EventRecorder
	// Closer bounds retries of a close command within one tick
	Closer *retry.Retrier
}

// New creates a position monitor
func New(deps Deps, cfg Config, log *logger.Logger) *Monitor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.DependencyTimeout <= 0 {
		cfg.DependencyTimeout = 2 * time.Second
	}
	if cfg.ClosedRetention <= 0 {
		cfg.ClosedRetention = 10 * time.Minute
	}
	if cfg.HardStopFloor.IsZero() {
		cfg.HardStopFloor = decimal.RequireFromString("0.10")
	}
	if deps.Closer == nil {
		deps.Closer = retry.New(retry.DefaultConfig())
	}
	return &Monitor{
		registry: deps.Registry,
		ledger:   deps.Ledger,
		prices:   deps.Prices,
		profiles: deps.Profiles,
		alerts:   deps.Alerts,
		events:   deps.Events,
		closer:   deps.Closer,
		cfg:      cfg,
		log:      log.Named("position_monitor"),
		now:      time.Now,
	}
}

// WithClock overrides the time source (tests)
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// Sweep checks every registered user with bounded concurrency.
// A failing user does not stop the sweep; failures are returned together.
func (m *Monitor) Sweep(ctx context.Context, mode Mode) (Stats, error) {
	ids := m.registry.UserIDs()

	var (
		mu    sync.Mutex
		total Stats
		errs  errors.MultiError
		eg    errgroup.Group
	)
	eg.SetLimit(m.cfg.Concurrency)

	for _, id := range ids {
		id := id
		eg.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			st, err := m.MonitorUser(ctx, id, mode)

			mu.Lock()
			defer mu.Unlock()
			total.add(st)
			if err != nil {
				total.Failures++
				errs.Add(errors.Wrapf(err, "user %s", id))
			}
			return nil
		})
	}
	_ = eg.Wait()

	metrics.WorkerLastRun.WithLabelValues("monitor_" + string(mode)).SetToCurrentTime()
	return total, errs.ToError()
}

type action int

const (
	actionNone action = iota
	actionFire
	actionTakeProfit
)

// MonitorUser syncs one user's positions with the ledger and applies the rules
func (m *Monitor) MonitorUser(ctx context.Context, userID uuid.UUID, mode Mode) (Stats, error) {
	st := Stats{Users: 1}
	if !m.registry.Contains(userID) {
		return st, errors.Wrapf(errors.ErrNotFound, "user %s is not monitored", userID)
	}

	prof, err := m.profile(ctx, userID)
	if err != nil {
		// without a profile only the hard floor can be enforced
		m.log.Warnw("Risk profile unavailable, enforcing hard floor only", "user_id", userID, "error", err)
	}

	positions, err := m.openPositions(ctx, userID)
	if err != nil {
		metrics.DependencyFailures.WithLabelValues("ledger").Inc()
		return st, errors.Wrap(errors.Join(errors.ErrDependencyUnavailable, err), "open positions")
	}

	positions, removed := m.reconcile(userID, positions)
	st.Removed = len(removed)
	for _, tp := range removed {
		m.log.Infow("Position left the ledger",
			"user_id", userID,
			"position_id", tp.Position.ID,
			"symbol", tp.Position.Symbol,
			"phase", tp.Phase,
			"stop_loss_fired", tp.StopLossFired,
		)
		if _, err := m.alerts.ResolveCondition(ctx, userID, alert.TypeTakeProfitSuggestion, tp.Position.Symbol); err != nil {
			m.log.Warnw("Failed to resolve take-profit alert", "user_id", userID, "error", err)
		}
	}

	for _, p := range positions {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		st.Positions++

		if m.claimRetry(userID, p.ID) {
			m.closePosition(ctx, userID, p, "stop-loss close retry")
			continue
		}

		price, err := m.price(ctx, p.Symbol)
		if err != nil {
			metrics.DependencyFailures.WithLabelValues("price_feed").Inc()
			m.log.Warnw("Price unavailable, position skipped this tick",
				"user_id", userID,
				"symbol", p.Symbol,
				"error", err,
			)
			continue
		}

		pnl := p.PnLFraction(price)
		act, trigger, threshold := m.decide(userID, p, pnl, prof, mode)

		switch act {
		case actionFire:
			st.StopLosses++
			m.fire(ctx, userID, p, price, pnl, trigger, threshold)
		case actionTakeProfit:
			st.TakeProfits++
			m.suggestTakeProfit(ctx, userID, p, price, pnl, prof.TakeProfitFraction)
		}
	}
	return st, nil
}

// reconcile replaces the tracked set with the ledger snapshot. It returns the
// positions still to be checked and the ones that disappeared. Positions
// already known to be closed are skipped even if the snapshot lists them.
func (m *Monitor) reconcile(userID uuid.UUID, positions []position.Position) ([]position.Position, []registry.TrackedPosition) {
	var (
		live    []position.Position
		removed []registry.TrackedPosition
	)
	now := m.now().UTC()

	m.registry.Update(userID, func(u *registry.User) {
		seen := make(map[uuid.UUID]struct{}, len(positions))
		for _, p := range positions {
			seen[p.ID] = struct{}{}
			if _, closed := u.Closed[p.ID]; closed {
				continue
			}
			live = append(live, p)
			if tp, ok := u.Positions[p.ID]; ok {
				tp.Position = p
				continue
			}
			u.Positions[p.ID] = &registry.TrackedPosition{Position: p, Phase: registry.PhaseOpen}
		}
		for id, tp := range u.Positions {
			if _, ok := seen[id]; !ok {
				removed = append(removed, *tp)
				delete(u.Positions, id)
				if tp.StopLossFired {
					u.Closed[id] = now
				}
			}
		}
		for id, at := range u.Closed {
			if _, listed := seen[id]; !listed && now.Sub(at) >= m.cfg.ClosedRetention {
				delete(u.Closed, id)
			}
		}
		u.LastSyncedAt = now
	})
	return live, removed
}

// claimRetry claims a pending close whose earlier attempt failed
func (m *Monitor) claimRetry(userID, positionID uuid.UUID) bool {
	claimed := false
	m.registry.Update(userID, func(u *registry.User) {
		tp, ok := u.Positions[positionID]
		if !ok || !tp.StopLossFired || tp.CloseAcked || tp.CloseInFlight {
			return
		}
		tp.CloseInFlight = true
		claimed = true
	})
	return claimed
}

// decide applies the rules and claims a stop-loss under the user's lock.
// Only the caller that flips StopLossFired gets actionFire.
func (m *Monitor) decide(userID uuid.UUID, p position.Position, pnl decimal.Decimal, prof *profile.RiskProfile, mode Mode) (action, string, decimal.Decimal) {
	act := actionNone
	trigger := ""
	threshold := decimal.Zero

	stopHit := prof != nil && pnl.LessThanOrEqual(prof.StopLossFraction.Neg())
	floorHit := (mode == ModeFast || prof == nil) && pnl.LessThanOrEqual(m.cfg.HardStopFloor.Neg())

	m.registry.Update(userID, func(u *registry.User) {
		tp, ok := u.Positions[p.ID]
		if !ok || tp.StopLossFired {
			return
		}
		switch {
		case stopHit:
			trigger, threshold = TriggerStopLoss, prof.StopLossFraction
		case floorHit:
			trigger, threshold = TriggerHardFloor, m.cfg.HardStopFloor
		case mode == ModeGeneral && prof != nil && pnl.GreaterThanOrEqual(prof.TakeProfitFraction):
			act = actionTakeProfit
			return
		default:
			return
		}
		tp.StopLossFired = true
		tp.FiredAt = m.now().UTC()
		tp.Trigger = trigger
		tp.CloseInFlight = true
		u.StopLosses++
		act = actionFire
	})
	return act, trigger, threshold
}

func (m *Monitor) fire(ctx context.Context, userID uuid.UUID, p position.Position, price, pnl decimal.Decimal, trigger string, threshold decimal.Decimal) {
	eventType, alertType := risk.EventStopLossTriggered, alert.TypeStopLossTriggered
	if trigger == TriggerHardFloor {
		eventType, alertType = risk.EventHardStopTriggered, alert.TypeHardStopTriggered
	}
	metrics.StopLossTriggers.WithLabelValues(trigger).Inc()

	m.log.Warnw("Stop-loss triggered, closing position",
		"user_id", userID,
		"position_id", p.ID,
		"symbol", p.Symbol,
		"trigger", trigger,
		"pnl_fraction", pnl.String(),
		"threshold", threshold.Neg().String(),
	)

	payload := map[string]interface{}{
		"position_id":  p.ID.String(),
		"symbol":       p.Symbol,
		"quantity":     p.Quantity.String(),
		"entry_price":  p.EntryPrice.String(),
		"price":        price.String(),
		"pnl_fraction": pnl.String(),
		"threshold":    threshold.Neg().String(),
		"trigger":      trigger,
		"auto_action":  "close_position",
	}
	if _, err := m.events.Record(ctx, eventType, userID, payload, risk.LevelCritical, true); err != nil {
		m.log.Warnw("Stop-loss event not recorded", "position_id", p.ID, "error", err)
	}

	msg := fmt.Sprintf("%s %s at %s: return %s%% breached %s%%, position is being closed",
		trigger, p.Symbol, price.String(),
		pnl.Mul(decimal.NewFromInt(100)).StringFixed(2),
		threshold.Neg().Mul(decimal.NewFromInt(100)).StringFixed(2))
	if _, err := m.alerts.Raise(ctx, userID, alertType, alert.SeverityCritical, msg, alert.Context{
		Symbol:         p.Symbol,
		CurrentValue:   pnl,
		ThresholdValue: threshold.Neg(),
	}); err != nil {
		m.log.Warnw("Stop-loss alert raise failed", "position_id", p.ID, "error", err)
	}

	m.closePosition(ctx, userID, p, trigger)
}

// closePosition sends the close command with bounded retries. The caller
// must hold the in-flight claim.
func (m *Monitor) closePosition(ctx context.Context, userID uuid.UUID, p position.Position, reason string) {
	req := position.CloseRequest{
		PositionID:  p.ID,
		UserID:      userID,
		Symbol:      p.Symbol,
		Quantity:    p.Quantity,
		Reason:      reason,
		RequestedAt: m.now().UTC(),
	}

	err := m.closer.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, m.cfg.DependencyTimeout)
		defer cancel()
		return m.ledger.ClosePosition(ctx, req)
	})
	metrics.RecordCloseCommand(err)

	attempts := 0
	m.registry.Update(userID, func(u *registry.User) {
		tp, ok := u.Positions[p.ID]
		if !ok {
			return
		}
		tp.CloseInFlight = false
		if err == nil {
			tp.CloseAcked = true
			tp.Phase = registry.PhaseClosing
			return
		}
		tp.CloseAttempts += m.closer.Attempts()
		attempts = tp.CloseAttempts
	})

	if err == nil {
		m.log.Infow("Close command accepted", "user_id", userID, "position_id", p.ID, "reason", reason)
		return
	}

	m.log.Errorw("Close command failed, will retry next tick",
		"user_id", userID,
		"position_id", p.ID,
		"attempts", attempts,
		"error", err,
	)
	if _, rerr := m.alerts.Raise(ctx, userID, alert.TypeStopLossCloseFailed, alert.SeverityCritical,
		fmt.Sprintf("could not close %s after %d attempts, retrying", p.Symbol, attempts),
		alert.Context{Symbol: p.Symbol}); rerr != nil {
		m.log.Warnw("Close failure alert raise failed", "position_id", p.ID, "error", rerr)
	}
	payload := map[string]interface{}{
		"position_id": p.ID.String(),
		"symbol":      p.Symbol,
		"attempts":    attempts,
		"error":       err.Error(),
	}
	if _, rerr := m.events.Record(ctx, risk.EventStopLossCloseFailed, userID, payload, risk.LevelCritical, false); rerr != nil {
		m.log.Warnw("Close failure event not recorded", "position_id", p.ID, "error", rerr)
	}
}

func (m *Monitor) suggestTakeProfit(ctx context.Context, userID uuid.UUID, p position.Position, price, pnl, target decimal.Decimal) {
	msg := fmt.Sprintf("%s reached %s%% (target %s%%) at %s, consider taking profit",
		p.Symbol,
		pnl.Mul(decimal.NewFromInt(100)).StringFixed(2),
		target.Mul(decimal.NewFromInt(100)).StringFixed(2),
		price.String())
	if _, err := m.alerts.Raise(ctx, userID, alert.TypeTakeProfitSuggestion, alert.SeverityMedium, msg, alert.Context{
		Symbol:         p.Symbol,
		CurrentValue:   pnl,
		ThresholdValue: target,
	}); err != nil {
		m.log.Warnw("Take-profit alert raise failed", "position_id", p.ID, "error", err)
	}
}

// ConfirmClosed drops a position the ledger reported as closed and keeps it
// out of the monitored set until the ledger stops listing it
func (m *Monitor) ConfirmClosed(userID, positionID uuid.UUID) bool {
	removed := false
	now := m.now().UTC()
	m.registry.Update(userID, func(u *registry.User) {
		u.Closed[positionID] = now
		if _, ok := u.Positions[positionID]; ok {
			delete(u.Positions, positionID)
			removed = true
		}
	})
	return removed
}

func (m *Monitor) profile(ctx context.Context, userID uuid.UUID) (*profile.RiskProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.DependencyTimeout)
	defer cancel()
	return m.profiles.Get(ctx, userID)
}

func (m *Monitor) openPositions(ctx context.Context, userID uuid.UUID) ([]position.Position, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.DependencyTimeout)
	defer cancel()
	return m.ledger.OpenPositions(ctx, userID)
}

func (m *Monitor) price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.DependencyTimeout)
	defer cancel()
	return m.prices.CurrentPrice(ctx, symbol)
}
