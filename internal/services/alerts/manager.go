package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"

	"riskgate/internal/domain/alert"
	"riskgate/internal/metrics"
	"riskgate/pkg/errors"
	"riskgate/pkg/logger"
	"riskgate/pkg/retry"
)

// Config for the alert manager
type Config struct {
	Cooldown        time.Duration
	DeliveryTimeout time.Duration
}

// Manager raises, deduplicates and resolves risk alerts
type Manager struct {
	repo    alert.Repository
	sink    alert.Sink
	dedup   Deduper
	retrier *retry.Retrier
	cfg     Config
	log     *logger.Logger
	now     func() time.Time
}

// NewManager creates an alert manager. sink may be nil.
func NewManager(repo alert.Repository, sink alert.Sink, dedup Deduper, retrier *retry.Retrier, cfg Config, log *logger.Logger) *Manager {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 3 * time.Second
	}
	return &Manager{
		repo:    repo,
		sink:    sink,
		dedup:   dedup,
		retrier: retrier,
		cfg:     cfg,
		log:     log.Named("alerts"),
		now:     time.Now,
	}
}

// WithClock overrides the time source (tests)
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Raise creates an alert unless an identical one (same user, type and symbol)
// was raised within the cool-down, in which case the existing id is returned.
func (m *Manager) Raise(ctx context.Context, userID uuid.UUID, t alert.Type, severity alert.Severity, message string, actx alert.Context) (uuid.UUID, error) {
	if !severity.Valid() {
		return uuid.Nil, errors.Wrapf(errors.ErrInvalidInput, "severity %q", severity)
	}

	id := uuid.New()
	key := alert.DedupKey(userID, t, actx.Symbol)

	owner, claimed, err := m.dedup.Claim(ctx, key, id, m.cfg.Cooldown)
	if err != nil {
		// over-notifying beats losing a risk alert
		m.log.Warnw("Alert dedup unavailable, raising without cool-down",
			"key", key,
			"error", err,
		)
		claimed = true
	}
	if !claimed {
		metrics.AlertsSuppressed.WithLabelValues(string(t)).Inc()
		m.log.Debugw("Alert suppressed by cool-down", "key", key, "existing_alert_id", owner)
		return owner, nil
	}

	a := alert.RiskAlert{
		ID:             id,
		UserID:         userID,
		AlertType:      t,
		Severity:       severity,
		Message:        message,
		Symbol:         actx.Symbol,
		CurrentValue:   actx.CurrentValue,
		ThresholdValue: actx.ThresholdValue,
		Status:         alert.StatusActive,
		CreatedAt:      m.now().UTC(),
	}

	err = m.retrier.Do(ctx, func(ctx context.Context) error {
		return m.repo.Create(ctx, &a)
	})
	if err != nil {
		m.log.Errorw("Failed to store alert",
			"alert_id", id,
			"user_id", userID,
			"type", t,
			"severity", severity,
			"error", err,
		)
		// still deliver: the condition is real even if the record is lost
	}

	metrics.AlertsRaised.WithLabelValues(string(t), string(severity)).Inc()
	m.log.Infow("Risk alert raised",
		"alert_id", id,
		"user_id", userID,
		"type", t,
		"severity", severity,
		"symbol", actx.Symbol,
		"reaction", severity.Reaction(),
	)

	m.deliver(ctx, a)
	return id, errors.Wrap(err, "store alert")
}

func (m *Manager) deliver(ctx context.Context, a alert.RiskAlert) {
	if m.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.DeliveryTimeout)
	defer cancel()

	if err := m.sink.Deliver(ctx, a); err != nil {
		m.log.Warnw("Alert delivery failed",
			"alert_id", a.ID,
			"type", a.AlertType,
			"error", err,
		)
	}
}

// Resolve marks an alert resolved and reopens its cool-down window
func (m *Manager) Resolve(ctx context.Context, alertID uuid.UUID) error {
	return m.close(ctx, alertID, alert.StatusResolved)
}

// Dismiss marks an alert dismissed by the user
func (m *Manager) Dismiss(ctx context.Context, alertID uuid.UUID) error {
	return m.close(ctx, alertID, alert.StatusDismissed)
}

func (m *Manager) close(ctx context.Context, alertID uuid.UUID, status alert.Status) error {
	a, err := m.repo.GetByID(ctx, alertID)
	if err != nil {
		return errors.Wrapf(err, "alert %s", alertID)
	}
	if !a.IsActive() {
		return nil
	}

	err = m.retrier.Do(ctx, func(ctx context.Context) error {
		return m.repo.UpdateStatus(ctx, alertID, status, m.now().UTC())
	})
	if err != nil {
		return errors.Wrapf(err, "set alert %s %s", alertID, status)
	}

	if err := m.dedup.Release(ctx, a.Key()); err != nil {
		m.log.Warnw("Failed to release alert cool-down", "key", a.Key(), "error", err)
	}

	m.log.Infow("Risk alert closed", "alert_id", alertID, "status", status)
	return nil
}

// ResolveCondition resolves every active alert of a type for a user and symbol.
// Used when re-evaluation shows the condition has cleared.
func (m *Manager) ResolveCondition(ctx context.Context, userID uuid.UUID, t alert.Type, symbol string) (int, error) {
	active, err := m.repo.List(ctx, alert.Filter{UserID: &userID, Status: alert.StatusActive})
	if err != nil {
		return 0, errors.Wrap(err, "list active alerts")
	}

	resolved := 0
	var errs errors.MultiError
	for _, a := range active {
		if a.AlertType != t || a.Key() != alert.DedupKey(userID, t, symbol) {
			continue
		}
		if err := m.Resolve(ctx, a.ID); err != nil {
			errs.Add(err)
			continue
		}
		resolved++
	}
	return resolved, errs.ToError()
}

// Active lists active alerts, optionally for one user
func (m *Manager) Active(ctx context.Context, userID *uuid.UUID) ([]*alert.RiskAlert, error) {
	return m.repo.List(ctx, alert.Filter{UserID: userID, Status: alert.StatusActive})
}

// Since lists alerts created in the window, optionally for one user
func (m *Manager) Since(ctx context.Context, userID *uuid.UUID, since time.Time) ([]*alert.RiskAlert, error) {
	return m.repo.List(ctx, alert.Filter{UserID: userID, Since: since})
}

// Escalate raises a high-severity internal alert. It satisfies the
// escalation hook of the event log.
func (m *Manager) Escalate(ctx context.Context, userID uuid.UUID, t alert.Type, message string) {
	if _, err := m.Raise(ctx, userID, t, alert.SeverityHigh, message, alert.Context{}); err != nil {
		m.log.Errorw("Failed to escalate internal alert",
			"user_id", userID,
			"type", t,
			"error", err,
		)
	}
}
