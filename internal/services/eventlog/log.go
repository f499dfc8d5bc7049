package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"riskgate/internal/domain/alert"
	"riskgate/internal/domain/risk"
	"riskgate/internal/metrics"
	"riskgate/pkg/errors"
	"riskgate/pkg/logger"
	"riskgate/pkg/retry"
)

// Escalator raises an internal alert when the audit trail has a gap
type Escalator interface {
	Escalate(ctx context.Context, userID uuid.UUID, t alert.Type, message string)
}

// Log is the append-only risk event log
type Log struct {
	repo      risk.Repository
	mirrors   []risk.Mirror
	escalator Escalator
	retrier   *retry.Retrier
	log       *logger.Logger
	now       func() time.Time
}

// New creates an event log. escalator may be nil.
func New(repo risk.Repository, escalator Escalator, retrier *retry.Retrier, log *logger.Logger, mirrors ...risk.Mirror) *Log {
	return &Log{
		repo:      repo,
		mirrors:   mirrors,
		escalator: escalator,
		retrier:   retrier,
		log:       log.Named("event_log"),
		now:       time.Now,
	}
}

// WithClock overrides the time source (tests)
func (l *Log) WithClock(now func() time.Time) *Log {
	l.now = now
	return l
}

// Record appends an event. Store failures are retried; when retries are
// exhausted the gap is logged, escalated and returned, never swallowed.
// The caller's decision stands either way.
func (l *Log) Record(ctx context.Context, t risk.EventType, userID uuid.UUID, payload map[string]interface{}, level risk.Level, autoAction bool) (*risk.RiskEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal event payload")
	}

	e := &risk.RiskEvent{
		ID:              uuid.New(),
		UserID:          userID,
		EventType:       t,
		Payload:         raw,
		RiskLevel:       level,
		AutoActionTaken: autoAction,
		CreatedAt:       l.now().UTC(),
	}

	err = l.retrier.Do(ctx, func(ctx context.Context) error {
		return l.repo.Append(ctx, e)
	})
	if err != nil {
		metrics.AuditWriteFailures.Inc()
		l.log.Errorw("Risk event could not be stored",
			"event_id", e.ID,
			"event_type", t,
			"user_id", userID,
			"risk_level", level,
			"payload", string(raw),
			"error", err,
		)
		if l.escalator != nil {
			l.escalator.Escalate(ctx, userID, alert.TypeAuditGap, "risk event "+string(t)+" could not be stored")
		}
		return e, errors.Wrap(err, "append risk event")
	}

	metrics.EventsRecorded.WithLabelValues(string(t)).Inc()
	l.mirror(ctx, *e)
	return e, nil
}

func (l *Log) mirror(ctx context.Context, e risk.RiskEvent) {
	for _, m := range l.mirrors {
		if err := m.Mirror(ctx, e); err != nil {
			l.log.Warnw("Risk event mirror failed", "event_id", e.ID, "error", err)
		}
	}
}

// Since returns events in the window, optionally for one user
func (l *Log) Since(ctx context.Context, userID *uuid.UUID, since time.Time) ([]*risk.RiskEvent, error) {
	events, err := l.repo.ListSince(ctx, userID, since)
	if err != nil {
		return nil, errors.Wrap(err, "list risk events")
	}
	return events, nil
}
