package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"riskgate/internal/domain/risk"
)

// Compile-time check
var _ risk.Repository = (*EventRepository)(nil)

// EventRepository is the append-only risk_events table
type EventRepository struct {
	db DBTX
}

// NewEventRepository creates a new event repository
func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

// Append inserts an event
func (r *EventRepository) Append(ctx context.Context, e *risk.RiskEvent) (err error) {
	defer func(start time.Time) { observe("event_append", start, err) }(time.Now())

	query := `
		INSERT INTO risk_events (
			id, user_id, event_type, payload, risk_level, auto_action_taken, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)`

	_, err = r.db.ExecContext(ctx, query,
		e.ID, e.UserID, e.EventType, []byte(e.Payload), e.RiskLevel, e.AutoActionTaken, e.CreatedAt,
	)
	return translate(err, "append risk event")
}

// ListSince returns events created at or after since, oldest first
func (r *EventRepository) ListSince(ctx context.Context, userID *uuid.UUID, since time.Time) (out []*risk.RiskEvent, err error) {
	defer func(start time.Time) { observe("event_list", start, err) }(time.Now())

	if userID != nil {
		err = r.db.SelectContext(ctx, &out, `
			SELECT id, user_id, event_type, payload, risk_level, auto_action_taken, created_at
			FROM risk_events
			WHERE user_id = $1 AND created_at >= $2
			ORDER BY created_at ASC`,
			*userID, since,
		)
	} else {
		err = r.db.SelectContext(ctx, &out, `
			SELECT id, user_id, event_type, payload, risk_level, auto_action_taken, created_at
			FROM risk_events
			WHERE created_at >= $1
			ORDER BY created_at ASC`,
			since,
		)
	}
	if err != nil {
		return nil, translate(err, "list risk events")
	}
	return out, nil
}
