package alert

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows alert queries. Zero values mean no constraint.
type Filter struct {
	UserID *uuid.UUID
	Status Status
	Since  time.Time
}

// Repository defines the interface for alert persistence
type Repository interface {
	Create(ctx context.Context, a *RiskAlert) error
	GetByID(ctx context.Context, id uuid.UUID) (*RiskAlert, error)
	// UpdateStatus moves an active alert to status. Returns errors.ErrNotFound for unknown ids.
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, at time.Time) error
	List(ctx context.Context, f Filter) ([]*RiskAlert, error)
}

// Sink delivers alerts to the outside world (user notifications, ops chats, streams)
type Sink interface {
	Deliver(ctx context.Context, a RiskAlert) error
}
