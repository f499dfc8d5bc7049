package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"riskgate/internal/domain/risk"
)

// Compile-time check
var _ risk.Repository = (*EventRepository)(nil)

// EventRepository is an in-memory append-only event log
type EventRepository struct {
	mu     sync.RWMutex
	events []risk.RiskEvent
}

// NewEventRepository creates an empty log
func NewEventRepository() *EventRepository {
	return &EventRepository{}
}

// Append adds an event
func (r *EventRepository) Append(ctx context.Context, e *risk.RiskEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
	return nil
}

// ListSince returns events created at or after since, oldest first
func (r *EventRepository) ListSince(ctx context.Context, userID *uuid.UUID, since time.Time) ([]*risk.RiskEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*risk.RiskEvent
	for _, e := range r.events {
		if userID != nil && e.UserID != *userID {
			continue
		}
		if e.CreatedAt.Before(since) {
			continue
		}
		e := e
		out = append(out, &e)
	}
	return out, nil
}
