package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"riskgate/internal/domain/alert"
	"riskgate/pkg/errors"
)

// Compile-time check
var _ alert.Repository = (*AlertRepository)(nil)

// AlertRepository keeps alerts in memory
type AlertRepository struct {
	mu     sync.RWMutex
	alerts map[uuid.UUID]alert.RiskAlert
}

// NewAlertRepository creates an empty repository
func NewAlertRepository() *AlertRepository {
	return &AlertRepository{alerts: make(map[uuid.UUID]alert.RiskAlert)}
}

// Create stores a new alert
func (r *AlertRepository) Create(ctx context.Context, a *alert.RiskAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.alerts[a.ID]; ok {
		return errors.Wrapf(errors.ErrAlreadyExists, "alert %s", a.ID)
	}
	r.alerts[a.ID] = *a
	return nil
}

// GetByID returns an alert
func (r *AlertRepository) GetByID(ctx context.Context, id uuid.UUID) (*alert.RiskAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.alerts[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return &a, nil
}

// UpdateStatus moves an active alert to a terminal status
func (r *AlertRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status alert.Status, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[id]
	if !ok {
		return errors.ErrNotFound
	}
	if a.Status != alert.StatusActive {
		return nil
	}
	a.Status = status
	a.ResolvedAt = &at
	r.alerts[id] = a
	return nil
}

// List returns alerts matching the filter, newest first
func (r *AlertRepository) List(ctx context.Context, f alert.Filter) ([]*alert.RiskAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*alert.RiskAlert
	for _, a := range r.alerts {
		if f.UserID != nil && a.UserID != *f.UserID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if !f.Since.IsZero() && a.CreatedAt.Before(f.Since) {
			continue
		}
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
