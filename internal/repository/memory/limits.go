package memory

import (
	"context"
	"sync"

	"riskgate/internal/domain/limits"
)

// Compile-time check
var _ limits.Repository = (*LimitRepository)(nil)

// LimitRepository keeps the latest limit snapshot per key
type LimitRepository struct {
	mu   sync.RWMutex
	rows map[limits.Key]limits.DynamicLimit
}

// NewLimitRepository creates an empty repository
func NewLimitRepository() *LimitRepository {
	return &LimitRepository{rows: make(map[limits.Key]limits.DynamicLimit)}
}

// Save stores the snapshot unless a newer version is already present
func (r *LimitRepository) Save(ctx context.Context, l *limits.DynamicLimit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := limits.Key{UserID: l.UserID, LimitType: l.LimitType}
	if existing, ok := r.rows[key]; ok && existing.Version > l.Version {
		return nil
	}
	r.rows[key] = *l
	return nil
}

// List returns every stored limit
func (r *LimitRepository) List(ctx context.Context) ([]*limits.DynamicLimit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*limits.DynamicLimit, 0, len(r.rows))
	for _, l := range r.rows {
		l := l
		out = append(out, &l)
	}
	return out, nil
}
